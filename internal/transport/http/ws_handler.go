package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"participation-tracker/internal/app"
	"participation-tracker/internal/pkg/logger"
)

// TranscriptSink receives recognition input pushed by browsers.
type TranscriptSink interface {
	Publish(text string) bool
	ReportError(kind string) bool
	ReportEnd() bool
}

type WSHandler struct {
	tracker  *app.Tracker
	sink     TranscriptSink
	upgrader websocket.Upgrader
}

// NewWSHandler serves the live feed. sink may be nil when recognition does
// not run in the browser; inbound recognition messages are then rejected.
func NewWSHandler(tracker *app.Tracker, sink TranscriptSink) *WSHandler {
	return &WSHandler{
		tracker: tracker,
		sink:    sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type transcriptPayload struct {
	Text string `json:"text"`
}

type recognitionErrorPayload struct {
	Kind string `json:"kind"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS streams leaderboard, notification and toast updates to the client
// and forwards browser recognition events to the transcript sink.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.tracker.Subscribe(r.Context())
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// conn supports one concurrent writer; every write goes through send.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Payload: update.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if h.sink == nil {
			reply(errorMessage("recognition input is not accepted on this server"))
			continue
		}
		switch inbound.Type {
		case "transcript":
			var payload transcriptPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(errorMessage("invalid transcript payload"))
				continue
			}
			if !h.sink.Publish(payload.Text) {
				reply(errorMessage("recognition is not active"))
			}
		case "recognitionError":
			var payload recognitionErrorPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(errorMessage("invalid recognitionError payload"))
				continue
			}
			h.sink.ReportError(payload.Kind)
		case "recognitionEnd":
			h.sink.ReportEnd()
		default:
			reply(errorMessage("unsupported message type"))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
