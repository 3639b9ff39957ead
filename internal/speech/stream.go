package speech

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/recognition"
)

const (
	handshakeTimeout = 10 * time.Second
	closeWait        = time.Second
)

// streamMessage is one frame from the speech-to-text service.
type streamMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// Stream dials a websocket speech-to-text service that sends
// {"type":"final","text":...} frames and {"type":"error","kind":...} frames.
// A closed connection ends the stream.
type Stream struct {
	url    string
	dialer *websocket.Dialer
	events chan recognition.Event

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(url string) *Stream {
	return &Stream{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		events: make(chan recognition.Event, eventBuffer),
	}
}

func (s *Stream) Start(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: stt handshake status %d", domain.ErrPermissionDenied, resp.StatusCode)
		}
		return fmt.Errorf("%w: dial stt: %v", domain.ErrRecognitionTransient, err)
	}

	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	go s.read(conn)
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait))
	return conn.Close()
}

func (s *Stream) Events() <-chan recognition.Event {
	return s.events
}

func (s *Stream) current(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

func (s *Stream) read(conn *websocket.Conn) {
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !s.current(conn) {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(recognition.Event{Kind: recognition.EventEnd})
				return
			}
			logger.Warn().Err(err).Msg("stt stream read failed")
			s.emit(recognition.Event{Kind: recognition.EventError, Err: fmt.Errorf("%w: %v", domain.ErrRecognitionTransient, err)})
			return
		}
		switch msg.Type {
		case "final":
			if msg.Text != "" {
				s.emit(recognition.Event{Kind: recognition.EventFinal, Text: msg.Text})
			}
		case "error":
			s.emit(recognition.Event{Kind: recognition.EventError, Err: ErrorFromKind(msg.Kind)})
		case "end":
			s.emit(recognition.Event{Kind: recognition.EventEnd})
		default:
			logger.Debug().Str("type", msg.Type).Msg("ignoring stt frame")
		}
	}
}

func (s *Stream) emit(ev recognition.Event) {
	select {
	case s.events <- ev:
	default:
		logger.Warn().Msg("stt event buffer full, dropping")
	}
}
