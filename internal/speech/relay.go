// Package speech provides recognition capabilities: a Relay fed by browsers
// over the websocket, a Stream that dials a remote speech-to-text service,
// and a Script that replays transcript lines.
package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/recognition"
)

const eventBuffer = 32

// ErrorFromKind maps a browser recognition error kind to a domain error.
func ErrorFromKind(kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "not-allowed", "permission-denied", "service-not-allowed":
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, kind)
	}
	if kind == "" {
		kind = "other"
	}
	return fmt.Errorf("%w: %s", domain.ErrRecognitionTransient, kind)
}

// Relay is a capability whose audio is recognized in the browser. Clients
// push final transcripts, errors and end-of-stream through Publish,
// ReportError and ReportEnd. Input arriving while the relay is stopped is
// dropped.
type Relay struct {
	control func(command string)
	events  chan recognition.Event

	mu     sync.Mutex
	active bool
}

// NewRelay creates a relay. control, when set, is told "start" and "stop" so
// connected clients can follow the session.
func NewRelay(control func(command string)) *Relay {
	return &Relay{control: control, events: make(chan recognition.Event, eventBuffer)}
}

func (r *Relay) Start(_ context.Context) error {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
	if r.control != nil {
		r.control("start")
	}
	return nil
}

func (r *Relay) Stop() error {
	r.mu.Lock()
	wasActive := r.active
	r.active = false
	r.mu.Unlock()
	if wasActive && r.control != nil {
		r.control("stop")
	}
	return nil
}

func (r *Relay) Events() <-chan recognition.Event {
	return r.events
}

func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Publish forwards a finalized transcript segment.
func (r *Relay) Publish(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return r.emit(recognition.Event{Kind: recognition.EventFinal, Text: text})
}

func (r *Relay) ReportError(kind string) bool {
	return r.emit(recognition.Event{Kind: recognition.EventError, Err: ErrorFromKind(kind)})
}

func (r *Relay) ReportEnd() bool {
	return r.emit(recognition.Event{Kind: recognition.EventEnd})
}

func (r *Relay) emit(ev recognition.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	select {
	case r.events <- ev:
		return true
	default:
		logger.Warn().Msg("relay event buffer full, dropping")
		return false
	}
}
