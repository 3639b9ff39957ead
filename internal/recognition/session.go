// Package recognition drives a continuous speech-recognition capability.
//
// A Session owns one capability and runs a single event loop: commands,
// capability events and retry timers are handled one at a time, so transcript
// handling never overlaps a restart or another transcript.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
)

const (
	PermissionDeniedMessage = "Microphone access denied. Please check your browser permissions."
	FailedMessage           = "Voice recognition failed to connect. Please refresh the page."
)

type State int

const (
	Idle State = iota
	Starting
	Listening
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type EventKind int

const (
	EventFinal EventKind = iota
	EventEnd
	EventError
)

// Event is emitted by a capability. Err is set for EventError and should wrap
// domain.ErrPermissionDenied when the user refused access.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Capability converts audio to text. Start may block until the capability is
// acquired. A capability ends on its own from time to time and reports that
// with EventEnd; Events returns the same channel for its whole lifetime.
type Capability interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan Event
}

// Handler consumes finalized transcript segments.
type Handler interface {
	HandleTranscript(ctx context.Context, transcript string)
}

// ClassGate reports the active class selection.
type ClassGate interface {
	ActiveClass() (string, bool)
}

// Messenger surfaces failures to the user.
type Messenger interface {
	Error(message string)
}

// DeviceNotifier receives audio device alerts.
type DeviceNotifier interface {
	NotifyAudioDevice(message string)
}

// Scheduler runs fn after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

func timerScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration

	Gate      ClassGate
	Messenger Messenger
	Notifier  DeviceNotifier
	Schedule  Scheduler

	// OnTransition is called from the loop after every state change.
	OnTransition func(from, to State)
}

type message interface{}

type startCmd struct{ reply chan error }
type stopCmd struct{ done chan struct{} }
type refreshCmd struct{}

type startResult struct {
	gen int
	err error
}

type retryFire struct{ gen int }

// Session is the recognition state machine. Create it with NewSession and
// drive it with Run.
type Session struct {
	capability Capability
	handler    Handler
	opts       Options

	msgs chan message
	done chan struct{}

	mu      sync.RWMutex
	state   State
	lastErr error

	// owned by the loop
	active      bool
	attempts    int
	gen         int
	cancelTimer func() bool
	cancelStart context.CancelFunc
	early       []string
}

// maxEarly bounds transcripts held while a start result is pending.
const maxEarly = 32

func NewSession(capability Capability, handler Handler, opts Options) *Session {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Schedule == nil {
		opts.Schedule = timerScheduler
	}
	return &Session{
		capability: capability,
		handler:    handler,
		opts:       opts,
		msgs:       make(chan message),
		done:       make(chan struct{}),
	}
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the reason the session entered Failed, if it did.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Start requests listening. It fails with domain.ErrNoClassSelected when no
// class is active and is a no-op while the session is already running.
func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, startCmd{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop returns the session to Idle and cancels any pending retry.
func (s *Session) Stop(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.send(ctx, stopCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh restarts the capability if the session is listening.
func (s *Session) Refresh(ctx context.Context) error {
	return s.send(ctx, refreshCmd{})
}

func (s *Session) send(ctx context.Context, m message) error {
	select {
	case s.msgs <- m:
		return nil
	case <-s.done:
		return errors.New("recognition session is not running")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a loop message from a helper goroutine.
func (s *Session) post(m message) {
	select {
	case s.msgs <- m:
	case <-s.done:
	}
}

// Run processes commands, capability events and timers until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	events := s.capability.Events()
	for {
		select {
		case <-ctx.Done():
			s.halt()
			return nil
		case m := <-s.msgs:
			s.dispatch(ctx, m)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, m message) {
	switch m := m.(type) {
	case startCmd:
		m.reply <- s.handleStart(ctx)
	case stopCmd:
		s.halt()
		close(m.done)
	case refreshCmd:
		if s.State() == Listening {
			logger.Info().Msg("refreshing recognition capability")
			s.stopCapability()
			s.begin(ctx)
		}
	case startResult:
		s.handleStartResult(ctx, m)
	case retryFire:
		if m.gen == s.gen && s.State() == Reconnecting {
			s.begin(ctx)
		}
	}
}

func (s *Session) handleStart(ctx context.Context) error {
	switch s.State() {
	case Idle, Failed:
	default:
		return nil
	}
	if s.opts.Gate != nil {
		if _, ok := s.opts.Gate.ActiveClass(); !ok {
			return domain.ErrNoClassSelected
		}
	}
	s.active = true
	s.attempts = 0
	s.setErr(nil)
	s.begin(ctx)
	return nil
}

// begin enters Starting and acquires the capability off the loop.
func (s *Session) begin(ctx context.Context) {
	s.early = nil
	s.gen++
	gen := s.gen
	s.setState(Starting)

	if s.cancelStart != nil {
		s.cancelStart()
	}
	startCtx, cancel := context.WithCancel(ctx)
	s.cancelStart = cancel
	go func() {
		err := s.capability.Start(startCtx)
		s.post(startResult{gen: gen, err: err})
	}()
}

func (s *Session) handleStartResult(ctx context.Context, r startResult) {
	if r.gen != s.gen || s.State() != Starting {
		// a late success after Stop must not leave the capability running
		if state := s.State(); r.err == nil && (state == Idle || state == Failed) {
			s.stopCapability()
		}
		return
	}
	if r.err != nil {
		s.fail(r.err)
		return
	}
	s.attempts = 0
	s.setState(Listening)
	early := s.early
	s.early = nil
	for _, text := range early {
		if s.handler != nil {
			s.handler.HandleTranscript(ctx, text)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) {
	state := s.State()
	switch ev.Kind {
	case EventFinal:
		switch {
		case state == Listening && s.handler != nil:
			s.handler.HandleTranscript(ctx, ev.Text)
		case state == Starting && len(s.early) < maxEarly:
			// the capability can speak before its start result arrives
			s.early = append(s.early, ev.Text)
		}
	case EventEnd:
		if state == Listening && s.active {
			s.begin(ctx)
		}
	case EventError:
		if state == Listening || state == Starting {
			s.stopCapability()
			s.fail(ev.Err)
		}
	}
}

// fail applies the retry policy: permission errors are terminal, anything
// else is retried after attempts*BaseDelay until MaxAttempts is reached.
func (s *Session) fail(err error) {
	if err == nil {
		err = domain.ErrRecognitionTransient
	}
	s.early = nil
	s.gen++

	if errors.Is(err, domain.ErrPermissionDenied) {
		logger.Warn().Err(err).Msg("recognition permission denied")
		s.terminate(err, PermissionDeniedMessage)
		return
	}

	s.attempts++
	if s.attempts >= s.opts.MaxAttempts {
		logger.Error().Err(err).Int("attempt", s.attempts).Msg("recognition retries exhausted")
		s.terminate(fmt.Errorf("%w: %v", domain.ErrRecognitionFailed, err), FailedMessage)
		return
	}

	delay := time.Duration(s.attempts) * s.opts.BaseDelay
	gen := s.gen
	s.setState(Reconnecting)
	logger.Warn().Err(err).Int("attempt", s.attempts).Dur("delay", delay).Msg("recognition error, scheduling reconnect")
	s.cancelTimer = s.opts.Schedule(delay, func() { s.post(retryFire{gen: gen}) })
}

func (s *Session) terminate(err error, message string) {
	s.active = false
	s.setErr(err)
	s.setState(Failed)
	if s.opts.Messenger != nil {
		s.opts.Messenger.Error(message)
	}
	if s.opts.Notifier != nil {
		s.opts.Notifier.NotifyAudioDevice(message)
	}
}

// halt cancels everything in flight and returns to Idle.
func (s *Session) halt() {
	s.gen++
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	prev := s.State()
	if prev == Starting || prev == Listening {
		s.stopCapability()
	}
	if s.cancelStart != nil {
		s.cancelStart()
		s.cancelStart = nil
	}
	s.active = false
	s.attempts = 0
	s.early = nil
	if prev != Idle {
		s.setState(Idle)
	}
}

func (s *Session) stopCapability() {
	if err := s.capability.Stop(); err != nil {
		logger.Warn().Err(err).Msg("stop recognition capability")
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	logger.Info().Str("state", next.String()).Str("from", prev.String()).Msg("recognition state")
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(prev, next)
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
