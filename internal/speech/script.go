package speech

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"participation-tracker/internal/recognition"
)

// Script replays transcript lines, one final segment per non-empty line.
// Lines starting with '#' are skipped. When the input is exhausted the
// script reports Done instead of ending, so the session does not restart it.
type Script struct {
	scanner *bufio.Scanner
	events  chan recognition.Event
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func NewScript(r io.Reader) *Script {
	return &Script{
		scanner: bufio.NewScanner(r),
		events:  make(chan recognition.Event),
		done:    make(chan struct{}),
	}
}

// Start begins feeding lines. Restarting a script resumes where it stopped.
func (s *Script) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.feed(ctx)
	return nil
}

func (s *Script) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *Script) Events() <-chan recognition.Event {
	return s.events
}

// Err reports a read error from the underlying input.
func (s *Script) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanner.Err()
}

// Done is closed after the last line has been delivered.
func (s *Script) Done() <-chan struct{} {
	return s.done
}

func (s *Script) feed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// the scanner is shared with any feed started after a Stop
		s.mu.Lock()
		more := s.scanner.Scan()
		line := strings.TrimSpace(s.scanner.Text())
		s.mu.Unlock()
		if !more {
			s.once.Do(func() { close(s.done) })
			return
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		select {
		case s.events <- recognition.Event{Kind: recognition.EventFinal, Text: line}:
		case <-ctx.Done():
			return
		}
	}
}
