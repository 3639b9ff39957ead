package app

import (
	"sync"

	"participation-tracker/internal/domain"
)

// Feed fans live updates out to subscribers. Slow subscribers lose the oldest
// buffered update rather than blocking the publisher.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.Update]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan domain.Update]struct{})}
}

// Subscribe registers a channel primed with initial. The caller must invoke
// the returned cancel function to avoid leaks.
func (f *Feed) Subscribe(initial ...domain.Update) (<-chan domain.Update, func()) {
	ch := make(chan domain.Update, 16)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	for _, u := range initial {
		ch <- u
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers u to every subscriber.
func (f *Feed) Publish(u domain.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
}

// Subscribers reports how many channels are registered.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
