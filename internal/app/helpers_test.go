package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"participation-tracker/internal/app"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/infra/memory"
)

type rankChange struct {
	studentID string
	oldRank   int
	newRank   int
}

type recordingNotifier struct {
	mu             sync.Mutex
	participations []string
	low            [][]domain.Student
	ranks          []rankChange
	audio          []string
}

func (n *recordingNotifier) NotifyParticipation(s domain.Student, q domain.ParticipationQuality) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.participations = append(n.participations, s.ID+":"+q.Keyword)
}

func (n *recordingNotifier) NotifyLowParticipation(students []domain.Student) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.low = append(n.low, students)
}

func (n *recordingNotifier) NotifyRankingChange(s domain.Student, oldRank, newRank int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ranks = append(n.ranks, rankChange{studentID: s.ID, oldRank: oldRank, newRank: newRank})
}

func (n *recordingNotifier) NotifyAudioDevice(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audio = append(n.audio, message)
}

func (n *recordingNotifier) rankChanges() []rankChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]rankChange(nil), n.ranks...)
}

type recordingMessenger struct {
	mu     sync.Mutex
	errors []string
}

func (m *recordingMessenger) Success(string) {}

func (m *recordingMessenger) Error(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, message)
}

type fixture struct {
	tracker   *app.Tracker
	store     *memory.Store
	writer    *app.Writer
	notifier  *recordingNotifier
	messenger *recordingMessenger
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFixture(t *testing.T, mutate ...func(*app.Options)) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
	var seq int
	opts := app.DefaultOptions()
	opts.Now = clock.Now
	opts.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%02d", seq)
	}
	for _, m := range mutate {
		m(&opts)
	}

	store := memory.NewStore()
	writer := app.NewWriter(store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = writer.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	notifier := &recordingNotifier{}
	messenger := &recordingMessenger{}
	tracker := app.NewTracker(opts, writer, notifier, messenger, nil)
	return &fixture{tracker: tracker, store: store, writer: writer, notifier: notifier, messenger: messenger, clock: clock}
}

func (f *fixture) addStudent(t *testing.T, first, last string) domain.Student {
	t.Helper()
	s, err := f.tracker.AddStudent(context.Background(), first, last, nil)
	if err != nil {
		t.Fatalf("add student: %v", err)
	}
	return s
}

func (f *fixture) selectNewClass(t *testing.T, name string) domain.Class {
	t.Helper()
	ctx := context.Background()
	c, err := f.tracker.AddClass(ctx, name, "")
	if err != nil {
		t.Fatalf("add class: %v", err)
	}
	if err := f.tracker.SelectClass(ctx, c.ID); err != nil {
		t.Fatalf("select class: %v", err)
	}
	return c
}

func mustQuality(t *testing.T, keyword string) domain.ParticipationQuality {
	t.Helper()
	q, err := domain.QualityByKeyword(keyword)
	if err != nil {
		t.Fatalf("quality %q: %v", keyword, err)
	}
	return q
}
