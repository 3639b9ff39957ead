package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
)

// Notifier receives the tracker's alerts. Implementations must not block.
type Notifier interface {
	NotifyParticipation(student domain.Student, quality domain.ParticipationQuality)
	NotifyLowParticipation(students []domain.Student)
	NotifyRankingChange(student domain.Student, oldRank, newRank int)
	NotifyAudioDevice(message string)
}

// Publisher delivers a notification to one destination (live feed, Redis, ...).
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// Preferences toggles alert kinds and throttles each kind independently.
type Preferences struct {
	ParticipationAlerts    bool          `json:"participationAlerts"`
	LowParticipationAlerts bool          `json:"lowParticipationAlerts"`
	RankingChanges         bool          `json:"rankingChanges"`
	AudioDeviceAlerts      bool          `json:"audioDeviceAlerts"`
	MinTimeBetweenAlerts   time.Duration `json:"minTimeBetweenAlerts"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		ParticipationAlerts:    true,
		LowParticipationAlerts: true,
		RankingChanges:         true,
		AudioDeviceAlerts:      true,
		MinTimeBetweenAlerts:   30 * time.Second,
	}
}

func (p Preferences) enabled(kind domain.NotificationKind) bool {
	switch kind {
	case domain.NotifyParticipation:
		return p.ParticipationAlerts
	case domain.NotifyLowParticipation:
		return p.LowParticipationAlerts
	case domain.NotifyRankingChange:
		return p.RankingChanges
	case domain.NotifyAudioDevice:
		return p.AudioDeviceAlerts
	}
	return false
}

// NotificationManager rate-limits alerts per kind and hands the survivors to
// its publishers from a background loop, keeping delivery off the caller's path.
type NotificationManager struct {
	publishers []Publisher
	now        func() time.Time
	queue      chan domain.Notification

	mu    sync.Mutex
	prefs Preferences
	last  map[domain.NotificationKind]time.Time
}

func NewNotificationManager(prefs Preferences, publishers ...Publisher) *NotificationManager {
	return newNotificationManagerWithClock(prefs, time.Now, publishers...)
}

func newNotificationManagerWithClock(prefs Preferences, now func() time.Time, publishers ...Publisher) *NotificationManager {
	return &NotificationManager{
		publishers: publishers,
		now:        now,
		queue:      make(chan domain.Notification, 64),
		prefs:      prefs,
		last:       make(map[domain.NotificationKind]time.Time),
	}
}

func (m *NotificationManager) SetPreferences(prefs Preferences) {
	m.mu.Lock()
	m.prefs = prefs
	m.mu.Unlock()
}

func (m *NotificationManager) Preferences() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

func (m *NotificationManager) NotifyParticipation(student domain.Student, quality domain.ParticipationQuality) {
	m.emit(domain.NotifyParticipation, "Student Participation",
		fmt.Sprintf("%s participated with %s quality", student.FullName(), quality.Keyword))
}

func (m *NotificationManager) NotifyLowParticipation(students []domain.Student) {
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.FullName()
	}
	m.emit(domain.NotifyLowParticipation, "Low Participation Alert",
		"Students with no recent participation: "+strings.Join(names, ", "))
}

func (m *NotificationManager) NotifyRankingChange(student domain.Student, oldRank, newRank int) {
	direction := "down"
	if newRank < oldRank {
		direction = "up"
	}
	m.emit(domain.NotifyRankingChange, "Ranking Update",
		fmt.Sprintf("%s has moved %s to rank #%d", student.FullName(), direction, newRank))
}

func (m *NotificationManager) NotifyAudioDevice(message string) {
	m.emit(domain.NotifyAudioDevice, "Audio Device Alert", message)
}

func (m *NotificationManager) emit(kind domain.NotificationKind, title, body string) {
	now := m.now()
	if !m.allow(kind, now) {
		return
	}
	n := domain.Notification{Kind: kind, Title: title, Body: body, At: now}
	select {
	case m.queue <- n:
	default:
		logger.Warn().Str("kind", string(kind)).Msg("notification queue full, dropping")
	}
}

func (m *NotificationManager) allow(kind domain.NotificationKind, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.prefs.enabled(kind) {
		return false
	}
	if last, ok := m.last[kind]; ok && now.Sub(last) < m.prefs.MinTimeBetweenAlerts {
		return false
	}
	m.last[kind] = now
	return true
}

// Run delivers queued notifications until ctx is canceled.
func (m *NotificationManager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-m.queue:
			for _, p := range m.publishers {
				if err := p.Publish(ctx, n); err != nil {
					logger.Warn().Err(err).Str("kind", string(n.Kind)).Msg("notification delivery failed")
				}
			}
		}
	}
}

// FeedPublisher pushes notifications onto the live feed.
type FeedPublisher struct {
	feed *Feed
}

func NewFeedPublisher(feed *Feed) *FeedPublisher {
	return &FeedPublisher{feed: feed}
}

func (p *FeedPublisher) Publish(_ context.Context, n domain.Notification) error {
	p.feed.Publish(domain.Update{Type: domain.UpdateNotification, Payload: n})
	return nil
}

// Messenger shows transient one-line messages to the user.
type Messenger interface {
	Success(message string)
	Error(message string)
}

// FeedMessenger sends toasts over the live feed and mirrors them to the log.
type FeedMessenger struct {
	feed *Feed
}

func NewFeedMessenger(feed *Feed) *FeedMessenger {
	return &FeedMessenger{feed: feed}
}

func (m *FeedMessenger) Success(message string) {
	logger.Info().Str("toast", "success").Msg(message)
	m.feed.Publish(domain.Update{Type: domain.UpdateToast, Payload: domain.Toast{Level: "success", Message: message}})
}

func (m *FeedMessenger) Error(message string) {
	logger.Warn().Str("toast", "error").Msg(message)
	m.feed.Publish(domain.Update{Type: domain.UpdateToast, Payload: domain.Toast{Level: "error", Message: message}})
}

type nopNotifier struct{}

func (nopNotifier) NotifyParticipation(domain.Student, domain.ParticipationQuality) {}
func (nopNotifier) NotifyLowParticipation([]domain.Student)                         {}
func (nopNotifier) NotifyRankingChange(domain.Student, int, int)                     {}
func (nopNotifier) NotifyAudioDevice(string)                                         {}

type nopMessenger struct{}

func (nopMessenger) Success(string) {}
func (nopMessenger) Error(string)   {}
