package domain

import "time"

// NotificationKind identifies an alert category; each has its own rate limit.
type NotificationKind string

const (
	NotifyParticipation    NotificationKind = "participation"
	NotifyLowParticipation NotificationKind = "low-participation"
	NotifyRankingChange    NotificationKind = "ranking"
	NotifyAudioDevice      NotificationKind = "audio-device"
)

// Notification is a best-effort alert delivered to subscribers.
type Notification struct {
	Kind  NotificationKind `json:"kind"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	At    time.Time        `json:"at"`
}

// Toast is a transient one-line user message.
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// UpdateType tags messages on the live feed.
type UpdateType string

const (
	UpdateLeaderboard  UpdateType = "leaderboard"
	UpdateNotification UpdateType = "notification"
	UpdateToast        UpdateType = "toast"
	UpdateRecognition  UpdateType = "recognition"
)

// RecognitionControl asks connected browsers to start or stop their recognizer.
type RecognitionControl struct {
	Command string `json:"command"`
}

// Update is one message on the live feed.
type Update struct {
	Type    UpdateType `json:"type"`
	Payload any        `json:"payload"`
}
