package domain

import "time"

// NameMode selects how student names are detected in a transcript.
type NameMode string

const (
	NameModeFirst NameMode = "firstName"
	NameModeLast  NameMode = "lastName"
	NameModeBoth  NameMode = "both"
)

// ParseNameMode validates a raw mode string.
func ParseNameMode(raw string) (NameMode, error) {
	switch NameMode(raw) {
	case NameModeFirst, NameModeLast, NameModeBoth:
		return NameMode(raw), nil
	}
	return "", ErrInvalidNameMode
}

// ClassRecord holds a student's participation within one class.
type ClassRecord struct {
	ParticipationCount int        `json:"participationCount"`
	LastParticipation  *time.Time `json:"lastParticipation"`
	Rank               int        `json:"rank"`
	TotalScore         int        `json:"totalScore"`
}

// Student carries global counters and per-class records keyed by class id.
// Global counters are updated alongside the class record on every event and are
// never recomputed from ClassRecords.
type Student struct {
	ID                 string                 `json:"id"`
	FirstName          string                 `json:"firstName"`
	LastName           string                 `json:"lastName"`
	SectionID          *string                `json:"sectionId"`
	Protected          bool                   `json:"protected"`
	ParticipationCount int                    `json:"participationCount"`
	TotalScore         int                    `json:"totalScore"`
	LastParticipation  *time.Time             `json:"lastParticipation"`
	Rank               int                    `json:"rank"`
	ClassRecords       map[string]ClassRecord `json:"classRecords"`
	CreatedAt          time.Time              `json:"createdAt"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// InSection reports whether the student belongs to sectionID.
func (s Student) InSection(sectionID string) bool {
	return s.SectionID != nil && *s.SectionID == sectionID
}

// Clone returns a deep copy so snapshots do not alias live state.
func (s Student) Clone() Student {
	out := s
	if s.SectionID != nil {
		id := *s.SectionID
		out.SectionID = &id
	}
	if s.LastParticipation != nil {
		t := *s.LastParticipation
		out.LastParticipation = &t
	}
	out.ClassRecords = make(map[string]ClassRecord, len(s.ClassRecords))
	for classID, rec := range s.ClassRecords {
		if rec.LastParticipation != nil {
			t := *rec.LastParticipation
			rec.LastParticipation = &t
		}
		out.ClassRecords[classID] = rec
	}
	return out
}

// ParticipationRecord is an immutable participation event.
type ParticipationRecord struct {
	ID         string               `json:"id"`
	StudentID  string               `json:"studentId"`
	ClassID    string               `json:"classId"`
	Timestamp  time.Time            `json:"timestamp"`
	Duration   time.Duration        `json:"duration"`
	Quality    ParticipationQuality `json:"quality"`
	Keywords   []string             `json:"keywords"`
	Confidence float64              `json:"confidence"`
}

// Class is a named course participation is tracked for.
type Class struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Section groups students; a student belongs to at most one.
type Section struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Settings are the runtime-adjustable tracker preferences.
type Settings struct {
	NameDetectionMode NameMode `json:"nameDetectionMode"`
}

// LeaderboardEntry is a ranked view of one student.
type LeaderboardEntry struct {
	StudentID          string `json:"studentId"`
	DisplayName        string `json:"displayName"`
	Rank               int    `json:"rank"`
	TotalScore         int    `json:"totalScore"`
	ParticipationCount int    `json:"participationCount"`
}

// Leaderboard captures the global and active-class standings.
type Leaderboard struct {
	ClassID   string             `json:"classId,omitempty"`
	SectionID string             `json:"sectionId,omitempty"`
	Global    []LeaderboardEntry `json:"global"`
	Class     []LeaderboardEntry `json:"class"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
