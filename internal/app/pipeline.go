package app

import (
	"context"
	"errors"
	"strings"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/matching"
	"participation-tracker/internal/pkg/logger"
)

// HandleTranscript routes one finalized transcript segment. Start and stop
// commands are honored whether or not tracking is on; participation detection
// only runs while tracking a selected class. Nothing here fails the caller:
// a segment that matches nothing is dropped.
func (t *Tracker) HandleTranscript(ctx context.Context, transcript string) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return
	}

	if matching.MatchesCommand(text, domain.StartCommands) {
		_ = t.StartTracking(ctx)
		return
	}
	if matching.MatchesCommand(text, domain.StopCommands) {
		t.StopTracking(ctx)
		return
	}

	t.mu.Lock()
	active := t.tracking && t.currentClassID != ""
	mode := t.settings.NameDetectionMode
	var roster []domain.Student
	if active {
		roster = t.rosterLocked()
	}
	t.mu.Unlock()

	if !active {
		return
	}
	if t.opts.RequireTrigger && !matching.MatchesCommand(text, domain.ParticipationTriggers) {
		return
	}

	student, ok := matching.ResolveStudent(text, roster, mode)
	if !ok {
		logger.Debug().Str("transcript", text).Msg("no student named in transcript")
		return
	}
	quality, ok := matching.ClassifyQuality(text)
	if !ok {
		quality = domain.DefaultQuality()
	}

	_, err := t.RecordParticipation(ctx, student.ID, t.opts.DefaultDuration, quality, matching.Keywords(text), t.opts.DefaultConfidence)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownStudent), errors.Is(err, domain.ErrNoClassSelected):
		logger.Warn().Err(err).Str("student_id", student.ID).Msg("participation dropped")
	default:
		logger.Error().Err(err).Str("student_id", student.ID).Msg("participation failed")
	}
}
