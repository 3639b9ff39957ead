package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/ranking"
)

// Options tunes participation detection and aggregation.
type Options struct {
	NameMode               domain.NameMode
	LowParticipationWindow time.Duration
	RequireTrigger         bool
	DefaultDuration        time.Duration
	DefaultConfidence      float64

	// Now and NewID default to time.Now and uuid strings; tests override them.
	Now   func() time.Time
	NewID func() string
}

func DefaultOptions() Options {
	return Options{
		NameMode:               domain.NameModeBoth,
		LowParticipationWindow: 30 * time.Minute,
		RequireTrigger:         true,
		DefaultDuration:        60 * time.Second,
		DefaultConfidence:      0.8,
	}
}

// Tracker owns the roster, classes, sections and participation history. Every
// mutation runs to completion under one lock, so an event's read-modify-write
// and the ranking it triggers are never interleaved with another event.
type Tracker struct {
	opts      Options
	now       func() time.Time
	newID     func() string
	writer    *Writer
	notifier  Notifier
	messenger Messenger
	feed      *Feed

	mu               sync.Mutex
	students         []*domain.Student
	classes          []domain.Class
	sections         []domain.Section
	records          []domain.ParticipationRecord
	currentClassID   string
	currentSectionID string
	tracking         bool
	settings         domain.Settings
}

// NewTracker wires a tracker. A nil writer disables persistence; nil notifier
// or messenger discard their output.
func NewTracker(opts Options, writer *Writer, notifier Notifier, messenger Messenger, feed *Feed) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.NameMode == "" {
		opts.NameMode = domain.NameModeBoth
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if messenger == nil {
		messenger = nopMessenger{}
	}
	if feed == nil {
		feed = NewFeed()
	}
	return &Tracker{
		opts:      opts,
		now:       opts.Now,
		newID:     opts.NewID,
		writer:    writer,
		notifier:  notifier,
		messenger: messenger,
		feed:      feed,
		settings:  domain.Settings{NameDetectionMode: opts.NameMode},
	}
}

// Restore rebuilds in-memory state from store. Existing state is replaced.
func (t *Tracker) Restore(ctx context.Context, store Store) error {
	var (
		students []*domain.Student
		classes  []domain.Class
		sections []domain.Section
		records  []domain.ParticipationRecord
	)
	if err := loadTable(ctx, store, domain.TableStudents, func(data json.RawMessage) error {
		var s domain.Student
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s.ClassRecords == nil {
			s.ClassRecords = make(map[string]domain.ClassRecord)
		}
		students = append(students, &s)
		return nil
	}); err != nil {
		return err
	}
	if err := loadTable(ctx, store, domain.TableClasses, func(data json.RawMessage) error {
		var c domain.Class
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		classes = append(classes, c)
		return nil
	}); err != nil {
		return err
	}
	if err := loadTable(ctx, store, domain.TableSections, func(data json.RawMessage) error {
		var s domain.Section
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		sections = append(sections, s)
		return nil
	}); err != nil {
		return err
	}
	if err := loadTable(ctx, store, domain.TableParticipations, func(data json.RawMessage) error {
		var r domain.ParticipationRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	}); err != nil {
		return err
	}

	sort.SliceStable(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].CreatedAt.Before(classes[j].CreatedAt) })
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].CreatedAt.Before(sections[j].CreatedAt) })
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })

	t.mu.Lock()
	defer t.mu.Unlock()
	t.students = students
	t.classes = classes
	t.sections = sections
	t.records = records
	logger.Info().
		Int("students", len(students)).
		Int("classes", len(classes)).
		Int("sections", len(sections)).
		Int("records", len(records)).
		Msg("tracker state restored")
	return nil
}

func loadTable(ctx context.Context, store Store, table string, decode func(json.RawMessage) error) error {
	recs, err := store.All(ctx, table)
	if err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	for _, rec := range recs {
		if err := decode(rec.Data); err != nil {
			return fmt.Errorf("decode %s/%s: %w", table, rec.ID, err)
		}
	}
	return nil
}

// Subscribe returns live updates primed with the current leaderboard.
func (t *Tracker) Subscribe(_ context.Context) (<-chan domain.Update, func()) {
	t.mu.Lock()
	initial := domain.Update{Type: domain.UpdateLeaderboard, Payload: t.leaderboardLocked()}
	t.mu.Unlock()
	return t.feed.Subscribe(initial)
}

// Feed exposes the update fan-out so transports can attach publishers.
func (t *Tracker) Feed() *Feed {
	return t.feed
}

// AddStudent registers a student. New students start protected.
func (t *Tracker) AddStudent(_ context.Context, firstName, lastName string, sectionID *string) (domain.Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sectionID != nil && *sectionID != "" {
		if _, ok := t.sectionLocked(*sectionID); !ok {
			return domain.Student{}, domain.ErrSectionNotFound
		}
	} else {
		sectionID = nil
	}

	student := &domain.Student{
		ID:           t.newID(),
		FirstName:    firstName,
		LastName:     lastName,
		SectionID:    copyString(sectionID),
		Protected:    true,
		ClassRecords: make(map[string]domain.ClassRecord),
		CreatedAt:    t.now(),
	}
	t.students = append(t.students, student)
	t.persistStudentLocked(student)
	t.messenger.Success("Added student: " + student.FullName())
	t.broadcastLocked()
	return student.Clone(), nil
}

// ToggleProtection flips the deletion guard on a student.
func (t *Tracker) ToggleProtection(_ context.Context, studentID string) (domain.Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	student, ok := t.studentLocked(studentID)
	if !ok {
		return domain.Student{}, domain.ErrUnknownStudent
	}
	student.Protected = !student.Protected
	t.persistStudentLocked(student)

	state := "unprotected"
	if student.Protected {
		state = "protected"
	}
	t.messenger.Success(fmt.Sprintf("%s is now %s", student.FullName(), state))
	return student.Clone(), nil
}

// RemoveStudent deletes an unprotected student and their participation records.
func (t *Tracker) RemoveStudent(_ context.Context, studentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.studentIndexLocked(studentID)
	if idx < 0 {
		return domain.ErrUnknownStudent
	}
	if t.students[idx].Protected {
		t.messenger.Error("Cannot delete a protected student record")
		return domain.ErrProtectedStudent
	}

	t.students = append(t.students[:idx], t.students[idx+1:]...)
	kept := t.records[:0]
	for _, r := range t.records {
		if r.StudentID != studentID {
			kept = append(kept, r)
		}
	}
	t.records = kept

	t.writer.Delete(domain.TableStudents, studentID)
	t.writer.DeleteByIndex(domain.TableParticipations, domain.IndexStudentID, studentID)
	t.messenger.Success("Student removed")
	t.broadcastLocked()
	return nil
}

// UpdateStudentSection moves a student to sectionID, or out of any section when nil.
func (t *Tracker) UpdateStudentSection(_ context.Context, studentID string, sectionID *string) (domain.Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	student, ok := t.studentLocked(studentID)
	if !ok {
		return domain.Student{}, domain.ErrUnknownStudent
	}
	name := "No Section"
	if sectionID != nil && *sectionID != "" {
		section, ok := t.sectionLocked(*sectionID)
		if !ok {
			return domain.Student{}, domain.ErrSectionNotFound
		}
		name = section.Name
	} else {
		sectionID = nil
	}

	student.SectionID = copyString(sectionID)
	t.persistStudentLocked(student)
	t.messenger.Success(fmt.Sprintf("Updated %s's section to %s", student.FirstName, name))
	t.broadcastLocked()
	return student.Clone(), nil
}

func (t *Tracker) AddClass(_ context.Context, name, description string) (domain.Class, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	class := domain.Class{ID: t.newID(), Name: name, Description: description, CreatedAt: t.now()}
	t.classes = append(t.classes, class)
	t.persist(domain.ClassRecordEnvelope(class))
	t.messenger.Success("Added class: " + name)
	return class, nil
}

// RemoveClass deletes a class, its participation records and every student's
// record for it. Global student counters are left as they are.
func (t *Tracker) RemoveClass(_ context.Context, classID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, c := range t.classes {
		if c.ID == classID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrClassNotFound
	}
	t.classes = append(t.classes[:idx], t.classes[idx+1:]...)

	t.writer.Delete(domain.TableClasses, classID)
	t.writer.DeleteByIndex(domain.TableParticipations, domain.IndexClassID, classID)

	kept := t.records[:0]
	for _, r := range t.records {
		if r.ClassID != classID {
			kept = append(kept, r)
		}
	}
	t.records = kept

	for _, s := range t.students {
		delete(s.ClassRecords, classID)
		t.persistStudentLocked(s)
	}
	if t.currentClassID == classID {
		t.currentClassID = ""
	}
	t.messenger.Success("Class removed")
	t.broadcastLocked()
	return nil
}

func (t *Tracker) AddSection(_ context.Context, name, description string) (domain.Section, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	section := domain.Section{ID: t.newID(), Name: name, Description: description, CreatedAt: t.now()}
	t.sections = append(t.sections, section)
	t.persist(domain.SectionRecord(section))
	t.messenger.Success("Added section: " + name)
	return section, nil
}

// RemoveSection deletes a section and clears it from its students.
func (t *Tracker) RemoveSection(_ context.Context, sectionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, s := range t.sections {
		if s.ID == sectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrSectionNotFound
	}
	t.sections = append(t.sections[:idx], t.sections[idx+1:]...)
	t.writer.Delete(domain.TableSections, sectionID)

	for _, s := range t.students {
		if s.InSection(sectionID) {
			s.SectionID = nil
			t.persistStudentLocked(s)
		}
	}
	if t.currentSectionID == sectionID {
		t.currentSectionID = ""
	}
	t.messenger.Success("Section removed")
	t.broadcastLocked()
	return nil
}

// SelectClass sets the active class; an empty id clears the selection.
func (t *Tracker) SelectClass(_ context.Context, classID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if classID == "" {
		t.currentClassID = ""
		t.broadcastLocked()
		return nil
	}
	var name string
	found := false
	for _, c := range t.classes {
		if c.ID == classID {
			name, found = c.Name, true
			break
		}
	}
	if !found {
		return domain.ErrClassNotFound
	}
	t.currentClassID = classID
	t.messenger.Success("Switched to class: " + name)
	t.broadcastLocked()
	return nil
}

// SelectSection sets the section filter used for ranking; empty clears it.
func (t *Tracker) SelectSection(_ context.Context, sectionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sectionID == "" {
		t.currentSectionID = ""
		t.messenger.Success("Cleared section filter")
		t.broadcastLocked()
		return nil
	}
	section, ok := t.sectionLocked(sectionID)
	if !ok {
		return domain.ErrSectionNotFound
	}
	t.currentSectionID = sectionID
	t.messenger.Success("Filtered by section: " + section.Name)
	t.broadcastLocked()
	return nil
}

// ActiveClass returns the selected class id, if any.
func (t *Tracker) ActiveClass() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentClassID, t.currentClassID != ""
}

// Selection returns the active class and section filter.
func (t *Tracker) Selection() (classID, sectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentClassID, t.currentSectionID
}

// StartTracking enables participation detection. It requires an active class.
func (t *Tracker) StartTracking(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentClassID == "" {
		t.messenger.Error("Please select a class first")
		return domain.ErrNoClassSelected
	}
	t.tracking = true
	t.messenger.Success("Started tracking participation")
	t.notifier.NotifyAudioDevice("Started tracking participation")
	return nil
}

func (t *Tracker) StopTracking(_ context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracking = false
	t.messenger.Success("Stopped tracking participation")
	t.notifier.NotifyAudioDevice("Stopped tracking participation")
}

func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

func (t *Tracker) Settings() domain.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

func (t *Tracker) UpdateSettings(_ context.Context, settings domain.Settings) (domain.Settings, error) {
	mode, err := domain.ParseNameMode(string(settings.NameDetectionMode))
	if err != nil {
		return domain.Settings{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings.NameDetectionMode = mode
	return t.settings, nil
}

// RecordParticipation applies one participation event for the active class:
// it appends the record, bumps the student's global and class counters
// together, re-ranks, and flags students without recent participation.
func (t *Tracker) RecordParticipation(_ context.Context, studentID string, duration time.Duration, quality domain.ParticipationQuality, keywords []string, confidence float64) (domain.ParticipationRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	classID := t.currentClassID
	if classID == "" {
		t.messenger.Error("Please select a class first")
		return domain.ParticipationRecord{}, domain.ErrNoClassSelected
	}
	student, ok := t.studentLocked(studentID)
	if !ok {
		logger.Warn().Str("student_id", studentID).Str("class_id", classID).Msg("participation for unknown student")
		return domain.ParticipationRecord{}, domain.ErrUnknownStudent
	}

	now := t.now()
	quality.VoiceCommands = append([]string(nil), quality.VoiceCommands...)
	record := domain.ParticipationRecord{
		ID:         t.newID(),
		StudentID:  studentID,
		ClassID:    classID,
		Timestamp:  now,
		Duration:   duration,
		Quality:    quality,
		Keywords:   append([]string(nil), keywords...),
		Confidence: confidence,
	}
	t.records = append(t.records, record)
	t.persist(domain.ParticipationEnvelope(record))

	student.ParticipationCount++
	student.TotalScore += quality.Score
	student.LastParticipation = timePtr(now)

	classRecord := student.ClassRecords[classID]
	classRecord.ParticipationCount++
	classRecord.TotalScore += quality.Score
	classRecord.LastParticipation = timePtr(now)
	student.ClassRecords[classID] = classRecord
	t.persistStudentLocked(student)

	t.notifier.NotifyParticipation(student.Clone(), quality)
	t.messenger.Success("Participation recorded for " + student.FullName())
	logger.Info().
		Str("student_id", studentID).
		Str("class_id", classID).
		Str("quality", quality.Keyword).
		Int("total_score", student.TotalScore).
		Msg("participation recorded")

	t.updateRankingsLocked()
	t.flagLowParticipationLocked(classID, now)
	t.broadcastLocked()
	return record, nil
}

// UpdateRankings recomputes ranks for the current section and class scope.
func (t *Tracker) UpdateRankings(_ context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateRankingsLocked()
	t.broadcastLocked()
}

// Sweep re-ranks and re-evaluates low participation for the active class.
// The server runs it on the configured sweep schedule.
func (t *Tracker) Sweep(_ context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateRankingsLocked()
	if t.currentClassID != "" && t.tracking {
		t.flagLowParticipationLocked(t.currentClassID, t.now())
	}
	t.broadcastLocked()
}

func (t *Tracker) updateRankingsLocked() {
	changes := ranking.Recompute(t.students, ranking.Scope{
		SectionID: t.currentSectionID,
		ClassID:   t.currentClassID,
	})
	for _, s := range t.students {
		t.persistStudentLocked(s)
	}
	for _, c := range changes {
		if s, ok := t.studentLocked(c.StudentID); ok {
			t.notifier.NotifyRankingChange(s.Clone(), c.OldRank, c.NewRank)
		}
	}
}

func (t *Tracker) flagLowParticipationLocked(classID string, now time.Time) {
	cutoff := now.Add(-t.opts.LowParticipationWindow)
	var low []domain.Student
	for _, s := range t.students {
		rec, ok := s.ClassRecords[classID]
		if !ok || rec.LastParticipation == nil || rec.LastParticipation.Before(cutoff) {
			low = append(low, s.Clone())
		}
	}
	if len(low) > 0 {
		t.notifier.NotifyLowParticipation(low)
	}
}

// Students returns the roster in registration order.
func (t *Tracker) Students() []domain.Student {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rosterLocked()
}

func (t *Tracker) Student(studentID string) (domain.Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.studentLocked(studentID)
	if !ok {
		return domain.Student{}, domain.ErrUnknownStudent
	}
	return s.Clone(), nil
}

func (t *Tracker) Classes() []domain.Class {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Class(nil), t.classes...)
}

func (t *Tracker) Sections() []domain.Section {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Section(nil), t.sections...)
}

// Participations lists records, optionally filtered by class and student.
func (t *Tracker) Participations(classID, studentID string) []domain.ParticipationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.ParticipationRecord
	for _, r := range t.records {
		if classID != "" && r.ClassID != classID {
			continue
		}
		if studentID != "" && r.StudentID != studentID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (t *Tracker) Leaderboard() domain.Leaderboard {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaderboardLocked()
}

func (t *Tracker) leaderboardLocked() domain.Leaderboard {
	scope := ranking.Scope{SectionID: t.currentSectionID, ClassID: t.currentClassID}
	global, class := ranking.Board(t.rosterLocked(), scope)
	return domain.Leaderboard{
		ClassID:   t.currentClassID,
		SectionID: t.currentSectionID,
		Global:    global,
		Class:     class,
		UpdatedAt: t.now(),
	}
}

func (t *Tracker) broadcastLocked() {
	t.feed.Publish(domain.Update{Type: domain.UpdateLeaderboard, Payload: t.leaderboardLocked()})
}

func (t *Tracker) rosterLocked() []domain.Student {
	out := make([]domain.Student, len(t.students))
	for i, s := range t.students {
		out[i] = s.Clone()
	}
	return out
}

func (t *Tracker) studentIndexLocked(id string) int {
	for i, s := range t.students {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (t *Tracker) studentLocked(id string) (*domain.Student, bool) {
	if i := t.studentIndexLocked(id); i >= 0 {
		return t.students[i], true
	}
	return nil, false
}

func (t *Tracker) sectionLocked(id string) (domain.Section, bool) {
	for _, s := range t.sections {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Section{}, false
}

func (t *Tracker) persistStudentLocked(s *domain.Student) {
	t.persist(domain.StudentRecord(s.Clone()))
}

func (t *Tracker) persist(rec domain.Record, err error) {
	if err != nil {
		logger.Error().Err(err).Msg("encode record")
		return
	}
	t.writer.Put(rec)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
