package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"participation-tracker/internal/app"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/infra/memory"
)

func TestRecordParticipationAccumulatesScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "John", "Smith")
	class := f.selectNewClass(t, "Biology")
	excellent := mustQuality(t, "Excellent")

	for i := 0; i < 2; i++ {
		if _, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, excellent, []string{"john"}, 0.9); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := f.tracker.Student(s.ID)
	if err != nil {
		t.Fatalf("student: %v", err)
	}
	rec := got.ClassRecords[class.ID]
	if rec.TotalScore != 10 || rec.ParticipationCount != 2 {
		t.Fatalf("expected class record 10/2, got %+v", rec)
	}
	if got.TotalScore != 10 || got.ParticipationCount != 2 {
		t.Fatalf("expected global 10/2, got %d/%d", got.TotalScore, got.ParticipationCount)
	}
	if got.LastParticipation == nil || rec.LastParticipation == nil {
		t.Fatalf("expected last participation timestamps")
	}
	if got.Rank != 1 || rec.Rank != 1 {
		t.Fatalf("expected rank 1 globally and in class, got %d/%d", got.Rank, rec.Rank)
	}
	if n := len(f.tracker.Participations(class.ID, s.ID)); n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}
}

func TestRecordParticipationPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "Ada", "Lovelace")
	q := domain.DefaultQuality()

	_, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, q, nil, 0.8)
	if !errors.Is(err, domain.ErrNoClassSelected) {
		t.Fatalf("expected no class error, got %v", err)
	}
	if len(f.messenger.errors) != 1 {
		t.Fatalf("expected user-facing error, got %v", f.messenger.errors)
	}

	f.selectNewClass(t, "Math")
	_, err = f.tracker.RecordParticipation(ctx, "ghost", time.Minute, q, nil, 0.8)
	if !errors.Is(err, domain.ErrUnknownStudent) {
		t.Fatalf("expected unknown student, got %v", err)
	}
	if got, _ := f.tracker.Student(s.ID); got.ParticipationCount != 0 {
		t.Fatalf("state mutated on failure: %+v", got)
	}
	if len(f.tracker.Participations("", "")) != 0 {
		t.Fatalf("records appended on failure")
	}
}

func TestRecordParticipationSnapshotsQuality(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "Grace", "Hopper")
	f.selectNewClass(t, "CS")

	q := mustQuality(t, "Creative Input")
	rec, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, q, []string{"a"}, 0.5)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	q.VoiceCommands[0] = "mutated"
	q.Score = 99

	stored := f.tracker.Participations("", "")[0]
	if stored.Quality.Score != 4 || stored.Quality.VoiceCommands[0] != "creative" {
		t.Fatalf("record quality must be a snapshot, got %+v", stored.Quality)
	}
	if rec.ID != stored.ID {
		t.Fatalf("expected returned record to match stored")
	}
}

func TestRankChangesNotifyAfterFirstRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addStudent(t, "Amy", "A")
	b := f.addStudent(t, "Ben", "B")
	f.selectNewClass(t, "History")

	basic := mustQuality(t, "Basic Response")
	excellent := mustQuality(t, "Excellent")

	if _, err := f.tracker.RecordParticipation(ctx, a.ID, time.Minute, basic, nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	if changes := f.notifier.rankChanges(); len(changes) != 0 {
		t.Fatalf("first ranking must not notify, got %+v", changes)
	}

	if _, err := f.tracker.RecordParticipation(ctx, b.ID, time.Minute, excellent, nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}

	var globalA, globalB bool
	for _, c := range f.notifier.rankChanges() {
		if c.studentID == a.ID && c.oldRank == 1 && c.newRank == 2 {
			globalA = true
		}
		if c.studentID == b.ID && c.oldRank == 2 && c.newRank == 1 {
			globalB = true
		}
	}
	if !globalA || !globalB {
		t.Fatalf("expected swap notifications, got %+v", f.notifier.rankChanges())
	}

	lb := f.tracker.Leaderboard()
	if lb.Global[0].StudentID != b.ID || lb.Class[0].StudentID != b.ID {
		t.Fatalf("expected Ben leading, got %+v", lb)
	}
}

func TestRemoveClassCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "John", "Smith")
	keep := f.selectNewClass(t, "Keep")
	if _, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, domain.DefaultQuality(), nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	drop := f.selectNewClass(t, "Drop")
	for i := 0; i < 2; i++ {
		if _, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, domain.DefaultQuality(), nil, 0.8); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if err := f.tracker.RemoveClass(ctx, drop.ID); err != nil {
		t.Fatalf("remove class: %v", err)
	}
	f.writer.Flush()

	got, _ := f.tracker.Student(s.ID)
	if _, ok := got.ClassRecords[drop.ID]; ok {
		t.Fatalf("class record must be stripped")
	}
	if _, ok := got.ClassRecords[keep.ID]; !ok {
		t.Fatalf("other class records must survive")
	}
	if got.TotalScore != 15 || got.ParticipationCount != 3 {
		t.Fatalf("global counters must be untouched, got %d/%d", got.TotalScore, got.ParticipationCount)
	}
	if n := len(f.tracker.Participations(drop.ID, "")); n != 0 {
		t.Fatalf("expected dropped records removed, got %d", n)
	}
	if n := len(f.tracker.Participations(keep.ID, "")); n != 1 {
		t.Fatalf("expected kept record, got %d", n)
	}
	if cls, _ := f.tracker.Selection(); cls != "" {
		t.Fatalf("expected selection cleared, got %q", cls)
	}
	left, _ := f.store.QueryByIndex(ctx, domain.TableParticipations, domain.IndexClassID, drop.ID)
	if len(left) != 0 {
		t.Fatalf("expected persisted records removed, got %d", len(left))
	}
	if f.store.Len(domain.TableClasses) != 1 {
		t.Fatalf("expected one persisted class")
	}
}

func TestRemoveProtectedStudentFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "Pat", "Kim")

	if err := f.tracker.RemoveStudent(ctx, s.ID); !errors.Is(err, domain.ErrProtectedStudent) {
		t.Fatalf("expected protected error, got %v", err)
	}
	if len(f.tracker.Students()) != 1 {
		t.Fatalf("protected student removed")
	}

	if _, err := f.tracker.ToggleProtection(ctx, s.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := f.tracker.RemoveStudent(ctx, s.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	f.writer.Flush()
	if len(f.tracker.Students()) != 0 || f.store.Len(domain.TableStudents) != 0 {
		t.Fatalf("expected student removed everywhere")
	}
}

func TestRemoveSectionNullsStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sec, _ := f.tracker.AddSection(ctx, "Period 1", "")
	s, err := f.tracker.AddStudent(ctx, "Lee", "Chan", &sec.ID)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.tracker.SelectSection(ctx, sec.ID); err != nil {
		t.Fatalf("select section: %v", err)
	}

	if err := f.tracker.RemoveSection(ctx, sec.ID); err != nil {
		t.Fatalf("remove section: %v", err)
	}
	got, _ := f.tracker.Student(s.ID)
	if got.SectionID != nil {
		t.Fatalf("expected section cleared")
	}
	if _, secID := f.tracker.Selection(); secID != "" {
		t.Fatalf("expected section filter cleared")
	}

	missing := "nope"
	if _, err := f.tracker.AddStudent(ctx, "X", "Y", &missing); !errors.Is(err, domain.ErrSectionNotFound) {
		t.Fatalf("expected missing section error, got %v", err)
	}
}

func TestLowParticipationFlagsStaleStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addStudent(t, "Amy", "A")
	b := f.addStudent(t, "Ben", "B")
	f.selectNewClass(t, "Art")

	if _, err := f.tracker.RecordParticipation(ctx, a.ID, time.Minute, domain.DefaultQuality(), nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	f.clock.Advance(31 * time.Minute)
	if _, err := f.tracker.RecordParticipation(ctx, b.ID, time.Minute, domain.DefaultQuality(), nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(f.notifier.low) != 2 {
		t.Fatalf("expected two low-participation batches, got %d", len(f.notifier.low))
	}
	first := f.notifier.low[0]
	if len(first) != 1 || first[0].ID != b.ID {
		t.Fatalf("expected Ben flagged first, got %+v", first)
	}
	second := f.notifier.low[1]
	if len(second) != 1 || second[0].ID != a.ID {
		t.Fatalf("expected Amy flagged after 31 minutes, got %+v", second)
	}
}

func TestTrackingRequiresClass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.tracker.StartTracking(ctx); !errors.Is(err, domain.ErrNoClassSelected) {
		t.Fatalf("expected no class error, got %v", err)
	}
	f.selectNewClass(t, "Chem")
	if err := f.tracker.StartTracking(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !f.tracker.Tracking() {
		t.Fatalf("expected tracking")
	}
	f.tracker.StopTracking(ctx)
	if f.tracker.Tracking() {
		t.Fatalf("expected stopped")
	}
	if len(f.notifier.audio) != 2 {
		t.Fatalf("expected audio notifications, got %v", f.notifier.audio)
	}
}

func TestSweepFlagsOnlyWhileTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addStudent(t, "Amy", "A")
	f.selectNewClass(t, "Music")

	f.tracker.Sweep(ctx)
	if len(f.notifier.low) != 0 {
		t.Fatalf("expected no flags while not tracking, got %d", len(f.notifier.low))
	}

	if err := f.tracker.StartTracking(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.tracker.Sweep(ctx)
	if len(f.notifier.low) != 1 || f.notifier.low[0][0].ID != a.ID {
		t.Fatalf("expected Amy flagged by sweep, got %+v", f.notifier.low)
	}
}

func TestRestoreRebuildsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addStudent(t, "Amy", "A")
	f.addStudent(t, "Ben", "B")
	class := f.selectNewClass(t, "Physics")
	if _, err := f.tracker.RecordParticipation(ctx, a.ID, time.Minute, mustQuality(t, "Excellent"), nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	f.writer.Flush()

	restored := app.NewTracker(app.DefaultOptions(), nil, nil, nil, nil)
	if err := restored.Restore(ctx, f.store); err != nil {
		t.Fatalf("restore: %v", err)
	}
	students := restored.Students()
	if len(students) != 2 || students[0].ID != a.ID {
		t.Fatalf("expected roster order preserved, got %+v", students)
	}
	if students[0].ClassRecords[class.ID].TotalScore != 5 || students[0].Rank != 1 {
		t.Fatalf("expected restored counters, got %+v", students[0])
	}
	if len(restored.Classes()) != 1 || len(restored.Participations("", "")) != 1 {
		t.Fatalf("expected class and record restored")
	}
}

func TestSubscribeReceivesLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.addStudent(t, "Amy", "A")
	f.selectNewClass(t, "Music")

	ch, cancel := f.tracker.Subscribe(ctx)
	defer cancel()
	initial := <-ch
	if initial.Type != domain.UpdateLeaderboard {
		t.Fatalf("expected leaderboard snapshot, got %s", initial.Type)
	}

	if _, err := f.tracker.RecordParticipation(ctx, s.ID, time.Minute, domain.DefaultQuality(), nil, 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	update := <-ch
	lb, ok := update.Payload.(domain.Leaderboard)
	if !ok || len(lb.Class) != 1 || lb.Class[0].TotalScore != 5 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestUpdateSettingsValidatesMode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tracker.UpdateSettings(context.Background(), domain.Settings{NameDetectionMode: "nick"}); !errors.Is(err, domain.ErrInvalidNameMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
	got, err := f.tracker.UpdateSettings(context.Background(), domain.Settings{NameDetectionMode: domain.NameModeLast})
	if err != nil || got.NameDetectionMode != domain.NameModeLast {
		t.Fatalf("expected lastName mode, got %+v err=%v", got, err)
	}
}

var _ app.Store = (*memory.Store)(nil)
