package memory

import (
	"context"
	"testing"

	"participation-tracker/internal/domain"
)

func TestStoreIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, p := range []domain.ParticipationRecord{
		{ID: "r1", StudentID: "s1", ClassID: "c1"},
		{ID: "r2", StudentID: "s1", ClassID: "c2"},
		{ID: "r3", StudentID: "s2", ClassID: "c1"},
	} {
		rec, err := domain.ParticipationEnvelope(p)
		if err != nil {
			t.Fatalf("envelope: %v", err)
		}
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := store.QueryByIndex(ctx, domain.TableParticipations, domain.IndexClassID, "c1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r1" || got[1].ID != "r3" {
		t.Fatalf("unexpected query result %+v", got)
	}

	if err := store.DeleteByIndex(ctx, domain.TableParticipations, domain.IndexClassID, "c1"); err != nil {
		t.Fatalf("delete by index: %v", err)
	}
	all, _ := store.All(ctx, domain.TableParticipations)
	if len(all) != 1 || all[0].ID != "r2" {
		t.Fatalf("expected only r2 left, got %+v", all)
	}

	if err := store.Delete(ctx, domain.TableParticipations, "r2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len(domain.TableParticipations) != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestStorePutOverwritesIndexes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	sec := "sec-a"

	rec, _ := domain.StudentRecord(domain.Student{ID: "s1", SectionID: &sec})
	_ = store.Put(ctx, rec)
	rec, _ = domain.StudentRecord(domain.Student{ID: "s1"})
	_ = store.Put(ctx, rec)

	got, _ := store.QueryByIndex(ctx, domain.TableStudents, domain.IndexSectionID, sec)
	if len(got) != 0 {
		t.Fatalf("expected stale index dropped, got %+v", got)
	}
}
