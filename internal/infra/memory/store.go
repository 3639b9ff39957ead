package memory

import (
	"context"
	"sort"
	"sync"

	"participation-tracker/internal/domain"
)

// Store is an in-memory implementation of app.Store, used for tests and for
// running without Redis or Postgres.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]domain.Record
}

func NewStore() *Store {
	return &Store{tables: make(map[string]map[string]domain.Record)}
}

func (s *Store) Put(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.tables[rec.Table]
	if !ok {
		table = make(map[string]domain.Record)
		s.tables[rec.Table] = table
	}
	table[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *Store) Delete(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
	return nil
}

func (s *Store) DeleteByIndex(_ context.Context, table, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.tables[table] {
		if rec.Indexes[field] == value {
			delete(s.tables[table], id)
		}
	}
	return nil
}

func (s *Store) QueryByIndex(_ context.Context, table, field, value string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Record
	for _, rec := range s.tables[table] {
		if rec.Indexes[field] == value {
			out = append(out, cloneRecord(rec))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) All(_ context.Context, table string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, 0, len(s.tables[table]))
	for _, rec := range s.tables[table] {
		out = append(out, cloneRecord(rec))
	}
	sortByID(out)
	return out, nil
}

// Len reports how many records a table holds.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func cloneRecord(rec domain.Record) domain.Record {
	out := rec
	out.Data = append([]byte(nil), rec.Data...)
	if rec.Indexes != nil {
		out.Indexes = make(map[string]string, len(rec.Indexes))
		for k, v := range rec.Indexes {
			out.Indexes[k] = v
		}
	}
	return out
}

func sortByID(recs []domain.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
