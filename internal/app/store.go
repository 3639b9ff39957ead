package app

import (
	"context"
	"sync"

	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
)

// Store abstracts the persistent key-value record store (in-memory, Redis, Postgres).
// Calls are independent; there is no transaction across them.
type Store interface {
	Put(ctx context.Context, rec domain.Record) error
	Delete(ctx context.Context, table, id string) error
	DeleteByIndex(ctx context.Context, table, field, value string) error
	QueryByIndex(ctx context.Context, table, field, value string) ([]domain.Record, error)
	All(ctx context.Context, table string) ([]domain.Record, error)
}

type opKind int

const (
	opPut opKind = iota
	opDelete
	opDeleteByIndex
)

type writeOp struct {
	kind  opKind
	rec   domain.Record
	table string
	id    string
	field string
	value string
}

// Writer applies store writes one at a time in enqueue order. Enqueueing never
// blocks the caller; failures are logged and in-memory state stays authoritative.
type Writer struct {
	store Store

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []writeOp
	pending int
	wake    chan struct{}
}

func NewWriter(store Store) *Writer {
	w := &Writer{store: store, wake: make(chan struct{}, 1)}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Put queues an upsert of rec.
func (w *Writer) Put(rec domain.Record) {
	w.enqueue(writeOp{kind: opPut, rec: rec, table: rec.Table, id: rec.ID})
}

// Delete queues removal of one record.
func (w *Writer) Delete(table, id string) {
	w.enqueue(writeOp{kind: opDelete, table: table, id: id})
}

// DeleteByIndex queues removal of every record whose index field equals value.
func (w *Writer) DeleteByIndex(table, field, value string) {
	w.enqueue(writeOp{kind: opDeleteByIndex, table: table, field: field, value: value})
}

func (w *Writer) enqueue(op writeOp) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, op)
	w.pending++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is canceled. Writes queued before
// cancellation still complete.
func (w *Writer) Run(ctx context.Context) error {
	for {
		if op, ok := w.next(); ok {
			w.apply(ctx, op)
			continue
		}
		select {
		case <-w.wake:
		case <-ctx.Done():
			drainCtx := context.WithoutCancel(ctx)
			for {
				op, ok := w.next()
				if !ok {
					return nil
				}
				w.apply(drainCtx, op)
			}
		}
	}
}

// Flush blocks until every queued write has been applied.
func (w *Writer) Flush() {
	if w == nil {
		return
	}
	w.mu.Lock()
	for w.pending > 0 {
		w.idle.Wait()
	}
	w.mu.Unlock()
}

func (w *Writer) next() (writeOp, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return writeOp{}, false
	}
	op := w.queue[0]
	w.queue[0] = writeOp{}
	w.queue = w.queue[1:]
	return op, true
}

func (w *Writer) apply(ctx context.Context, op writeOp) {
	var err error
	switch op.kind {
	case opPut:
		err = w.store.Put(ctx, op.rec)
	case opDelete:
		err = w.store.Delete(ctx, op.table, op.id)
	case opDeleteByIndex:
		err = w.store.DeleteByIndex(ctx, op.table, op.field, op.value)
	}
	if err != nil {
		logger.Error().Err(err).Str("table", op.table).Str("id", op.id).Msg("persist failed")
	}

	w.mu.Lock()
	w.pending--
	if w.pending == 0 {
		w.idle.Broadcast()
	}
	w.mu.Unlock()
}
