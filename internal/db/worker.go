package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrWorkerClosed is returned by Do and Exec after Close.
var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

// ConnFn runs outside a transaction. Used for statements SQLite refuses
// inside one (VACUUM, wal_checkpoint).
type ConnFn func(ctx context.Context, db *sql.DB) error

type job struct {
	ctx  context.Context
	fn   TxFn
	conn ConnFn
	ch   chan error
}

// Worker serializes every write onto a single goroutine so the store has
// exactly one writer.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}

	// mu guards closed and the send on jobs against Close.
	mu     sync.RWMutex
	closed bool
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 64),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close drains queued jobs and stops the loop. Jobs submitted afterwards
// fail with ErrWorkerClosed; calling it twice is fine.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

// Do runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	return w.submit(ctx, job{ctx: ctx, fn: fn})
}

// Exec runs fn on the writer goroutine without opening a transaction.
func (w *Worker) Exec(ctx context.Context, fn ConnFn) error {
	return w.submit(ctx, job{ctx: ctx, conn: fn})
}

func (w *Worker) submit(ctx context.Context, j job) error {
	j.ch = make(chan error, 1)
	if err := w.enqueue(ctx, j); err != nil {
		return err
	}

	// The loop still finishes a job whose caller gave up; the result lands
	// in the buffered ch and is discarded.
	select {
	case err := <-j.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue holds the read lock across the send so Close cannot close jobs
// under it. The loop keeps draining, so a full buffer only delays Close.
func (w *Worker) enqueue(ctx context.Context, j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if j.conn != nil {
			j.ch <- j.conn(j.ctx, w.db)
			continue
		}

		tx, err := w.db.BeginTx(j.ctx, nil)
		if err != nil {
			j.ch <- err
			continue
		}

		if err := j.fn(j.ctx, tx); err != nil {
			_ = tx.Rollback()
			j.ch <- err
			continue
		}

		j.ch <- tx.Commit()
	}
}
