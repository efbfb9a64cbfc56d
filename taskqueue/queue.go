// Package taskqueue serializes work that must not overlap, such as
// conversions sharing one engine filesystem.
package taskqueue

import (
	"context"
	"sync/atomic"
)

// Serial is a single-slot FIFO queue. Waiters are admitted in arrival order
// and a waiter whose context ends leaves the queue without running.
type Serial struct {
	slot    chan struct{}
	waiting atomic.Int64
	running atomic.Bool
}

// NewSerial returns an idle queue.
func NewSerial() *Serial {
	return &Serial{slot: make(chan struct{}, 1)}
}

// Do waits for the slot, runs fn and releases the slot. If ctx ends while
// waiting, fn is not run and ctx.Err() is returned.
func (q *Serial) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()
	return fn(ctx)
}

func (q *Serial) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.waiting.Add(1)
	defer q.waiting.Add(-1)
	select {
	case q.slot <- struct{}{}:
		q.running.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Serial) release() {
	q.running.Store(false)
	<-q.slot
}

// Waiting returns the number of callers blocked in Do.
func (q *Serial) Waiting() int {
	return int(q.waiting.Load())
}

// Busy reports whether a task currently holds the slot.
func (q *Serial) Busy() bool {
	return q.running.Load()
}
