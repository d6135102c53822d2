// Package callqueue serializes operations onto one worker goroutine.
//
// Some storage engines tolerate exactly one caller at a time on a
// connection. Queue enforces that discipline: a single worker executes
// submitted operations strictly in arrival order, with at most one queued
// behind the one running. Shutdown is owned and awaited: Close stops
// intake, lets the running and queued operations finish, and returns only
// after the worker has exited.
package callqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed reports a submission after shutdown began.
var ErrClosed = errors.New("callqueue: queue closed")

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger for recovered operation panics. Nil disables
// logging.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue runs operations one at a time on a dedicated worker goroutine.
// Methods are safe for concurrent use. Close must not be called from a
// queued operation.
type Queue struct {
	mu     sync.RWMutex
	ops    chan func()
	closed bool

	done   chan struct{}
	logger *slog.Logger
}

// New starts the worker. The intake buffer holds exactly one operation, so
// a submitter blocks once one operation is running and another is waiting.
func New(opts ...Option) *Queue {
	q := &Queue{
		ops:  make(chan func(), 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for op := range q.ops {
		q.exec(op)
	}
}

// exec shields the worker from a panicking operation; a dead worker would
// strand every later submitter.
func (q *Queue) exec(op func()) {
	defer func() {
		if r := recover(); r != nil {
			if q.logger != nil {
				q.logger.Error("queued operation panicked",
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}
	}()
	op()
}

// Submit enqueues op and returns without awaiting it. It blocks while the
// queue is full, until ctx is done, and fails with ErrClosed once shutdown
// has begun. A submitted operation always runs; cancellation only stops
// the wait for a slot.
func (q *Queue) Submit(ctx context.Context, op func()) error {
	if op == nil {
		return errors.New("callqueue: nil operation")
	}

	// Submitters hold the read side during the blocking send, so Close
	// cannot close the channel out from under them.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call enqueues op and awaits its result. If ctx ends first, Call returns
// early with the context error while the operation still runs to
// completion on the worker.
func (q *Queue) Call(ctx context.Context, op func() error) error {
	if op == nil {
		return errors.New("callqueue: nil operation")
	}

	errCh := make(chan error, 1)
	err := q.Submit(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("callqueue: operation panicked: %v", r)
			}
		}()
		errCh <- op()
	})
	if err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake, lets the running and already-queued operations
// finish, and awaits the worker. Idempotent; the queue is permanently
// unusable afterwards.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ops)
	}
	q.mu.Unlock()

	<-q.done
}
