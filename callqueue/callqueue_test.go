package callqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallReturnsOperationResult(t *testing.T) {
	q := New()
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Call(ctx, func() error { return nil }))

	want := errors.New("boom")
	assert.ErrorIs(t, q.Call(ctx, func() error { return want }), want)
}

func TestNilOperationRejected(t *testing.T) {
	q := New()
	defer q.Close()
	ctx := context.Background()

	require.Error(t, q.Submit(ctx, nil))
	require.Error(t, q.Call(ctx, nil))
}

func TestOperationsRunInSubmissionOrder(t *testing.T) {
	q := New()
	ctx := context.Background()

	var order []int
	for i := range 50 {
		require.NoError(t, q.Submit(ctx, func() { order = append(order, i) }))
	}
	q.Close()

	require.Len(t, order, 50)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestAtMostOneInFlight(t *testing.T) {
	q := New()
	ctx := context.Background()

	var inFlight, violations atomic.Int32
	for range 16 {
		require.NoError(t, q.Submit(ctx, func() {
			if inFlight.Add(1) != 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}))
	}
	q.Close()

	assert.Zero(t, violations.Load())
}

func TestSubmitBlocksWhenDepthReached(t *testing.T) {
	q := New()
	defer q.Close()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(ctx, func() { close(started); <-release }))
	<-started

	// One running, one queued: depth is exhausted.
	require.NoError(t, q.Submit(ctx, func() {}))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := q.Submit(short, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestCloseDrainsQueuedOperations(t *testing.T) {
	q := New()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32
	require.NoError(t, q.Submit(ctx, func() { close(started); <-release; ran.Add(1) }))
	<-started
	require.NoError(t, q.Submit(ctx, func() { ran.Add(1) }))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	q.Close()
	assert.Equal(t, int32(2), ran.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	q := New()
	q.Close()
	q.Close() // idempotent

	err := q.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, q.Call(context.Background(), func() error { return nil }), ErrClosed)
}

func TestCallAbandonsWaitOnCancel(t *testing.T) {
	q := New()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Bool
	require.NoError(t, q.Submit(ctx, func() { close(started); <-release; ran.Store(true) }))
	<-started

	// The queued call waits behind the blocked operation; cancellation
	// abandons the wait but not the operation.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Call(short, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	q.Close()
	assert.True(t, ran.Load())
}

func TestPanickingCallBecomesError(t *testing.T) {
	q := New()
	defer q.Close()
	ctx := context.Background()

	err := q.Call(ctx, func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// The worker survives.
	require.NoError(t, q.Call(ctx, func() error { return nil }))
}

func TestPanickingSubmitLeavesWorkerAlive(t *testing.T) {
	q := New()
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, func() { panic("kaboom") }))
	require.NoError(t, q.Call(ctx, func() error { return nil }))
}
