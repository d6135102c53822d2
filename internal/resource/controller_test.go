package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	err := c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.False(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	assert.True(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestControllerUnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
	assert.Equal(t, int64(0), c.MemoryLimit())
}

func TestControllerBackground(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))

	assert.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestControllerBackgroundContextCanceled(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})
	require.NoError(t, c.AcquireBackground(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBackground(ctx))
}

func TestControllerIOSplitsOversizedRequests(t *testing.T) {
	// Burst equals the per-second budget, so a request above it must be
	// split rather than rejected.
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	require.NoError(t, c.AcquireIO(t.Context(), 3<<20))
}

func TestNilControllerIsNoop(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(10))
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.Equal(t, int64(0), c.MemoryLimit())

	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()

	require.NoError(t, c.AcquireIO(t.Context(), 1<<30))
}

func TestRateLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRateLimitedWriter(t.Context(), &buf, NewController(Config{IOLimitBytesPerSec: 1 << 20}))

	n, err := w.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", buf.String())

	// Nil controller passes through.
	buf.Reset()
	nw := NewRateLimitedWriter(t.Context(), &buf, nil)
	_, err = nw.Write([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", buf.String())
}

func TestRateLimitedReader(t *testing.T) {
	r := NewRateLimitedReader(t.Context(), bytes.NewReader([]byte("payload")), NewController(Config{IOLimitBytesPerSec: 1 << 20}))

	p := make([]byte, 4)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "payl", string(p))
}

func TestRateLimitedWriterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// Tiny budget forces the limiter to wait, which must observe the
	// canceled context.
	c := NewController(Config{IOLimitBytesPerSec: 1})
	require.NoError(t, c.AcquireIO(t.Context(), 1)) // drain the bucket

	w := NewRateLimitedWriter(ctx, &bytes.Buffer{}, c)
	_, err := w.Write([]byte("x"))
	assert.Error(t, err)
}
