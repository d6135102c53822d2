package solentware

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    putCounter     prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPut(duration time.Duration, err error) {
//	    p.putCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordPut is called after each put operation.
	// duration is the total time taken, err is nil if successful.
	RecordPut(duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordEdit is called after each edit operation.
	RecordEdit(duration time.Duration, err error)

	// RecordQuery is called after each index query.
	RecordQuery(duration time.Duration, err error)

	// RecordDeferredRun is called after each deferred-update run.
	// puts and deletes count the records the run's batch touched,
	// duration is the total time taken including archive handling.
	RecordDeferredRun(puts, deletes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)               {}
func (NoopMetricsCollector) RecordEdit(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordQuery(time.Duration, error)                {}
func (NoopMetricsCollector) RecordDeferredRun(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount           atomic.Int64
	PutErrors          atomic.Int64
	PutTotalNanos      atomic.Int64
	DeleteCount        atomic.Int64
	DeleteErrors       atomic.Int64
	EditCount          atomic.Int64
	EditErrors         atomic.Int64
	QueryCount         atomic.Int64
	QueryErrors        atomic.Int64
	QueryTotalNanos    atomic.Int64
	DeferredRunCount   atomic.Int64
	DeferredRunErrors  atomic.Int64
	DeferredRunPuts    atomic.Int64
	DeferredRunDeletes atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordEdit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEdit(duration time.Duration, err error) {
	b.EditCount.Add(1)
	if err != nil {
		b.EditErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordDeferredRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeferredRun(puts, deletes int, duration time.Duration, err error) {
	b.DeferredRunCount.Add(1)
	b.DeferredRunPuts.Add(int64(puts))
	b.DeferredRunDeletes.Add(int64(deletes))
	if err != nil {
		b.DeferredRunErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:           b.PutCount.Load(),
		PutErrors:          b.PutErrors.Load(),
		PutAvgNanos:        b.getAvgPutNanos(),
		DeleteCount:        b.DeleteCount.Load(),
		DeleteErrors:       b.DeleteErrors.Load(),
		EditCount:          b.EditCount.Load(),
		EditErrors:         b.EditErrors.Load(),
		QueryCount:         b.QueryCount.Load(),
		QueryErrors:        b.QueryErrors.Load(),
		QueryAvgNanos:      b.getAvgQueryNanos(),
		DeferredRunCount:   b.DeferredRunCount.Load(),
		DeferredRunErrors:  b.DeferredRunErrors.Load(),
		DeferredRunPuts:    b.DeferredRunPuts.Load(),
		DeferredRunDeletes: b.DeferredRunDeletes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgPutNanos() int64 {
	count := b.PutCount.Load()
	if count == 0 {
		return 0
	}
	return b.PutTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount           int64
	PutErrors          int64
	PutAvgNanos        int64
	DeleteCount        int64
	DeleteErrors       int64
	EditCount          int64
	EditErrors         int64
	QueryCount         int64
	QueryErrors        int64
	QueryAvgNanos      int64
	DeferredRunCount   int64
	DeferredRunErrors  int64
	DeferredRunPuts    int64
	DeferredRunDeletes int64
}
