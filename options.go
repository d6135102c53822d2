package solentware

import (
	"log/slog"

	"github.com/RogerMarsh/solentware-base-sub003/ebm"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/internal/fs"
	"github.com/RogerMarsh/solentware-base-sub003/vault"
)

type options struct {
	eng              engine.Engine
	logger           *Logger
	metricsCollector MetricsCollector
	archiveDir       string
	vlt              vault.Vault
	allocation       ebm.AllocationPolicy
	cacheBytes       int64
	flushLimitBytes  int64
	serialized       bool
	fsys             fs.FileSystem
}

// Option configures Open behavior.
type Option func(*options)

// WithEngine selects the storage engine backing the database.
//
// If not set, an in-memory engine is used (engine.NewMemory). Durable
// databases pass engine.NewBolt(dir).
func WithEngine(e engine.Engine) Option {
	return func(o *options) {
		o.eng = e
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := solentware.NewJSONLogger(slog.LevelInfo)
//	db, _ := solentware.Open(spec, solentware.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &solentware.BasicMetricsCollector{}
//	db, _ := solentware.Open(spec, solentware.WithMetrics(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg latency: %dns\n", stats.PutCount, stats.PutAvgNanos)
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithArchiveDir sets the directory holding the database artifacts for
// archive purposes. Engines that expose their directory (engine.Bolt) make
// this optional; without either, deferred updates run unprotected.
func WithArchiveDir(dir string) Option {
	return func(o *options) {
		o.archiveDir = dir
	}
}

// WithVault uploads each archive off-box and lets a restore fall back to
// downloading when the local bundle is gone. Requires an archive directory.
func WithVault(v vault.Vault) Option {
	return func(o *options) {
		o.vlt = v
	}
}

// WithAllocationPolicy selects how freed record numbers are reused.
// Default ebm.LowestFree.
func WithAllocationPolicy(p ebm.AllocationPolicy) Option {
	return func(o *options) {
		o.allocation = p
	}
}

// WithCacheBytes bounds a segment payload read cache shared by every file.
// 0 disables caching.
func WithCacheBytes(n int64) Option {
	return func(o *options) {
		o.cacheBytes = n
	}
}

// WithFlushLimitBytes overrides the delta footprint that triggers an
// automatic checkpoint during a deferred update.
// Default deferred.DefaultFlushLimitBytes.
func WithFlushLimitBytes(n int64) Option {
	return func(o *options) {
		o.flushLimitBytes = n
	}
}

// WithSerializedCalls routes every operation through a single-worker queue,
// making the database safe for concurrent callers: one operation in flight,
// FIFO order. Without it the caller owns the single-writer discipline.
func WithSerializedCalls() Option {
	return func(o *options) {
		o.serialized = true
	}
}

// WithFS overrides the filesystem the archive manager works through,
// letting tests inject faults.
func WithFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		allocation:       ebm.LowestFree,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
