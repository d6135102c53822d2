// Package resource implements the Controller for global limits and governance.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: track and limit bytes held by payload caches (non-blocking, fail-fast)
//   - Concurrency: limit background workers (archive verification, vault uploads)
//   - IO: rate-limit archive streaming to avoid starving foreground access
//
// # Memory Accounting
//
// Memory tracking uses a weighted semaphore for hard limits and an atomic
// counter for usage. TryAcquireMemory never blocks; it reports false when the
// limit would be exceeded and the caller decides what to skip:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if rc.TryAcquireMemory(int64(len(payload))) {
//	    defer rc.ReleaseMemory(int64(len(payload)))
//	    // cache it
//	}
//
// # Background Worker Limits
//
// Limits concurrent background operations (bundle verification, uploads):
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # IO Rate Limiting
//
// Token bucket limiter for archive streaming so bulk copies do not saturate
// the disk:
//
//	w := resource.NewRateLimitedWriter(ctx, f, rc)
//	_, err := io.Copy(w, bundle)
//
// # Nil Safety
//
// All methods handle a nil *Controller gracefully and become no-ops, so
// resource limiting stays optional without nil checks at every call site.
package resource
