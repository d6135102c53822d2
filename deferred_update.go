package solentware

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/RogerMarsh/solentware-base-sub003/deferred"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
	"github.com/RogerMarsh/solentware-base-sub003/internal/cache"
)

// DeferredUpdate runs fn against a batch whose index updates are deferred
// and merged into the file's segments at checkpoints. The batch writes
// primary records immediately; index deltas accumulate in memory and flush
// when their footprint passes the configured limit, and finally at the end
// of the run.
//
// When the file's Backup policy is set and the database has an archive
// manager, the artifacts are archived before the run. On success the
// archive is deleted; on failure the artifacts are restored to their
// pre-run state before the error is returned, and a restore failure is
// joined to it. The file's stores are rebuilt after a restore.
func (db *DB) DeferredUpdate(ctx context.Context, file string, fn func(*deferred.Batch) error) error {
	start := time.Now()
	var puts, deletes int
	err := db.call(ctx, func() error {
		h, err := db.handle(file)
		if err != nil {
			return err
		}
		puts, deletes, err = db.runDeferred(ctx, file, h, fn)
		return err
	})
	err = translateError(err)
	db.metrics.RecordDeferredRun(puts, deletes, time.Since(start), err)
	db.logger.LogDeferredRun(ctx, file, puts, deletes, err)
	return err
}

func (db *DB) runDeferred(ctx context.Context, file string, h *fileHandle, fn func(*deferred.Batch) error) (int, int, error) {
	archived := false
	if db.arch != nil && h.def.Backup {
		if err := db.arch.Archive(ctx, file); err != nil {
			return 0, 0, err
		}
		archived = true
	}

	puts, deletes, runErr := db.applyDeferred(ctx, h, fn)
	if runErr == nil {
		if archived {
			if err := db.arch.DeleteArchive(ctx, file); err != nil {
				return puts, deletes, err
			}
		}
		return puts, deletes, nil
	}

	if archived {
		if restoreErr := db.restoreFile(ctx, file); restoreErr != nil {
			return puts, deletes, errors.Join(runErr, restoreErr)
		}
	}
	return puts, deletes, runErr
}

func (db *DB) applyDeferred(ctx context.Context, h *fileHandle, fn func(*deferred.Batch) error) (int, int, error) {
	opts := []deferred.Option{deferred.WithLogger(db.logger.Logger)}
	if db.flushLimit > 0 {
		opts = append(opts, deferred.WithFlushLimitBytes(db.flushLimit))
	}
	co, err := deferred.New(h.shelf, opts...)
	if err != nil {
		return 0, 0, err
	}
	if err := co.Begin(); err != nil {
		return 0, 0, err
	}

	b, err := deferred.NewBatch(co, h.records, h.primary)
	if err != nil {
		_ = co.Abort()
		return 0, 0, err
	}

	if err := fn(b); err != nil {
		_ = co.Abort()
		return b.Puts(), b.Deletes(), err
	}
	if err := co.End(ctx); err != nil {
		return b.Puts(), b.Deletes(), err
	}
	return b.Puts(), b.Deletes(), nil
}

// restoreFile puts a file's artifacts back from its archive and rebuilds
// the file's stores. Engines that pin their artifacts (engine.Bolt holds
// the namespace files open) release them first so the restore can replace
// the files underneath.
func (db *DB) restoreFile(ctx context.Context, file string) error {
	namespaces := db.spec.ArtifactNames(file)

	if nc, ok := db.eng.(engine.NamespaceCloser); ok {
		for _, ns := range namespaces {
			if err := nc.CloseNamespace(ns); err != nil {
				return err
			}
		}
	}

	if err := db.arch.Restore(ctx, file); err != nil {
		return err
	}

	// Cached payloads for the replaced artifacts are stale.
	db.cache.Invalidate(func(k cache.Key) bool {
		return slices.Contains(namespaces, k.Store)
	})

	h, err := db.openFile(file)
	if err != nil {
		return err
	}
	db.files[file] = h
	return nil
}
