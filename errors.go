package solentware

import (
	"errors"
	"fmt"

	"github.com/RogerMarsh/solentware-base-sub003/archive"
	"github.com/RogerMarsh/solentware-base-sub003/callqueue"
	"github.com/RogerMarsh/solentware-base-sub003/engine"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned for operations on a closed database.
	ErrClosed = errors.New("database closed")
)

// ConfigError indicates a specification or option set the database cannot
// be opened or used with.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.cause }

func configErr(cause error, format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...), cause: cause}
}

// translateError normalizes inner package errors at the facade boundary.
// Typed failures (*segment.CorruptError, ebm.ErrAllocationExhausted,
// *archive.IOError, *engine.EngineError) pass through untouched; callers
// match them with errors.As / errors.Is.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Typed failures pass through before the not-found check: both may wrap
	// os.ErrNotExist (a missing bundle, a missing database file) and neither
	// is a record lookup miss.
	var ioe *archive.IOError
	if errors.As(err, &ioe) {
		return err
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return err
	}

	// Not found unification.
	if errors.Is(err, engine.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// A queue that shut down mid-call means the database closed under the
	// caller.
	if errors.Is(err, callqueue.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
