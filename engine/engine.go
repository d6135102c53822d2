package engine

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned by Store.Get when a key does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrClosed is returned for operations on a closed engine or store.
var ErrClosed = errors.New("engine: closed")

// Engine owns a collection of named ordered key/value namespaces.
type Engine interface {
	// Open returns the namespace, creating it on first use. Opening the
	// same namespace twice returns the same store.
	Open(namespace string) (Store, error)

	// Close releases every open namespace.
	Close() error
}

// Store is one ordered key/value namespace.
type Store interface {
	// Name returns the namespace name.
	Name() string

	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Put stores a key/value pair, replacing any existing value.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(key []byte) error

	// Cursor opens an ordered traversal over the namespace.
	// The caller must Close it.
	Cursor() (Cursor, error)
}

// Cursor traverses a namespace in ascending key order, with seek and
// reverse steps. Positioning methods report whether the cursor landed on an
// entry. Key and Value return slices owned by the cursor, valid only until
// the next positioning call or Close; callers copy to retain.
type Cursor interface {
	First() bool
	Last() bool
	Next() bool
	Prev() bool

	// Seek positions the cursor at the first key >= the argument.
	Seek(key []byte) bool

	Key() []byte
	Value() []byte

	Close() error
}

// NamespaceCloser is an optional Engine capability. Engines whose stores
// pin OS resources (file handles, mmaps) implement it so a caller can
// release a namespace before its on-disk artifact is replaced, then Open
// it again afterwards. Stores obtained before the close are dead.
type NamespaceCloser interface {
	CloseNamespace(namespace string) error
}

// EngineError wraps an opaque failure surfaced from an adapter. The core
// never retries it.
type EngineError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s %q: %v", e.Op, e.Namespace, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func engineErr(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Namespace: namespace, Err: err}
}
