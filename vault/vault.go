package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a named object does not exist in the vault.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Vault is off-box storage for archive bundles and guard files.
//
// Objects are written whole and never modified in place; a Put under an
// existing name replaces the previous object. Implementations must be safe
// for concurrent use.
type Vault interface {
	// Put streams an object into the vault under name. size is the exact
	// number of bytes r will yield, or -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get opens the named object for reading. The caller owns the returned
	// reader and must close it.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the named object. Deleting an absent object is a no-op.
	Delete(ctx context.Context, name string) error

	// List returns the names of all objects with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Memory is an in-memory Vault for tests.
// The zero value is ready to use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put reads r to completion and stores the bytes under name.
// When size is non-negative the byte count is verified against it.
func (m *Memory) Put(_ context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("vault: put %q: %w", name, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("vault: put %q: got %d bytes, want %d", name, len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[name] = data
	return nil
}

// Get returns a reader over the stored bytes.
func (m *Memory) Get(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("vault: get %q: %w", name, ErrNotFound)
	}

	// Copy so later Puts cannot mutate an open reader.
	copied := make([]byte, len(data))
	copy(copied, data)

	return io.NopCloser(bytes.NewReader(copied)), nil
}

// Delete removes the named object. Absent names are ignored.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, name)
	return nil
}

// List returns all stored names with the given prefix, sorted.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.objects)
}
