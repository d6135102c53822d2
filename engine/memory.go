package engine

import (
	"bytes"
	"slices"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

type kv struct {
	key   []byte
	value []byte
}

func kvLess(a, b kv) bool { return bytes.Compare(a.key, b.key) < 0 }

// Memory is a volatile Engine backed by copy-on-write B-trees. It is the
// reference adapter used in tests and for scratch databases; nothing
// reaches disk, so the archive naming contract has no artifacts to touch.
type Memory struct {
	mu     sync.Mutex
	stores map[string]*memStore
	closed bool
}

// NewMemory creates an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{stores: make(map[string]*memStore)}
}

// Open returns the namespace, creating it on first use.
func (m *Memory) Open(namespace string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, engineErr("open", namespace, ErrClosed)
	}
	if s, ok := m.stores[namespace]; ok {
		return s, nil
	}
	s := &memStore{
		name: namespace,
		tree: btree.NewG(btreeDegree, kvLess),
	}
	m.stores[namespace] = s
	return s, nil
}

// Close drops every namespace.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stores = nil
	return nil
}

type memStore struct {
	name string
	mu   sync.RWMutex
	tree *btree.BTreeG[kv]
}

func (s *memStore) Name() string { return s.name }

func (s *memStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.tree.Get(kv{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return item.value, nil
}

func (s *memStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.ReplaceOrInsert(kv{key: slices.Clone(key), value: slices.Clone(value)})
	return nil
}

func (s *memStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Delete(kv{key: key})
	return nil
}

// Cursor iterates a clone taken now; later mutation of the store does not
// disturb the traversal.
func (s *memStore) Cursor() (Cursor, error) {
	s.mu.RLock()
	snapshot := s.tree.Clone()
	s.mu.RUnlock()

	return &memCursor{tree: snapshot}, nil
}

type memCursor struct {
	tree  *btree.BTreeG[kv]
	cur   kv
	valid bool
}

func (c *memCursor) First() bool {
	item, ok := c.tree.Min()
	return c.land(item, ok)
}

func (c *memCursor) Last() bool {
	item, ok := c.tree.Max()
	return c.land(item, ok)
}

func (c *memCursor) Next() bool {
	if !c.valid {
		return c.First()
	}
	var next kv
	found := false
	c.tree.AscendGreaterOrEqual(c.cur, func(item kv) bool {
		if bytes.Equal(item.key, c.cur.key) {
			return true
		}
		next, found = item, true
		return false
	})
	return c.land(next, found)
}

func (c *memCursor) Prev() bool {
	if !c.valid {
		return c.Last()
	}
	var prev kv
	found := false
	c.tree.DescendLessOrEqual(c.cur, func(item kv) bool {
		if bytes.Equal(item.key, c.cur.key) {
			return true
		}
		prev, found = item, true
		return false
	})
	return c.land(prev, found)
}

func (c *memCursor) Seek(key []byte) bool {
	var at kv
	found := false
	c.tree.AscendGreaterOrEqual(kv{key: key}, func(item kv) bool {
		at, found = item, true
		return false
	})
	return c.land(at, found)
}

func (c *memCursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.key
}

func (c *memCursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.value
}

func (c *memCursor) Close() error {
	c.tree = nil
	c.valid = false
	return nil
}

func (c *memCursor) land(item kv, ok bool) bool {
	c.cur = item
	c.valid = ok
	return ok
}
