package engine

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("data")

// Bolt is a file-backed Engine. Every namespace lives in its own bbolt
// database file named exactly after the namespace, so the on-disk directory
// listing matches the archive naming contract artifact for artifact.
type Bolt struct {
	dir    string
	mu     sync.Mutex
	stores map[string]*boltStore
	closed bool
}

// NewBolt creates an engine whose namespace files live under dir.
func NewBolt(dir string) *Bolt {
	return &Bolt{
		dir:    dir,
		stores: make(map[string]*boltStore),
	}
}

// Dir returns the directory holding the namespace files.
func (b *Bolt) Dir() string { return b.dir }

// Open returns the namespace, creating its database file on first use.
func (b *Bolt) Open(namespace string) (Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, engineErr("open", namespace, ErrClosed)
	}
	if s, ok := b.stores[namespace]; ok {
		return s, nil
	}

	db, err := bolt.Open(filepath.Join(b.dir, namespace), 0o600, nil)
	if err != nil {
		return nil, engineErr("open", namespace, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, engineErr("open", namespace, err)
	}

	s := &boltStore{name: namespace, db: db}
	b.stores[namespace] = s
	return s, nil
}

// CloseNamespace releases the namespace's file handle and mmap. Stores
// obtained before the close are dead; Open the namespace again to continue.
func (b *Bolt) CloseNamespace(namespace string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stores[namespace]
	if !ok {
		return nil
	}
	delete(b.stores, namespace)
	return s.close()
}

// Close releases every open namespace.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	var firstErr error
	for name, s := range b.stores {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = engineErr("close", name, err)
		}
	}
	b.stores = nil
	return firstErr
}

type boltStore struct {
	name   string
	db     *bolt.DB
	closed atomic.Bool
}

func (s *boltStore) close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *boltStore) Name() string { return s.name }

func (s *boltStore) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, engineErr("get", s.name, ErrClosed)
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, engineErr("get", s.name, err)
	}
	if value == nil {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *boltStore) Put(key, value []byte) error {
	if s.closed.Load() {
		return engineErr("put", s.name, ErrClosed)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
	return engineErr("put", s.name, err)
}

func (s *boltStore) Delete(key []byte) error {
	if s.closed.Load() {
		return engineErr("delete", s.name, ErrClosed)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
	return engineErr("delete", s.name, err)
}

// Cursor holds a read transaction until Close. Keys and values point into
// the database mmap and stay valid for the cursor's lifetime.
func (s *boltStore) Cursor() (Cursor, error) {
	if s.closed.Load() {
		return nil, engineErr("cursor", s.name, ErrClosed)
	}

	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, engineErr("cursor", s.name, err)
	}
	return &boltCursor{
		tx:     tx,
		cursor: tx.Bucket(boltBucket).Cursor(),
	}, nil
}

type boltCursor struct {
	tx         *bolt.Tx
	cursor     *bolt.Cursor
	key, value []byte
	positioned bool
}

func (c *boltCursor) First() bool { return c.land(c.cursor.First()) }
func (c *boltCursor) Last() bool  { return c.land(c.cursor.Last()) }

func (c *boltCursor) Next() bool {
	if !c.positioned {
		return c.First()
	}
	return c.land(c.cursor.Next())
}

func (c *boltCursor) Prev() bool {
	if !c.positioned {
		return c.Last()
	}
	return c.land(c.cursor.Prev())
}

func (c *boltCursor) Seek(key []byte) bool { return c.land(c.cursor.Seek(key)) }

func (c *boltCursor) Key() []byte   { return c.key }
func (c *boltCursor) Value() []byte { return c.value }

func (c *boltCursor) Close() error {
	c.key, c.value = nil, nil
	c.positioned = false
	return c.tx.Rollback()
}

func (c *boltCursor) land(key, value []byte) bool {
	c.key, c.value = key, value
	c.positioned = true
	if key == nil {
		c.value = nil
		return false
	}
	return true
}
