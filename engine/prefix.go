package engine

import (
	"bytes"
	"slices"
)

// NewPrefixStore returns a view of s confined to keys under prefix. Keys
// pass through with the prefix prepended; cursors see prefix-stripped keys
// and stay inside the region. An empty prefix returns s unchanged.
//
// Callers own prefix disjointness: two views of one store must use
// prefixes where neither is a prefix of the other.
func NewPrefixStore(s Store, prefix []byte) Store {
	if len(prefix) == 0 {
		return s
	}
	return &prefixStore{s: s, prefix: slices.Clone(prefix)}
}

type prefixStore struct {
	s      Store
	prefix []byte
}

func (p *prefixStore) Name() string { return p.s.Name() }

func (p *prefixStore) Get(key []byte) ([]byte, error) {
	return p.s.Get(p.wrap(key))
}

func (p *prefixStore) Put(key, value []byte) error {
	return p.s.Put(p.wrap(key), value)
}

func (p *prefixStore) Delete(key []byte) error {
	return p.s.Delete(p.wrap(key))
}

func (p *prefixStore) Cursor() (Cursor, error) {
	cur, err := p.s.Cursor()
	if err != nil {
		return nil, err
	}
	return &prefixCursor{cur: cur, prefix: p.prefix}, nil
}

func (p *prefixStore) wrap(key []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(key))
	return append(append(out, p.prefix...), key...)
}

type prefixCursor struct {
	cur    Cursor
	prefix []byte
	valid  bool
}

func (c *prefixCursor) First() bool {
	return c.check(c.cur.Seek(c.prefix))
}

func (c *prefixCursor) Last() bool {
	// Land just past the region, then step back into it. A region with no
	// upper bound (all-0xFF prefix) ends at the store's last key.
	if succ := prefixSuccessor(c.prefix); succ != nil {
		if c.cur.Seek(succ) {
			return c.check(c.cur.Prev())
		}
	}
	return c.check(c.cur.Last())
}

func (c *prefixCursor) Next() bool {
	if !c.valid {
		return c.First()
	}
	return c.check(c.cur.Next())
}

func (c *prefixCursor) Prev() bool {
	if !c.valid {
		return c.Last()
	}
	return c.check(c.cur.Prev())
}

func (c *prefixCursor) Seek(key []byte) bool {
	full := make([]byte, 0, len(c.prefix)+len(key))
	full = append(append(full, c.prefix...), key...)
	return c.check(c.cur.Seek(full))
}

func (c *prefixCursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.Key()[len(c.prefix):]
}

func (c *prefixCursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.Value()
}

func (c *prefixCursor) Close() error { return c.cur.Close() }

func (c *prefixCursor) check(ok bool) bool {
	c.valid = ok && bytes.HasPrefix(c.cur.Key(), c.prefix)
	return c.valid
}

// prefixSuccessor returns the smallest key ordered after every key with
// the prefix, or nil when no such key exists.
func prefixSuccessor(p []byte) []byte {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0xFF {
			succ := slices.Clone(p[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}
