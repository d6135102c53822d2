package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/RogerMarsh/solentware-base-sub003/internal/resource"
)

// Key identifies one cached payload. Store is the engine namespace, Key the
// encoded composite key within it.
type Key struct {
	Store string
	Key   string
}

// PayloadCache is an LRU cache of segment payloads bounded by total payload
// bytes.
type PayloadCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key     Key
	payload []byte
}

// NewPayloadCache creates a cache holding at most capacity payload bytes.
// If rc is non-nil, cached bytes are charged against its memory budget and
// entries that the budget rejects are simply not cached.
func NewPayloadCache(capacity int64, rc *resource.Controller) *PayloadCache {
	return &PayloadCache{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get returns the cached payload for key, if present.
func (c *PayloadCache) Get(key Key) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).payload, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches a payload. The cache retains the slice; the caller must not
// mutate it afterwards.
func (c *PayloadCache) Set(key Key, payload []byte) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)

		oldSize := int64(len(ent.Value.(*entry).payload))
		newSize := int64(len(payload))
		if newSize > oldSize {
			// Keep the old payload when the budget denies the growth.
			if !c.rc.TryAcquireMemory(newSize - oldSize) {
				return
			}
		} else if newSize < oldSize {
			c.rc.ReleaseMemory(oldSize - newSize)
		}

		c.size += newSize - oldSize
		ent.Value.(*entry).payload = payload
		c.evict()
		return
	}

	itemSize := int64(len(payload))
	if itemSize > c.capacity {
		return
	}

	// Evict locally first so released bytes are available to reacquire.
	for c.size+itemSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if !c.rc.TryAcquireMemory(itemSize) {
		return
	}

	element := c.evictList.PushFront(&entry{key, payload})
	c.items[key] = element
	c.size += itemSize
}

// Delete removes the entry for key, if present. Called on every write so a
// stale payload is never served.
func (c *PayloadCache) Delete(key Key) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Invalidate removes entries matching the predicate. Used to drop a whole
// store after a restore replaces its backing file.
func (c *PayloadCache) Invalidate(predicate func(key Key) bool) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// removeElement mutates the list, so collect first.
	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}

	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Size returns the current cached payload bytes.
func (c *PayloadCache) Size() int64 {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit and miss counts.
func (c *PayloadCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *PayloadCache) evict() {
	for c.size > c.capacity {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeElement(element)
	}
}

func (c *PayloadCache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*entry)
	delete(c.items, ent.key)
	itemSize := int64(len(ent.payload))
	c.size -= itemSize
	c.rc.ReleaseMemory(itemSize)
}
