package jbs

import (
	"container/list"
	"time"
)

// blockCache is a bounded LRU cache of post-commit block contents, pruned
// to a target size and max age on every CompleteJournaledWrite (spec.md
// §3.3/§4.3.6). Entries never reflect the staged bytes of an in-flight
// journaled write; those live only in the transaction's own block
// handles.
type blockCache struct {
	targetSize int
	maxAge     time.Duration

	order   *list.List // most-recently-used at the front
	entries map[uint64]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	index      uint64
	data       []byte
	lastAccess time.Time
}

func newBlockCache(targetSize int, maxAge time.Duration) *blockCache {
	return &blockCache{
		targetSize: targetSize,
		maxAge:     maxAge,
		order:      list.New(),
		entries:    make(map[uint64]*list.Element),
	}
}

func (c *blockCache) get(index uint64) ([]byte, bool) {
	elem, ok := c.entries[index]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	entry := elem.Value.(*cacheEntry)
	entry.lastAccess = time.Now()
	c.order.MoveToFront(elem)
	return entry.data, true
}

// put inserts or replaces the cached contents for index. The caller must
// pass a buffer it will not mutate afterward.
func (c *blockCache) put(index uint64, data []byte) {
	if elem, ok := c.entries[index]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.data = data
		entry.lastAccess = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{index: index, data: data, lastAccess: time.Now()}
	elem := c.order.PushFront(entry)
	c.entries[index] = elem
}

func (c *blockCache) remove(index uint64) {
	if elem, ok := c.entries[index]; ok {
		c.order.Remove(elem)
		delete(c.entries, index)
	}
}

// prune evicts entries beyond targetSize and entries older than maxAge.
func (c *blockCache) prune(targetSize int, maxAge time.Duration) {
	now := time.Now()
	for c.order.Len() > 0 {
		back := c.order.Back()
		entry := back.Value.(*cacheEntry)
		tooOld := maxAge > 0 && now.Sub(entry.lastAccess) > maxAge
		tooMany := c.order.Len() > targetSize
		if !tooOld && !tooMany {
			break
		}
		c.order.Remove(back)
		delete(c.entries, entry.index)
	}
}

func (c *blockCache) clear() {
	c.order.Init()
	c.entries = make(map[uint64]*list.Element)
}
