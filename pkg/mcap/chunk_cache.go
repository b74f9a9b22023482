package mcap

import "container/list"

// chunkCache holds the decompressed record bytes of recently-accessed
// chunks, keyed by ChunkStartOffset, with least-recently-used eviction. An
// indexed read over a file whose chunks overlap in time revisits the same
// chunk from multiple heap entries; without this, each message read would
// redundantly decompress its whole containing chunk.
type chunkCache struct {
	capacity int
	ll       *list.List
	index    map[uint64]*list.Element
}

type chunkCacheEntry struct {
	offset uint64
	data   []byte
}

func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[uint64]*list.Element),
	}
}

func (c *chunkCache) get(offset uint64) ([]byte, bool) {
	if c == nil || c.capacity == 0 {
		return nil, false
	}
	el, ok := c.index[offset]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*chunkCacheEntry).data, true
}

func (c *chunkCache) put(offset uint64, data []byte) {
	if c == nil || c.capacity == 0 {
		return
	}
	if el, ok := c.index[offset]; ok {
		el.Value.(*chunkCacheEntry).data = data
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&chunkCacheEntry{offset: offset, data: data})
	c.index[offset] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*chunkCacheEntry).offset)
		}
	}
}
