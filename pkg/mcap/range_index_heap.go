package mcap

import "container/heap"

// pendingMessage is one message-index entry paired with the chunk slot it
// was loaded from, ordered by timestamp for the k-way merge across
// overlapping chunks.
type pendingMessage struct {
	timestamp      uint64
	chunkSlot      int
	offsetInChunk  uint64
	channelID      uint16
	reverse        bool
}

// rangeIndexHeap performs the k-way merge the indexed reader needs when
// chunks overlap in time: message-index entries are pushed with
// PushMessage, and PopMessage always returns the next message in the
// iterator's configured order.
type rangeIndexHeap struct {
	items []pendingMessage
}

func newRangeIndexHeap() *rangeIndexHeap {
	h := &rangeIndexHeap{}
	heap.Init(h)
	return h
}

func (h *rangeIndexHeap) Len() int { return len(h.items) }

func (h *rangeIndexHeap) Less(i, j int) bool {
	if h.items[i].reverse {
		return h.items[i].timestamp > h.items[j].timestamp
	}
	return h.items[i].timestamp < h.items[j].timestamp
}

func (h *rangeIndexHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *rangeIndexHeap) Push(x any) { h.items = append(h.items, x.(pendingMessage)) }

func (h *rangeIndexHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// PushMessage inserts a message from chunkSlot at offsetInChunk with the
// given timestamp, maintaining heap order.
func (h *rangeIndexHeap) PushMessage(chunkSlot int, offsetInChunk uint64, timestamp uint64, channelID uint16, reverse bool) {
	heap.Push(h, pendingMessage{
		timestamp: timestamp, chunkSlot: chunkSlot, offsetInChunk: offsetInChunk,
		channelID: channelID, reverse: reverse,
	})
}

// PopMessage removes and returns the next message in order, and reports
// whether the heap was non-empty.
func (h *rangeIndexHeap) PopMessage() (pendingMessage, bool) {
	if h.Len() == 0 {
		return pendingMessage{}, false
	}
	return heap.Pop(h).(pendingMessage), true
}
