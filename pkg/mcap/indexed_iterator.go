package mcap

import (
	"fmt"
	"io"
	"sort"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

// indexEntry is one message's position within a chunk, as read from the
// chunk's MessageIndex records.
type indexEntry struct {
	timestamp uint64
	channelID uint16
	offset    uint64
}

// chunkSlot tracks one candidate chunk's message-index entries during a
// k-way merge: loaded lazily, consumed in order, re-fed into the shared
// heap one entry at a time.
type chunkSlot struct {
	index    *ChunkIndex
	messages []indexEntry
	pos      int
}

// indexedIterator performs a summary-index-backed read in log-time (or
// reverse-log-time) order, merging overlapping chunks via rangeIndexHeap
// instead of buffering the whole file.
type indexedIterator struct {
	r      byteio.Reader
	info   *Info
	ro     ReadOptions
	cache  *chunkCache
	slots  []*chunkSlot
	heap   *rangeIndexHeap
	reverse bool
}

func newIndexedIterator(r byteio.Reader, info *Info, ro ReadOptions, cache *chunkCache) (*indexedIterator, error) {
	reverse := ro.Order == ReverseLogTimeOrder
	it := &indexedIterator{r: r, info: info, ro: ro, cache: cache, heap: newRangeIndexHeap(), reverse: reverse}

	for _, ci := range info.ChunkIndexes {
		if ro.EndTime != 0 && ci.MessageStartTime >= ro.EndTime {
			continue
		}
		if ci.MessageEndTime < ro.StartTime {
			continue
		}
		if len(ro.Topics) > 0 && !it.chunkMayContainTopic(ci) {
			continue
		}
		slot := &chunkSlot{index: ci}
		if err := it.loadIndexEntries(slot); err != nil {
			return nil, err
		}
		if len(slot.messages) == 0 {
			continue
		}
		slotIdx := len(it.slots)
		it.slots = append(it.slots, slot)
		it.pushNext(slotIdx)
	}
	return it, nil
}

// chunkMayContainTopic reports whether any of the iterator's requested
// topics maps to a channel ID present in this chunk's message index.
func (it *indexedIterator) chunkMayContainTopic(ci *ChunkIndex) bool {
	for chID := range ci.MessageIndexOffsets {
		ch, ok := it.info.Channels[chID]
		if !ok {
			continue
		}
		if it.ro.wantsTopic(ch.Topic) {
			return true
		}
	}
	return false
}

// loadIndexEntries reads the MessageIndex records for every channel this
// chunk recorded an offset for, merging their entries into one
// timestamp-sorted slice scoped to the iterator's filters.
func (it *indexedIterator) loadIndexEntries(slot *chunkSlot) error {
	channelIDs := make([]uint16, 0, len(slot.index.MessageIndexOffsets))
	for chID := range slot.index.MessageIndexOffsets {
		channelIDs = append(channelIDs, chID)
	}
	sort.Slice(channelIDs, func(i, j int) bool { return channelIDs[i] < channelIDs[j] })

	var entries []indexEntry
	for _, chID := range channelIDs {
		ch, ok := it.info.Channels[chID]
		if ok && len(it.ro.Topics) > 0 && !it.ro.wantsTopic(ch.Topic) {
			continue
		}
		offset := slot.index.MessageIndexOffsets[chID]
		if err := it.r.SeekStart(int64(offset)); err != nil {
			return err
		}
		lx, err := NewLexer(it.r, lexerOptions{SkipMagic: true})
		if err != nil {
			return err
		}
		op, body, err := lx.Next(nil)
		if err != nil {
			return fmt.Errorf("mcap: read message index at offset %d: %w", offset, err)
		}
		if OpCode(op) != OpMessageIndex {
			return containerErr(ErrKindRecordParse, int64(offset), "expected message index record, got %s", OpCode(op))
		}
		mi, err := ParseMessageIndex(body)
		if err != nil {
			return err
		}
		for _, rec := range mi.Records {
			if !it.ro.inRange(rec.Timestamp) {
				continue
			}
			entries = append(entries, indexEntry{timestamp: rec.Timestamp, channelID: chID, offset: rec.Offset})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if it.reverse {
			return entries[i].timestamp > entries[j].timestamp
		}
		return entries[i].timestamp < entries[j].timestamp
	})
	slot.messages = entries
	return nil
}

func (it *indexedIterator) pushNext(slotIdx int) {
	slot := it.slots[slotIdx]
	if slot.pos >= len(slot.messages) {
		return
	}
	e := slot.messages[slot.pos]
	it.heap.PushMessage(slotIdx, e.offset, e.timestamp, e.channelID, it.reverse)
}

// loadChunkData returns the decompressed record bytes for the chunk at
// slot, fetching them from the cache or decompressing (and, when
// verifyCRC-equivalent data is available, validating) on a miss.
func (it *indexedIterator) loadChunkData(slot *chunkSlot) ([]byte, error) {
	if data, ok := it.cache.get(slot.index.ChunkStartOffset); ok {
		return data, nil
	}
	if err := it.r.SeekStart(int64(slot.index.ChunkStartOffset)); err != nil {
		return nil, err
	}
	lx, err := NewLexer(it.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, body, err := lx.Next(nil)
	if err != nil {
		return nil, fmt.Errorf("mcap: read chunk at offset %d: %w", slot.index.ChunkStartOffset, err)
	}
	if OpCode(op) != OpChunk {
		return nil, containerErr(ErrKindRecordParse, int64(slot.index.ChunkStartOffset), "expected chunk record, got %s", OpCode(op))
	}
	chunk, err := ParseChunk(body)
	if err != nil {
		return nil, err
	}
	data, err := compress.Decompress(chunk.Records, compress.Format(chunk.Compression), chunk.UncompressedSize)
	if err != nil {
		return nil, containerErr(ErrKindUnknownCompression, 0, "decompress chunk: %w", err)
	}
	if chunk.UncompressedCRC != 0 {
		if got := crc32IEEE(data); got != chunk.UncompressedCRC {
			return nil, containerErr(ErrKindChunkCRC, int64(slot.index.ChunkStartOffset), "chunk CRC mismatch: got %08x want %08x", got, chunk.UncompressedCRC)
		}
	}
	it.cache.put(slot.index.ChunkStartOffset, data)
	return data, nil
}

func (it *indexedIterator) Next() (*Message, error) {
	pending, ok := it.heap.PopMessage()
	if !ok {
		return nil, io.EOF
	}
	slot := it.slots[pending.chunkSlot]
	slot.pos++
	it.pushNext(pending.chunkSlot)

	data, err := it.loadChunkData(slot)
	if err != nil {
		return nil, err
	}
	if pending.offsetInChunk+9 > uint64(len(data)) {
		return nil, containerErr(ErrKindTruncated, int64(pending.offsetInChunk), "message index offset out of range for chunk")
	}
	op := OpCode(data[pending.offsetInChunk])
	length := leUint64(data[pending.offsetInChunk+1 : pending.offsetInChunk+9])
	bodyStart := pending.offsetInChunk + 9
	if bodyStart+length > uint64(len(data)) {
		return nil, containerErr(ErrKindTruncated, int64(pending.offsetInChunk), "message record truncated within chunk")
	}
	if op != OpMessage {
		return nil, containerErr(ErrKindRecordParse, int64(pending.offsetInChunk), "message index points at non-message record %s", op)
	}
	m := &Message{}
	if err := m.PopulateFrom(data[bodyStart:bodyStart+length], true); err != nil {
		return nil, err
	}
	return m, nil
}

func (it *indexedIterator) Close() error { return nil }
