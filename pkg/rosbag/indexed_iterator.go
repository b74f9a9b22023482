package rosbag

import (
	"fmt"
	"io"
	"sort"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

// planEntry locates one message the indexed iterator intends to return:
// which chunk it lives in, and its offset within that chunk's decompressed
// record bytes (as read from the chunk's trailing IndexData records).
type planEntry struct {
	chunkIdx int
	time     uint64
	offset   uint32
}

// indexedIterator performs a summary-index-backed read, seeking directly to
// the chunks a caller's time/topic filters select rather than scanning the
// whole file. The full plan is built up front (one IndexData pass per
// selected chunk) and sorted once; chunk bodies themselves are decompressed
// lazily, one at a time, as Next reaches them.
type indexedIterator struct {
	r    byteio.Reader
	info *Info
	ro   ReadOptions

	plan []planEntry
	pos  int

	curChunkIdx int
	curChunk    []byte
	haveChunk   bool
}

func newIndexedIterator(r byteio.Reader, info *Info, ro ReadOptions) (*indexedIterator, error) {
	it := &indexedIterator{r: r, info: info, ro: ro, curChunkIdx: -1}
	for idx, ci := range info.ChunkInfos {
		if ro.EndTime != 0 && ci.StartTime >= ro.EndTime {
			continue
		}
		if ci.EndTime < ro.StartTime {
			continue
		}
		if !it.chunkMayContainTopic(ci) {
			continue
		}
		entries, err := it.loadChunkIndexEntries(idx, ci)
		if err != nil {
			return nil, err
		}
		it.plan = append(it.plan, entries...)
	}

	reverse := ro.Order == ReverseLogTimeOrder
	sort.SliceStable(it.plan, func(i, j int) bool {
		if reverse {
			return it.plan[i].time > it.plan[j].time
		}
		return it.plan[i].time < it.plan[j].time
	})
	return it, nil
}

// chunkMayContainTopic reports whether any of the iterator's requested
// topics maps to a connection ID this chunk's summary recorded a count for.
func (it *indexedIterator) chunkMayContainTopic(ci *ChunkInfo) bool {
	if len(it.ro.Topics) == 0 {
		return true
	}
	for connID := range ci.ConnectionCounts {
		if c, ok := it.info.Connections[connID]; ok && it.ro.wantsTopic(c.Topic) {
			return true
		}
	}
	return false
}

// loadChunkIndexEntries seeks to the chunk at ci.ChunkPos, skips past its
// Chunk record without decompressing it, and reads the IndexData records
// immediately following — one per connection ci.ConnectionCounts names.
func (it *indexedIterator) loadChunkIndexEntries(idx int, ci *ChunkInfo) ([]planEntry, error) {
	if err := it.r.SeekStart(int64(ci.ChunkPos)); err != nil {
		return nil, err
	}
	lx, err := NewLexer(it.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, _, _, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("rosbag: read chunk at offset %d: %w", ci.ChunkPos, err)
	}
	if op != OpChunk {
		return nil, containerErr(ErrKindRecordParse, int64(ci.ChunkPos), "expected chunk record, got %s", op)
	}

	var entries []planEntry
	for range ci.ConnectionCounts {
		iop, ifields, idata, err := lx.Next()
		if err != nil {
			return nil, fmt.Errorf("rosbag: read chunk index data: %w", err)
		}
		if iop != OpIndexData {
			return nil, containerErr(ErrKindRecordParse, int64(ci.ChunkPos), "expected index data record, got %s", iop)
		}
		id, err := decodeIndexDataRecord(ifields, idata)
		if err != nil {
			return nil, err
		}
		if len(it.ro.Topics) > 0 {
			c, ok := it.info.Connections[id.ConnectionID]
			if !ok || !it.ro.wantsTopic(c.Topic) {
				continue
			}
		}
		for _, e := range id.Entries {
			if !it.ro.inRange(e.Time) {
				continue
			}
			entries = append(entries, planEntry{chunkIdx: idx, time: e.Time, offset: e.Offset})
		}
	}
	return entries, nil
}

// loadChunkData decompresses and returns the chunk at info.ChunkInfos[idx],
// reusing the most recently decompressed chunk when consecutive plan
// entries land in the same one.
func (it *indexedIterator) loadChunkData(idx int) ([]byte, error) {
	if it.haveChunk && it.curChunkIdx == idx {
		return it.curChunk, nil
	}
	ci := it.info.ChunkInfos[idx]
	if err := it.r.SeekStart(int64(ci.ChunkPos)); err != nil {
		return nil, err
	}
	lx, err := NewLexer(it.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, fields, data, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("rosbag: read chunk at offset %d: %w", ci.ChunkPos, err)
	}
	if op != OpChunk {
		return nil, containerErr(ErrKindRecordParse, int64(ci.ChunkPos), "expected chunk record, got %s", op)
	}
	compression, size, err := decodeChunkHeader(fields)
	if err != nil {
		return nil, err
	}
	decompressed, err := compress.Decompress(data, compress.Format(compression), uint64(size))
	if err != nil {
		return nil, containerErr(ErrKindTruncated, int64(ci.ChunkPos), "decompress chunk: %w", err)
	}
	it.curChunkIdx = idx
	it.curChunk = decompressed
	it.haveChunk = true
	return decompressed, nil
}

func (it *indexedIterator) Next() (*Message, error) {
	if it.pos >= len(it.plan) {
		return nil, io.EOF
	}
	e := it.plan[it.pos]
	it.pos++

	data, err := it.loadChunkData(e.chunkIdx)
	if err != nil {
		return nil, err
	}
	if int(e.offset) >= len(data) {
		return nil, containerErr(ErrKindTruncated, int64(e.offset), "index entry offset out of range for chunk")
	}
	lx, err := NewLexer(byteio.NewSliceReader(data[e.offset:]), lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, fields, msgData, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("rosbag: read message at chunk offset %d: %w", e.offset, err)
	}
	if op != OpMessageData {
		return nil, containerErr(ErrKindRecordParse, int64(e.offset), "index entry points at non-message record %s", op)
	}
	return decodeMessageDataRecord(fields, msgData)
}

func (it *indexedIterator) Close() error { return nil }
