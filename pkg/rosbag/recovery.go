package rosbag

import (
	"fmt"
	"io"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

// unindexedIterator performs a linear, front-to-back scan of the file,
// transparently expanding chunk bodies, the way a reader must when no
// index/summary section exists or the caller explicitly asked for it to be
// skipped (WithIndex(false)). It is also the basis of RecoverInfo's
// best-effort reconstruction: a truncated or corrupt summary section never
// prevents reading the connections and messages actually present in the
// data section.
type unindexedIterator struct {
	r       byteio.Reader
	lx      *Lexer
	chunkLx *Lexer

	connections map[uint32]*Connection
	ro          ReadOptions

	done         bool
	resumeOffset int64
}

// ResumeOffset reports the file offset just past the last top-level record
// the scan fully consumed.
func (it *unindexedIterator) ResumeOffset() int64 { return it.resumeOffset }

// newUnindexedIterator starts scanning immediately after the bag magic and
// its fixed-size BagHeader record.
func newUnindexedIterator(r byteio.Reader, ro ReadOptions) (*unindexedIterator, error) {
	if err := r.SeekStart(int64(len(Magic))); err != nil {
		return nil, err
	}
	lx, err := NewLexer(r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, _, _, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("rosbag: read bag header: %w", err)
	}
	if op != OpBagHeader {
		return nil, containerErr(ErrKindRecordParse, int64(len(Magic)), "expected bag header record, got %s", op)
	}
	return &unindexedIterator{
		r:           r,
		lx:          lx,
		connections: make(map[uint32]*Connection),
		ro:          ro,
	}, nil
}

func (it *unindexedIterator) wantMessage(m *Message) bool {
	if !it.ro.inRange(m.Time) {
		return false
	}
	if len(it.ro.Topics) == 0 {
		return true
	}
	c, ok := it.connections[m.ConnectionID]
	if !ok {
		return false
	}
	return it.ro.wantsTopic(c.Topic)
}

func (it *unindexedIterator) Next() (*Message, error) {
	if it.done {
		return nil, io.EOF
	}
	for {
		if it.chunkLx != nil {
			op, fields, data, err := it.chunkLx.Next()
			if err == io.EOF {
				it.chunkLx = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			if op == OpMessageData {
				m, err := decodeMessageDataRecord(fields, data)
				if err != nil {
					return nil, err
				}
				if it.wantMessage(m) {
					return m, nil
				}
			}
			// OpIndexData records embedded in the chunk's trailing
			// wire bytes are not reachable here: they live in the data
			// section immediately *after* the Chunk record, not inside
			// its decompressed body, so the top-level scan below handles
			// them (by skipping them).
			continue
		}

		recordStart, err := it.r.Tell()
		if err != nil {
			return nil, err
		}
		op, fields, data, err := it.lx.Next()
		if err != nil {
			if err == io.EOF {
				it.resumeOffset = recordStart
				it.done = true
				return nil, io.EOF
			}
			return nil, err
		}
		switch op {
		case OpConnection:
			c, err := decodeConnectionRecord(fields, data)
			if err != nil {
				return nil, err
			}
			it.connections[c.ID] = c
		case OpMessageData:
			m, err := decodeMessageDataRecord(fields, data)
			if err != nil {
				return nil, err
			}
			if it.wantMessage(m) {
				pos, err := it.r.Tell()
				if err != nil {
					return nil, err
				}
				it.resumeOffset = pos
				return m, nil
			}
		case OpChunk:
			compression, size, err := decodeChunkHeader(fields)
			if err != nil {
				return nil, err
			}
			decompressed, err := compress.Decompress(data, compress.Format(compression), uint64(size))
			if err != nil {
				return nil, containerErr(ErrKindUnsupportedCompression, 0, "decompress chunk: %w", err)
			}
			chunkLx, err := NewLexer(byteio.NewSliceReader(decompressed), lexerOptions{SkipMagic: true})
			if err != nil {
				return nil, err
			}
			it.chunkLx = chunkLx
		case OpIndexData, OpChunkInfo:
			// Belong to the index/summary machinery, not the message
			// stream; skip and keep scanning.
		}
		pos, err := it.r.Tell()
		if err != nil {
			return nil, err
		}
		it.resumeOffset = pos
	}
}

func (it *unindexedIterator) Close() error { return nil }

// RecoverInfo reconstructs an Info by linearly scanning the entire file,
// for bags whose BagHeader.IndexPos is 0 (no index was ever written) or
// whose summary section is truncated or corrupt. Connection and
// message-count/time-range data are rebuilt from what the scan actually
// observes; ChunkInfos (and therefore indexed random access) are not
// reconstructed, since doing so would require re-deriving chunk byte
// offsets the scan doesn't track in the same way a writer does.
func RecoverInfo(r byteio.Reader) (*Info, error) {
	if err := r.SeekStart(0); err != nil {
		return nil, err
	}
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("rosbag: read magic: %w", err)
	}
	for i := range Magic {
		if magic[i] != Magic[i] {
			return nil, ErrBadMagic
		}
	}

	info := &Info{Connections: make(map[uint32]*Connection)}
	it, err := newUnindexedIterator(r, ReadOptions{})
	if err != nil {
		return nil, err
	}
	first := true
	for {
		m, err := it.Next()
		if err != nil {
			// io.EOF, or a truncated/corrupt tail: keep what was read so far.
			break
		}
		info.MessageCount++
		if first || m.Time < info.MessageStartTime {
			info.MessageStartTime = m.Time
		}
		if m.Time > info.MessageEndTime {
			info.MessageEndTime = m.Time
		}
		first = false
	}
	for id, c := range it.connections {
		info.Connections[id] = c
	}
	info.Header = &BagHeader{ConnCount: uint32(len(info.Connections))}
	return info, nil
}
