package mcap

import (
	"fmt"
	"io"
	"sort"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

// unindexedIterator performs a linear, front-to-back scan of the data
// section, transparently expanding chunk bodies, the way a reader must
// when no summary section exists or the caller asked for on-disk order.
// It is also the basis of RecoverInfo's best-effort reconstruction: a
// truncated or corrupt summary section never prevents reading the
// messages actually present in the data section.
type unindexedIterator struct {
	r             byteio.Reader
	lx            *Lexer
	buf           []byte
	chunkLx       *Lexer
	chunkBuf      []byte
	channels      map[uint16]*Channel
	schemas       map[uint16]*Schema
	ro            ReadOptions
	verifyCRC     bool
	done          bool
	resumeOffset  int64 // offset just past the last fully-consumed top-level record
}

// ResumeOffset reports the file offset just past the last top-level record
// the scan fully consumed, i.e. where an append-mode writer should resume
// writing (and where a truncated/corrupt tail begins).
func (it *unindexedIterator) ResumeOffset() int64 { return it.resumeOffset }

// newUnindexedIterator starts scanning immediately after the 8-byte file
// magic. verifyCRC controls whether each chunk's UncompressedCRC is
// checked against the decompressed bytes before they're parsed.
func newUnindexedIterator(r byteio.Reader, ro ReadOptions, verifyCRC bool) (*unindexedIterator, error) {
	if err := r.SeekStart(int64(len(Magic))); err != nil {
		return nil, err
	}
	lx, err := NewLexer(r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	return &unindexedIterator{
		r: r, lx: lx,
		channels:  make(map[uint16]*Channel),
		schemas:   make(map[uint16]*Schema),
		ro:        ro,
		verifyCRC: verifyCRC,
	}, nil
}

func (it *unindexedIterator) wantMessage(m *Message) bool {
	if !it.ro.inRange(m.LogTime) {
		return false
	}
	if len(it.ro.Topics) == 0 {
		return true
	}
	ch, ok := it.channels[m.ChannelID]
	if !ok {
		return false
	}
	return it.ro.wantsTopic(ch.Topic)
}

func (it *unindexedIterator) Next() (*Message, error) {
	if it.done {
		return nil, io.EOF
	}
	for {
		if it.chunkLx != nil {
			op, body, err := it.chunkLx.Next(it.chunkBuf)
			if err == io.EOF {
				it.chunkLx = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			it.chunkBuf = body
			switch OpCode(op) {
			case OpSchema:
				s, err := ParseSchema(body)
				if err != nil {
					return nil, err
				}
				it.schemas[s.ID] = s
			case OpChannel:
				c, err := ParseChannel(body)
				if err != nil {
					return nil, err
				}
				it.channels[c.ID] = c
			case OpMessage:
				m := &Message{}
				if err := m.PopulateFrom(body, true); err != nil {
					return nil, err
				}
				if it.wantMessage(m) {
					return m, nil
				}
			}
			continue
		}

		recordStart, err := it.r.Tell()
		if err != nil {
			return nil, err
		}
		op, body, err := it.lx.Next(it.buf)
		if err != nil {
			if err == io.EOF {
				it.resumeOffset = recordStart
				it.done = true
				return nil, io.EOF
			}
			return nil, err
		}
		it.buf = body
		if OpCode(op) == OpDataEnd {
			// The resume point for an append-mode writer is the start of
			// the old DataEnd record itself, not past it: the old DataEnd,
			// summary, footer, and closing magic are all discarded and
			// rewritten.
			it.resumeOffset = recordStart
			it.done = true
			return nil, io.EOF
		}
		switch OpCode(op) {
		case OpSchema:
			s, err := ParseSchema(body)
			if err != nil {
				return nil, err
			}
			it.schemas[s.ID] = s
		case OpChannel:
			c, err := ParseChannel(body)
			if err != nil {
				return nil, err
			}
			it.channels[c.ID] = c
		case OpMessage:
			m := &Message{}
			if err := m.PopulateFrom(body, true); err != nil {
				return nil, err
			}
			if it.wantMessage(m) {
				return m, nil
			}
		case OpChunk:
			chunk, err := ParseChunk(body)
			if err != nil {
				return nil, err
			}
			decompressed, err := compress.Decompress(chunk.Records, compress.Format(chunk.Compression), chunk.UncompressedSize)
			if err != nil {
				return nil, containerErr(ErrKindUnknownCompression, 0, "decompress chunk: %w", err)
			}
			if it.verifyCRC && chunk.UncompressedCRC != 0 {
				if got := crc32IEEE(decompressed); got != chunk.UncompressedCRC {
					return nil, containerErr(ErrKindChunkCRC, 0, "chunk CRC mismatch: got %08x want %08x", got, chunk.UncompressedCRC)
				}
			}
			chunkLx, err := NewLexer(byteio.NewSliceReader(decompressed), lexerOptions{SkipMagic: true})
			if err != nil {
				return nil, err
			}
			it.chunkLx = chunkLx
			it.chunkBuf = nil
		}
		pos, err := it.r.Tell()
		if err != nil {
			return nil, err
		}
		it.resumeOffset = pos
	}
}

func (it *unindexedIterator) Close() error { return nil }

// sortedIterator buffers every message from an inner iterator, sorts it by
// LogTime (ascending or descending), and replays it in order. Used when a
// caller asks for LogTimeOrder/ReverseLogTimeOrder on a file with no
// usable chunk index: correctness over streaming, since there is no index
// to merge against.
type sortedIterator struct {
	messages []*Message
	pos      int
}

func newSortedIterator(inner MessageIterator, ro ReadOptions) (*sortedIterator, error) {
	defer inner.Close()
	var messages []*Message
	for {
		m, err := inner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	reverse := ro.Order == ReverseLogTimeOrder
	sort.SliceStable(messages, func(i, j int) bool {
		if reverse {
			return messages[i].LogTime > messages[j].LogTime
		}
		return messages[i].LogTime < messages[j].LogTime
	})
	return &sortedIterator{messages: messages}, nil
}

func (it *sortedIterator) Next() (*Message, error) {
	if it.pos >= len(it.messages) {
		return nil, io.EOF
	}
	m := it.messages[it.pos]
	it.pos++
	return m, nil
}

func (it *sortedIterator) Close() error { return nil }

// RecoverInfo reconstructs an Info by linearly scanning the entire data
// section, for files whose footer or summary section is missing,
// truncated, or fails CRC verification. Schemas, channels and statistics
// are rebuilt from what the scan actually observes rather than trusted
// from a (possibly corrupt) summary. Chunk indexes are not rebuilt: the
// returned Info has no ChunkIndexes.
func RecoverInfo(r byteio.Reader) (*Info, error) {
	info, _, err := RecoverInfoAt(r)
	return info, err
}

// RecoverInfoAt does the same full scan as RecoverInfo, additionally
// reporting the offset just past the last record the scan could fully
// consume. An append-mode writer resuming a file with a missing or
// corrupt summary section truncates to this offset before continuing.
func RecoverInfoAt(r byteio.Reader) (*Info, int64, error) {
	if err := r.SeekStart(0); err != nil {
		return nil, 0, err
	}
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, 0, fmt.Errorf("mcap: read magic: %w", err)
	}
	for i := range Magic {
		if head[i] != Magic[i] {
			return nil, 0, ErrBadMagic
		}
	}

	info := &Info{
		Schemas:  make(map[uint16]*Schema),
		Channels: make(map[uint16]*Channel),
		Statistics: &Statistics{
			ChannelMessageCounts: make(map[uint16]uint64),
		},
	}

	ro := ReadOptions{}
	it, err := newUnindexedIterator(r, ro, false)
	if err != nil {
		return nil, 0, err
	}
	first := true
	for {
		m, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		info.Statistics.MessageCount++
		info.Statistics.ChannelMessageCounts[m.ChannelID]++
		if first || m.LogTime < info.Statistics.MessageStartTime {
			info.Statistics.MessageStartTime = m.LogTime
		}
		if m.LogTime > info.Statistics.MessageEndTime {
			info.Statistics.MessageEndTime = m.LogTime
		}
		first = false
	}
	for id, s := range it.schemas {
		info.Schemas[id] = s
	}
	for id, c := range it.channels {
		info.Channels[id] = c
	}
	info.Statistics.SchemaCount = uint16(len(info.Schemas))
	info.Statistics.ChannelCount = uint32(len(info.Channels))
	return info, it.ResumeOffset(), nil
}
