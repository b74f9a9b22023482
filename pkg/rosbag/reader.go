package rosbag

import (
	"fmt"
	"io"

	"github.com/robocap/robocap/pkg/byteio"
)

// MessageIterator yields Message records in file order (or, when the
// iterator is index-backed, in whatever order Messages was asked for).
// Next returns io.EOF once exhausted.
type MessageIterator interface {
	Next() (*Message, error)
	Close() error
}

// Reader provides summary-backed random access and linear scanning over a
// ROS1 bag file.
type Reader struct {
	r    byteio.Reader
	info *Info
}

// NewReader wraps r for reading, validating the bag magic. It does not
// parse the bag header or summary section; call Info or Messages to do so.
func NewReader(r byteio.Reader) (*Reader, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("rosbag: read magic: %w", err)
	}
	for i := range Magic {
		if magic[i] != Magic[i] {
			return nil, ErrBadMagic
		}
	}
	return &Reader{r: r}, nil
}

// Info parses (and caches) the BagHeader record and, if the bag was written
// with an index (IndexPos != 0), the trailing connection/chunk-info summary
// section. An IndexPos of 0 is a legitimate, if unindexed, bag; callers
// should fall back to a linear scan (Messages with WithIndex(false), or
// RecoverInfo) in that case.
func (r *Reader) Info() (*Info, error) {
	if r.info != nil {
		return r.info, nil
	}
	if err := r.r.SeekStart(int64(len(Magic))); err != nil {
		return nil, err
	}
	lx, err := NewLexer(r.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, fields, _, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("rosbag: read bag header: %w", err)
	}
	if op != OpBagHeader {
		return nil, containerErr(ErrKindRecordParse, int64(len(Magic)), "expected bag header record, got %s", op)
	}
	bh, err := decodeBagHeaderRecord(fields)
	if err != nil {
		return nil, err
	}

	info := &Info{Header: bh, Connections: make(map[uint32]*Connection)}
	if bh.IndexPos != 0 {
		if err := r.parseSummary(info, bh); err != nil {
			return nil, err
		}
	}
	r.info = info
	return info, nil
}

// parseSummary scans the connection/chunk-info summary section located at
// bh.IndexPos through EOF.
func (r *Reader) parseSummary(info *Info, bh *BagHeader) error {
	if err := r.r.SeekStart(int64(bh.IndexPos)); err != nil {
		return err
	}
	lx, err := NewLexer(r.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return err
	}
	for {
		op, fields, data, err := lx.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		switch op {
		case OpConnection:
			c, err := decodeConnectionRecord(fields, data)
			if err != nil {
				return err
			}
			info.Connections[c.ID] = c
		case OpChunkInfo:
			ci, err := decodeChunkInfoRecord(fields, data)
			if err != nil {
				return err
			}
			first := len(info.ChunkInfos) == 0
			info.ChunkInfos = append(info.ChunkInfos, ci)
			for _, n := range ci.ConnectionCounts {
				info.MessageCount += uint64(n)
			}
			if first || ci.StartTime < info.MessageStartTime {
				info.MessageStartTime = ci.StartTime
			}
			if ci.EndTime > info.MessageEndTime {
				info.MessageEndTime = ci.EndTime
			}
		}
	}
	return nil
}

// Messages returns an iterator over the bag's messages. When the bag
// carries a usable index and the caller hasn't opted out via
// WithIndex(false), the index is used to seek directly to each relevant
// chunk; otherwise every record in the file is scanned in order.
func (r *Reader) Messages(opts ...ReadOpt) (MessageIterator, error) {
	ro := buildReadOptions(opts...)
	info, err := r.Info()
	if err != nil {
		info = nil // header missing/corrupt: fall through to linear scan
	}

	useIndex := info != nil && info.CanReadUsingIndex()
	if ro.UseIndex != nil {
		useIndex = *ro.UseIndex && info != nil
	}

	if useIndex {
		return newIndexedIterator(r.r, info, ro)
	}
	return newUnindexedIterator(r.r, ro)
}
