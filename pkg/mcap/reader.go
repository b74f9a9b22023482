package mcap

import (
	"fmt"
	"io"

	"github.com/robocap/robocap/pkg/byteio"
)

// footerTrailerSize is the fixed size of the closing Footer record (9-byte
// head + 20-byte body) plus the closing magic, letting Info locate the
// footer without a forward scan.
const footerTrailerSize = 9 + 8 + 8 + 4 + 8

// MessageIterator yields Message records in whatever order its producing
// Reader.Messages call configured. Next returns io.EOF once exhausted.
type MessageIterator interface {
	Next() (*Message, error)
	Close() error
}

// Reader provides summary-backed random access and linear scanning over an
// MCAP file.
type Reader struct {
	r     byteio.Reader
	info  *Info
	cache *chunkCache
}

// NewReader wraps r for reading. It does not scan the file; call Info or
// Messages to do so.
func NewReader(r byteio.Reader) (*Reader, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("mcap: read magic: %w", err)
	}
	for i := range Magic {
		if head[i] != Magic[i] {
			return nil, ErrBadMagic
		}
	}
	return &Reader{r: r}, nil
}

// Info parses (and caches) the summary section: schemas, channels,
// statistics, and the indexes needed for random access. If the footer or
// summary section is missing or malformed, callers should fall back to
// RecoverInfo, which reconstructs the same structure via a full linear
// scan.
func (r *Reader) Info() (*Info, error) {
	if r.info != nil {
		return r.info, nil
	}
	size, err := r.r.Size()
	if err != nil {
		return nil, err
	}
	if size < footerTrailerSize {
		return nil, containerErr(ErrKindTruncated, size, "file too small to contain a footer")
	}
	if err := r.r.SeekEnd(-footerTrailerSize); err != nil {
		return nil, err
	}
	var head [9]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		return nil, fmt.Errorf("mcap: read footer head: %w", err)
	}
	if OpCode(head[0]) != OpFooter {
		return nil, containerErr(ErrKindMagic, size-footerTrailerSize, "%w: expected footer opcode, got %s", ErrTruncatedFooter, OpCode(head[0]))
	}
	body := make([]byte, 20)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, fmt.Errorf("mcap: read footer body: %w", err)
	}
	footer, err := ParseFooter(body)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Schemas:  make(map[uint16]*Schema),
		Channels: make(map[uint16]*Channel),
		Footer:   footer,
	}
	if err := r.parseSummary(info, footer); err != nil {
		return nil, err
	}
	r.info = info
	return info, nil
}

// parseSummary scans the summary section (footer.SummaryStart through
// footer.SummaryOffsetStart, or through the footer itself when no summary
// offsets were written) dispatching each record into info.
func (r *Reader) parseSummary(info *Info, footer *Footer) error {
	if footer.SummaryStart == 0 {
		return nil // no summary section; caller should use RecoverInfo or a linear scan
	}
	if err := r.r.SeekStart(int64(footer.SummaryStart)); err != nil {
		return err
	}
	lx, err := NewLexer(r.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return err
	}
	limit := footer.SummaryOffsetStart
	var buf []byte
	for {
		if limit != 0 {
			pos, err := r.r.Tell()
			if err != nil {
				return err
			}
			if uint64(pos) >= limit {
				break
			}
		}
		op, body, err := lx.Next(buf)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		buf = body
		switch OpCode(op) {
		case OpSchema:
			s, err := ParseSchema(body)
			if err != nil {
				return err
			}
			info.Schemas[s.ID] = s
		case OpChannel:
			c, err := ParseChannel(body)
			if err != nil {
				return err
			}
			info.Channels[c.ID] = c
		case OpStatistics:
			st, err := ParseStatistics(body)
			if err != nil {
				return err
			}
			info.Statistics = st
		case OpChunkIndex:
			ci, err := ParseChunkIndex(body)
			if err != nil {
				return err
			}
			info.ChunkIndexes = append(info.ChunkIndexes, ci)
		case OpAttachmentIndex:
			ai, err := ParseAttachmentIndex(body)
			if err != nil {
				return err
			}
			info.AttachmentIndexes = append(info.AttachmentIndexes, ai)
		case OpMetadataIndex:
			mi, err := ParseMetadataIndex(body)
			if err != nil {
				return err
			}
			info.MetadataIndexes = append(info.MetadataIndexes, mi)
		case OpSummaryOffset, OpFooter:
			// not needed to serve Info
		}
	}
	if footer.SummaryStart != 0 {
		// Header record isn't in the summary but repeated schema/channel
		// records may be absent when the writer skipped them; nothing
		// further to do here.
		_ = struct{}{}
	}
	return nil
}

// Messages returns an iterator over the file's messages in the order
// configured by opts. When the requested order needs random access
// (LogTimeOrder, ReverseLogTimeOrder) and the file carries a usable chunk
// index, the iterator performs a k-way merge directly against the index;
// otherwise it falls back to a full linear scan, buffering and sorting in
// memory when an order other than on-disk order was requested.
func (r *Reader) Messages(opts ...ReadOpt) (MessageIterator, error) {
	ro := buildReadOptions(opts...)
	info, err := r.Info()
	if err != nil {
		info = nil // summary missing/corrupt: fall through to linear scan
	}

	useIndex := info != nil && info.CanReadUsingIndex() && ro.Order != FileOrder
	if ro.UseIndex != nil {
		useIndex = *ro.UseIndex && info != nil
	}

	if useIndex {
		if r.cache == nil {
			r.cache = newChunkCache(ro.ChunkCacheSize)
		}
		return newIndexedIterator(r.r, info, ro, r.cache)
	}

	it, err := newUnindexedIterator(r.r, ro, true)
	if err != nil {
		return nil, err
	}
	if ro.Order == FileOrder {
		return it, nil
	}
	return newSortedIterator(it, ro)
}

// Attachment seeks to the Attachment record located by ai and returns a
// streaming AttachmentReader over it. Unlike Messages, which goes through
// the Lexer (and so fully buffers each record body), this reads the fixed
// header fields directly off the underlying reader and leaves the data
// section unconsumed, so callers can stream an attachment too large to hold
// in memory whole via AttachmentReader.Data.
func (r *Reader) Attachment(ai *AttachmentIndex) (*AttachmentReader, error) {
	if err := r.r.SeekStart(int64(ai.Offset)); err != nil {
		return nil, err
	}
	var head [9]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		return nil, fmt.Errorf("mcap: read attachment record head: %w", err)
	}
	if OpCode(head[0]) != OpAttachment {
		return nil, containerErr(ErrKindRecordParse, int64(ai.Offset),
			"expected attachment record, got %s", OpCode(head[0]))
	}
	return parseAttachmentReader(r.r, true)
}

// Metadata seeks to and parses the Metadata record located by mi. Unlike
// Attachment, metadata is arbitrary key-value text and small by convention,
// so it's read fully through the Lexer rather than streamed.
func (r *Reader) Metadata(mi *MetadataIndex) (*Metadata, error) {
	if err := r.r.SeekStart(int64(mi.Offset)); err != nil {
		return nil, err
	}
	lx, err := NewLexer(r.r, lexerOptions{SkipMagic: true})
	if err != nil {
		return nil, err
	}
	op, body, err := lx.Next(nil)
	if err != nil {
		return nil, fmt.Errorf("mcap: read metadata at offset %d: %w", mi.Offset, err)
	}
	if OpCode(op) != OpMetadata {
		return nil, containerErr(ErrKindRecordParse, int64(mi.Offset),
			"expected metadata record, got %s", OpCode(op))
	}
	return ParseMetadata(body)
}
