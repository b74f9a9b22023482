package rosbag

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/robocap/robocap/pkg/byteio"
)

// Lexer reads one bag record at a time: header_len | header | data_len |
// data. Unlike pkg/mcap's single-opcode-byte framing, a record's type is
// one of several typed fields inside its header, so Next also hands back
// the parsed header fields alongside the op and raw data.
type Lexer struct {
	r byteio.Reader
}

type lexerOptions struct {
	SkipMagic bool
}

// NewLexer wraps r, validating the 13-byte bag magic unless opts.SkipMagic
// is set (used when resuming mid-stream, e.g. inside a decompressed chunk
// or at an already-located index_pos).
func NewLexer(r byteio.Reader, opts lexerOptions) (*Lexer, error) {
	if !opts.SkipMagic {
		magic := make([]byte, len(Magic))
		if _, err := io.ReadFull(r, magic); err != nil {
			return nil, fmt.Errorf("rosbag: read magic: %w", err)
		}
		for i := range Magic {
			if magic[i] != Magic[i] {
				return nil, ErrBadMagic
			}
		}
	}
	return &Lexer{r: r}, nil
}

// Next reads one record, returning its op, parsed header fields, and raw
// data bytes.
func (lx *Lexer) Next() (Op, map[string][]byte, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(lx.r, lenBuf[:]); err != nil {
		return 0, nil, nil, err // io.EOF passes through unwrapped for callers to detect end-of-stream
	}
	headerLen := binary.LittleEndian.Uint32(lenBuf[:])
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(lx.r, header); err != nil {
		return 0, nil, nil, fmt.Errorf("rosbag: read record header: %w", err)
	}
	fields, err := parseHeaderFields(header)
	if err != nil {
		return 0, nil, nil, err
	}
	opv, ok := fields["op"]
	if !ok || len(opv) < 1 {
		return 0, nil, nil, fmt.Errorf("%w: op", ErrMissingHeaderKey)
	}
	op := Op(opv[0])

	if _, err := io.ReadFull(lx.r, lenBuf[:]); err != nil {
		return 0, nil, nil, fmt.Errorf("rosbag: read record data length: %w", err)
	}
	dataLen := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(lx.r, data); err != nil {
		return 0, nil, nil, fmt.Errorf("rosbag: read record data: %w", err)
	}
	return op, fields, data, nil
}
