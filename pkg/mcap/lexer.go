package mcap

import (
	"fmt"
	"io"

	"github.com/robocap/robocap/pkg/byteio"
)

// TokenType identifies the kind of record a Lexer's Next call returned.
// Chunk bodies are transparently expanded into their contained records by
// the lexer's caller (see unindexedIterator), not by the Lexer itself,
// which only ever yields top-level opcodes.
type TokenType OpCode

// lexerOptions controls Lexer construction. SkipMagic is set when the
// reader is already positioned past the 8-byte file magic, e.g. when
// opening a lexer at an arbitrary offset inside the summary section or a
// decompressed chunk body.
type lexerOptions struct {
	SkipMagic bool
}

// Lexer yields MCAP records one at a time from a byteio.Reader positioned
// at the start of (or just after the magic of) an MCAP data or summary
// section.
type Lexer struct {
	r    byteio.Reader
	opts lexerOptions
}

// NewLexer validates (unless skipped) the 8-byte magic at the reader's
// current position, then returns a Lexer ready to yield records.
func NewLexer(r byteio.Reader, opts lexerOptions) (*Lexer, error) {
	if !opts.SkipMagic {
		magic := make([]byte, len(Magic))
		if _, err := io.ReadFull(r, magic); err != nil {
			return nil, fmt.Errorf("mcap: read magic: %w", err)
		}
		for i := range Magic {
			if magic[i] != Magic[i] {
				return nil, ErrBadMagic
			}
		}
	}
	return &Lexer{r: r, opts: opts}, nil
}

// Next reads one record header and body. When buf is large enough it is
// reused for the body (returned as a sub-slice); otherwise a new buffer is
// allocated. Returns io.EOF when the closing magic is reached.
func (l *Lexer) Next(buf []byte) (TokenType, []byte, error) {
	var head [9]byte
	if _, err := io.ReadFull(l.r, head[:1]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("mcap: read opcode: %w", err)
	}
	op := OpCode(head[0])
	if _, err := io.ReadFull(l.r, head[1:9]); err != nil {
		if err == io.ErrUnexpectedEOF && string(head[:8]) == string(Magic) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("mcap: read %s length: %w", op, err)
	}
	length := leUint64(head[1:9])
	if length == 0 && op == OpReserved {
		return 0, nil, ErrInvalidZeroOpcode
	}
	if cap(buf) < int(length) {
		buf = make([]byte, length)
	}
	buf = buf[:length]
	if _, err := io.ReadFull(l.r, buf); err != nil {
		return 0, nil, fmt.Errorf("mcap: read %s body (%d bytes): %w", op, length, err)
	}
	return TokenType(op), buf, nil
}

// Close is a no-op: the Lexer holds no resources of its own and never
// closes r; callers that opened r close it themselves.
func (l *Lexer) Close() error { return nil }
