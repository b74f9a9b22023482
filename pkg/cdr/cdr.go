// Package cdr implements the Common Data Representation wire format used by
// ROS2/DDS messages: a 4-byte encapsulation header selecting byte order,
// followed by aligned primitive fields and length-prefixed strings.
package cdr

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/robocap/robocap/pkg/byteio"
)

// Endianness identifies the byte order selected by a CDR encapsulation
// header.
type Endianness byte

const (
	BigEndian    Endianness = 0x00
	LittleEndian Endianness = 0x01
)

// EncapsulationKind distinguishes plain CDR from the PL_CDR (parameter
// list) variant; this module only implements plain CDR, the common case
// for ROS2 message payloads.
const (
	encapsulationCDR_BE  = 0x00
	encapsulationCDR_LE  = 0x01
	encapsulationPLCDRBE = 0x02
	encapsulationPLCDRLE = 0x03
)

// Encoder writes CDR-encoded primitives to an underlying byteio.Writer,
// tracking position for alignment purposes relative to the start of the
// payload (i.e. immediately after the 4-byte header).
type Encoder struct {
	w     byteio.Writer
	order binary.ByteOrder
	pos   int64 // bytes written since the header
	buf   [8]byte
}

// NewEncoder writes the 4-byte little-endian CDR header to w and returns an
// Encoder for the payload that follows. Little-endian is this module's
// default encapsulation, matching the common ROS2/rmw convention.
func NewEncoder(w byteio.Writer) (*Encoder, error) {
	return newEncoder(w, LittleEndian)
}

// NewEncoderOrder writes the header with the requested byte order.
func NewEncoderOrder(w byteio.Writer, order Endianness) (*Encoder, error) {
	return newEncoder(w, order)
}

func newEncoder(w byteio.Writer, order Endianness) (*Encoder, error) {
	var header [4]byte
	if order == LittleEndian {
		header[1] = encapsulationCDR_LE
	} else {
		header[1] = encapsulationCDR_BE
	}
	if _, err := w.Write(header[:]); err != nil {
		return nil, wrap("write header", err)
	}
	bo := binary.ByteOrder(binary.BigEndian)
	if order == LittleEndian {
		bo = binary.LittleEndian
	}
	return &Encoder{w: w, order: bo}, nil
}

func (e *Encoder) align(sz int64) error {
	pad := byteio.Padding(e.pos, sz)
	if pad == 0 {
		return nil
	}
	var zeros [8]byte
	if _, err := e.w.Write(zeros[:pad]); err != nil {
		return wrap("align", err)
	}
	e.pos += pad
	return nil
}

func (e *Encoder) write(p []byte) error {
	if _, err := e.w.Write(p); err != nil {
		return wrap("write", err)
	}
	e.pos += int64(len(p))
	return nil
}

func (e *Encoder) Bool(v bool) error {
	if v {
		return e.Uint8(1)
	}
	return e.Uint8(0)
}

func (e *Encoder) Int8(v int8) error  { return e.Uint8(uint8(v)) }
func (e *Encoder) Uint8(v uint8) error {
	e.buf[0] = v
	return e.write(e.buf[:1])
}
func (e *Encoder) Char(v byte) error { return e.Uint8(v) }

func (e *Encoder) Int16(v int16) error  { return e.Uint16(uint16(v)) }
func (e *Encoder) Uint16(v uint16) error {
	if err := e.align(2); err != nil {
		return err
	}
	e.order.PutUint16(e.buf[:2], v)
	return e.write(e.buf[:2])
}

func (e *Encoder) Int32(v int32) error  { return e.Uint32(uint32(v)) }
func (e *Encoder) Uint32(v uint32) error {
	if err := e.align(4); err != nil {
		return err
	}
	e.order.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

func (e *Encoder) Int64(v int64) error  { return e.Uint64(uint64(v)) }
func (e *Encoder) Uint64(v uint64) error {
	if err := e.align(8); err != nil {
		return err
	}
	e.order.PutUint64(e.buf[:8], v)
	return e.write(e.buf[:8])
}

func (e *Encoder) Float32(v float32) error {
	return e.Uint32(math.Float32bits(v))
}

func (e *Encoder) Float64(v float64) error {
	return e.Uint64(math.Float64bits(v))
}

// PrimitiveArray writes a fixed-length run of n same-width primitives as one
// aligned, contiguous block instead of n separate aligned writes. bits(i)
// supplies the ith element's value already converted to its bit pattern
// (the schema package owns that conversion, e.g. math.Float64bits); this
// method owns only alignment and byte order. It implements the optional
// batching capability the schema compiler's "adjacent primitive grouping"
// and primitive array/sequence compilation look for.
func (e *Encoder) PrimitiveArray(n, sz int, bits func(i int) uint64) error {
	return e.writePrimitiveRun(n, sz, bits)
}

// PrimitiveSequence is PrimitiveArray for a CDR sequence: it writes the
// uint32 element count first, then the same contiguous block.
func (e *Encoder) PrimitiveSequence(n, sz int, bits func(i int) uint64) error {
	if err := e.Uint32(uint32(n)); err != nil {
		return err
	}
	return e.writePrimitiveRun(n, sz, bits)
}

func (e *Encoder) writePrimitiveRun(n, sz int, bits func(i int) uint64) error {
	if n == 0 {
		return nil
	}
	if err := e.align(int64(sz)); err != nil {
		return err
	}
	buf := make([]byte, n*sz)
	for i := 0; i < n; i++ {
		b := bits(i)
		off := i * sz
		switch sz {
		case 1:
			buf[off] = byte(b)
		case 2:
			e.order.PutUint16(buf[off:off+2], uint16(b))
		case 4:
			e.order.PutUint32(buf[off:off+4], uint32(b))
		case 8:
			e.order.PutUint64(buf[off:off+8], b)
		default:
			return wrap("primitive array", ErrBadWidth)
		}
	}
	return e.write(buf)
}

// String writes a NUL-terminated, uint32-length-prefixed string, per the
// CDR string encoding (length counts the terminating NUL).
func (e *Encoder) String(s string) error {
	if !utf8.ValidString(s) {
		return wrap("string", ErrBadUTF8)
	}
	if err := e.Uint32(uint32(len(s) + 1)); err != nil {
		return err
	}
	if err := e.write([]byte(s)); err != nil {
		return err
	}
	return e.write([]byte{0})
}

// WString writes a UTF-16LE-encoded wide string, length-prefixed in
// 16-bit-code-unit count (no terminator, per the CDR wstring rule).
func (e *Encoder) WString(s string) error {
	units := utf16Encode(s)
	if err := e.Uint32(uint32(len(units))); err != nil {
		return err
	}
	for _, u := range units {
		if err := e.Uint16(u); err != nil {
			return err
		}
	}
	return nil
}

func utf16Encode(s string) []uint16 {
	out := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}
