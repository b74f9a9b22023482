// Package ros1wire implements the ROS1 message serialization wire format:
// unaligned, little-endian only, with length-prefixed strings that are not
// NUL-terminated.
package ros1wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/robocap/robocap/pkg/byteio"
)

// CodecError wraps a ROS1 wire-format violation.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string { return "ros1wire: " + e.Op + ": " + e.Err.Error() }
func (e *CodecError) Unwrap() error { return e.Err }

var ErrTruncated = errors.New("truncated ROS1 message buffer")

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Err: err}
}

// Encoder writes ROS1-encoded primitives to an underlying byteio.Writer.
// Unlike CDR, no header is written and no alignment is ever inserted.
type Encoder struct {
	w   byteio.Writer
	buf [8]byte
}

func NewEncoder(w byteio.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(p []byte) error {
	_, err := e.w.Write(p)
	return wrap("write", err)
}

func (e *Encoder) Bool(v bool) error {
	if v {
		return e.Uint8(1)
	}
	return e.Uint8(0)
}

func (e *Encoder) Int8(v int8) error   { return e.Uint8(uint8(v)) }
func (e *Encoder) Byte(v uint8) error  { return e.Uint8(v) }
func (e *Encoder) Char(v int8) error   { return e.Int8(v) }
func (e *Encoder) Uint8(v uint8) error {
	e.buf[0] = v
	return e.write(e.buf[:1])
}

func (e *Encoder) Int16(v int16) error { return e.Uint16(uint16(v)) }
func (e *Encoder) Uint16(v uint16) error {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	return e.write(e.buf[:2])
}

func (e *Encoder) Int32(v int32) error { return e.Uint32(uint32(v)) }
func (e *Encoder) Uint32(v uint32) error {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

func (e *Encoder) Int64(v int64) error { return e.Uint64(uint64(v)) }
func (e *Encoder) Uint64(v uint64) error {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	return e.write(e.buf[:8])
}

func (e *Encoder) Float32(v float32) error { return e.Uint32(math.Float32bits(v)) }
func (e *Encoder) Float64(v float64) error { return e.Uint64(math.Float64bits(v)) }

// String writes a uint32-length-prefixed string with no terminator.
func (e *Encoder) String(s string) error {
	if err := e.Uint32(uint32(len(s))); err != nil {
		return err
	}
	return e.write([]byte(s))
}

// Time writes a ROS1 time/duration value, given as nanoseconds since the
// ROS1 epoch (or nanoseconds of duration), as two little-endian int32
// fields: seconds then nanoseconds.
func (e *Encoder) Time(nanos int64) error {
	sec, nsec := splitNanos(nanos)
	if err := e.Int32(sec); err != nil {
		return err
	}
	return e.Int32(nsec)
}

func splitNanos(nanos int64) (sec, nsec int32) {
	const billion = int64(1e9)
	s := nanos / billion
	n := nanos % billion
	if n < 0 {
		n += billion
		s--
	}
	return int32(s), int32(n)
}

// Decoder reads ROS1-encoded primitives from an underlying byteio.Reader.
type Decoder struct {
	r   byteio.Reader
	buf [8]byte
}

func NewDecoder(r byteio.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) read(n int) ([]byte, error) {
	got := 0
	for got < n {
		m, err := d.r.Read(d.buf[got:n])
		got += m
		if err != nil {
			if got == n {
				break
			}
			return nil, wrap("read", ErrTruncated)
		}
	}
	return d.buf[:n], nil
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

func (d *Decoder) Byte() (uint8, error) { return d.Uint8() }
func (d *Decoder) Char() (int8, error)  { return d.Int8() }

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// String reads a uint32-length-prefixed string with no terminator.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	got := 0
	for got < int(n) {
		m, err := d.r.Read(buf[got:])
		got += m
		if err != nil {
			if got == int(n) {
				break
			}
			return "", wrap("string", ErrTruncated)
		}
	}
	return string(buf), nil
}

// Time reads a ROS1 time/duration value as two little-endian int32 fields
// and returns it as nanoseconds.
func (d *Decoder) Time() (int64, error) {
	sec, err := d.Int32()
	if err != nil {
		return 0, err
	}
	nsec, err := d.Int32()
	if err != nil {
		return 0, err
	}
	return ToNanos(sec, nsec), nil
}

// ToNanos combines ROS1 (sec, nsec) fields into a single nanosecond count.
func ToNanos(sec, nsec int32) int64 {
	return int64(sec)*1e9 + int64(nsec)
}

// FromNanos splits a nanosecond count into ROS1 (sec, nsec) fields.
func FromNanos(nanos int64) (sec, nsec int32) {
	return splitNanos(nanos)
}
