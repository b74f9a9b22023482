package cdr

import (
	"encoding/binary"
	"math"

	"github.com/robocap/robocap/pkg/byteio"
)

// Decoder reads CDR-encoded primitives from an underlying byteio.Reader.
type Decoder struct {
	r     byteio.Reader
	order binary.ByteOrder
	pos   int64
	buf   [8]byte
}

// NewDecoder reads the 4-byte encapsulation header from r and returns a
// Decoder configured for the byte order it specifies.
func NewDecoder(r byteio.Reader) (*Decoder, error) {
	var header [4]byte
	if _, err := readFull(r, header[:]); err != nil {
		return nil, wrap("read header", err)
	}
	if header[0] != 0 {
		return nil, wrap("header", ErrBadHeader)
	}
	var order binary.ByteOrder
	switch header[1] {
	case encapsulationCDR_LE, encapsulationPLCDRLE:
		order = binary.LittleEndian
	case encapsulationCDR_BE, encapsulationPLCDRBE:
		order = binary.BigEndian
	default:
		return nil, wrap("header", ErrBadHeader)
	}
	return &Decoder{r: r, order: order}, nil
}

func readFull(r byteio.Reader, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := r.Read(p[n:])
		n += m
		if err != nil {
			if n == len(p) {
				return n, nil
			}
			return n, ErrTruncated
		}
	}
	return n, nil
}

func (d *Decoder) align(sz int64) error {
	pad := byteio.Padding(d.pos, sz)
	if pad == 0 {
		return nil
	}
	var scratch [8]byte
	if _, err := readFull(d.r, scratch[:pad]); err != nil {
		return wrap("align", err)
	}
	d.pos += pad
	return nil
}

func (d *Decoder) read(n int) ([]byte, error) {
	if _, err := readFull(d.r, d.buf[:n]); err != nil {
		return nil, wrap("read", err)
	}
	d.pos += int64(n)
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

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Char() (byte, error) { return d.Uint8() }

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Uint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	b, err := d.read(2)
	if err != nil {
		return 0, err
	}
	return d.order.Uint16(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return d.order.Uint32(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	b, err := d.read(8)
	if err != nil {
		return 0, err
	}
	return d.order.Uint64(b), nil
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// PrimitiveArray reads a contiguous run of n same-width primitives as one
// aligned block instead of n separate aligned reads, handing each element's
// raw bit pattern to store (the schema package is responsible for turning
// those bits back into its own value representation, e.g.
// math.Float64frombits). It implements the read side of the optional
// batching capability the schema compiler's grouped-field and primitive
// array/sequence decoding look for; the sequence-length uint32 itself is
// read by the caller before invoking this, since the element count isn't
// known until then.
func (d *Decoder) PrimitiveArray(n, sz int, store func(i int, bits uint64)) error {
	if n == 0 {
		return nil
	}
	if err := d.align(int64(sz)); err != nil {
		return err
	}
	buf := make([]byte, n*sz)
	if _, err := readFull(d.r, buf); err != nil {
		return wrap("primitive array", err)
	}
	d.pos += int64(len(buf))
	for i := 0; i < n; i++ {
		off := i * sz
		switch sz {
		case 1:
			store(i, uint64(buf[off]))
		case 2:
			store(i, uint64(d.order.Uint16(buf[off:off+2])))
		case 4:
			store(i, uint64(d.order.Uint32(buf[off:off+4])))
		case 8:
			store(i, d.order.Uint64(buf[off:off+8]))
		default:
			return wrap("primitive array", ErrBadWidth)
		}
	}
	return nil
}

// String reads a NUL-terminated, uint32-length-prefixed string (length
// includes the terminator).
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", wrap("string", ErrNegLength)
	}
	buf := make([]byte, n)
	if _, err := readFull(d.r, buf); err != nil {
		return "", wrap("string", err)
	}
	d.pos += int64(n)
	return string(buf[:n-1]), nil // strip NUL
}

// WString reads a UTF-16LE-encoded wide string (no terminator), decoding
// surrogate pairs.
func (d *Decoder) WString() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		u, err := d.Uint16()
		if err != nil {
			return "", err
		}
		units[i] = u
	}
	return utf16Decode(units), nil
}

func utf16Decode(units []uint16) string {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xDC00 && lo <= 0xDFFF {
				r := (rune(u-0xD800) << 10) + rune(lo-0xDC00) + 0x10000
				runes = append(runes, r)
				i++
				continue
			}
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
