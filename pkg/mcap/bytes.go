package mcap

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
)

func leUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func leUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func getUint16(buf []byte, offset int) (uint16, int, error) {
	if offset > len(buf)-2 {
		return 0, 0, io.ErrShortBuffer
	}
	return leUint16(buf[offset:]), offset + 2, nil
}

func getUint32(buf []byte, offset int) (uint32, int, error) {
	if offset > len(buf)-4 {
		return 0, 0, io.ErrShortBuffer
	}
	return leUint32(buf[offset:]), offset + 4, nil
}

func getUint64(buf []byte, offset int) (uint64, int, error) {
	if offset > len(buf)-8 {
		return 0, 0, io.ErrShortBuffer
	}
	return leUint64(buf[offset:]), offset + 8, nil
}

func getPrefixedBytes(buf []byte, offset int) ([]byte, int, error) {
	n, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, 0, err
	}
	end := offset + int(n)
	if n > math.MaxInt32 || end > len(buf) || end < offset {
		return nil, 0, io.ErrShortBuffer
	}
	return buf[offset:end], end, nil
}

func getPrefixedString(buf []byte, offset int) (string, int, error) {
	b, offset, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return "", 0, err
	}
	return string(b), offset, nil
}

// getPrefixedMap reads a uint32-prefixed sequence of key/value string pairs
// occupying exactly the prefixed byte length (the MCAP "Map<string,
// string>" wire shape).
func getPrefixedMap(buf []byte, offset int) (map[string]string, int, error) {
	byteLen, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, 0, err
	}
	end := offset + int(byteLen)
	if end > len(buf) {
		return nil, 0, io.ErrShortBuffer
	}
	m := make(map[string]string)
	for offset < end {
		var k, v string
		k, offset, err = getPrefixedString(buf, offset)
		if err != nil {
			return nil, 0, err
		}
		v, offset, err = getPrefixedString(buf, offset)
		if err != nil {
			return nil, 0, err
		}
		m[k] = v
	}
	return m, end, nil
}

func putUint16(buf []byte, v uint16) int { binary.LittleEndian.PutUint16(buf, v); return 2 }
func putUint32(buf []byte, v uint32) int { binary.LittleEndian.PutUint32(buf, v); return 4 }
func putUint64(buf []byte, v uint64) int { binary.LittleEndian.PutUint64(buf, v); return 8 }

func putPrefixedBytes(buf []byte, s []byte) int {
	n := putUint32(buf, uint32(len(s)))
	n += copy(buf[n:], s)
	return n
}

func putPrefixedString(buf []byte, s string) int {
	return putPrefixedBytes(buf, []byte(s))
}

func putPrefixedMap(buf []byte, m map[string]string) int {
	sized := makePrefixedMapBytes(m)
	return copy(buf, sized)
}

// prefixedMapSize returns the encoded byte length of m, not including its
// own 4-byte length prefix.
func prefixedMapSize(m map[string]string) int {
	n := 0
	for k, v := range m {
		n += 4 + len(k) + 4 + len(v)
	}
	return n
}

func makePrefixedMapBytes(m map[string]string) []byte {
	buf := make([]byte, 4+prefixedMapSize(m))
	offset := putUint32(buf, uint32(prefixedMapSize(m)))
	for k, v := range m {
		offset += putPrefixedString(buf[offset:], k)
		offset += putPrefixedString(buf[offset:], v)
	}
	return buf
}

// crcTrackingReader wraps an io.Reader, accumulating an IEEE CRC32 over
// every byte read while enabled.
type crcTrackingReader struct {
	r       io.Reader
	crc     uint32
	enabled bool
}

func newCRCTrackingReader(r io.Reader, enabled bool) *crcTrackingReader {
	return &crcTrackingReader{r: r, enabled: enabled}
}

func (c *crcTrackingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if c.enabled && n > 0 {
		c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	}
	return n, err
}

func (c *crcTrackingReader) Checksum() uint32 { return c.crc }
