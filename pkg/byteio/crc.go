package byteio

import (
	"hash"
	"hash/crc32"
	"io"
)

// CRCReader wraps an io.Reader, accumulating an IEEE CRC32 over every byte
// read while computation is enabled. Used by the MCAP/bag readers to verify
// data-section and chunk checksums without buffering the covered bytes
// separately.
type CRCReader struct {
	r       io.Reader
	crc     hash.Hash32
	enabled bool
}

// NewCRCReader wraps r. When enabled is false, Checksum always returns 0 and
// no hashing work is performed, for best-effort/no-verify read modes.
func NewCRCReader(r io.Reader, enabled bool) *CRCReader {
	return &CRCReader{r: r, crc: crc32.NewIEEE(), enabled: enabled}
}

func (c *CRCReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if c.enabled && n > 0 {
		c.crc.Write(p[:n])
	}
	return n, err
}

// Checksum returns the running CRC32 over all bytes read so far.
func (c *CRCReader) Checksum() uint32 {
	return c.crc.Sum32()
}

// ResetCRC restarts accumulation from zero.
func (c *CRCReader) ResetCRC() {
	c.crc = crc32.NewIEEE()
}

// CRCWriter wraps an io.Writer, accumulating an IEEE CRC32 over every byte
// written.
type CRCWriter struct {
	w   io.Writer
	crc hash.Hash32
}

func NewCRCWriter(w io.Writer) *CRCWriter {
	return &CRCWriter{w: w, crc: crc32.NewIEEE()}
}

func (c *CRCWriter) Write(p []byte) (int, error) {
	c.crc.Write(p)
	return c.w.Write(p)
}

func (c *CRCWriter) Checksum() uint32 {
	return c.crc.Sum32()
}

func (c *CRCWriter) ResetCRC() {
	c.crc = crc32.NewIEEE()
}
