package mcap

import (
	"hash/crc32"

	"github.com/robocap/robocap/pkg/byteio"
)

// WriteSeeker is the byteio.Writer the MCAP Writer requires: an
// append-only sink that reports its current offset.
type WriteSeeker = byteio.Writer

// trackingWriter wraps a byteio.Writer, tracking total bytes written and,
// when enabled, an IEEE CRC32 that can be reset mid-stream. The writer uses
// one instance across the whole file: the running CRC is sampled at the
// data-section boundary for DataEnd, then reset and resampled at the
// summary-section boundary for Footer, giving each its own independently
// correct checksum without buffering the covered bytes.
type trackingWriter struct {
	w       byteio.Writer
	crcOn   bool
	crc     uint32
}

func newTrackingWriter(w byteio.Writer) *trackingWriter {
	return &trackingWriter{w: w}
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if t.crcOn && n > 0 {
		t.crc = crc32.Update(t.crc, crc32.IEEETable, p[:n])
	}
	return n, err
}

func (t *trackingWriter) Tell() (int64, error) { return t.w.Tell() }
func (t *trackingWriter) Close() error         { return t.w.Close() }

func (t *trackingWriter) startTrackingCRC() { t.crcOn = true }

func (t *trackingWriter) crcChecksum() uint32 { return t.crc }

func (t *trackingWriter) resetCRC() { t.crc = 0 }
