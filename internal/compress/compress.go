// Package compress provides the chunk compression codecs shared by the
// MCAP and ROS1 bag container engines: lz4 for both formats, zstd for MCAP
// chunks (the bag engine rejects it), and bzip2 for bag chunks.
package compress

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	dsnetbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies a chunk compression codec.
type Format string

const (
	None Format = ""
	ZSTD Format = "zstd"
	LZ4  Format = "lz4"
	BZ2  Format = "bz2" // ROS1 bag chunks only; MCAP does not define this tag.
)

// Level mirrors the teacher's CompressionLevel, expressed generically over
// whichever codec the caller selects.
type Level int

const (
	LevelFastest Level = -20
	LevelFast    Level = -10
	LevelDefault Level = 0
	LevelSlow    Level = 10
	LevelSlowest Level = 20
)

func (l Level) lz4() lz4.CompressionLevel {
	switch {
	case l <= LevelFastest:
		return lz4.Fast
	case l <= LevelFast:
		return lz4.Level3
	case l <= LevelDefault:
		return lz4.Level5
	case l <= LevelSlow:
		return lz4.Level7
	default:
		return lz4.Level9
	}
}

func (l Level) zstd() zstd.EncoderLevel {
	switch {
	case l <= LevelFast:
		return zstd.SpeedFastest
	case l <= LevelDefault:
		return zstd.SpeedDefault
	case l <= LevelSlow:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// NewWriter returns an io.WriteCloser that compresses into w using format at
// the given level. Close must be called to flush trailing codec state;
// closing does not close w.
func NewWriter(w io.Writer, format Format, level Level) (io.WriteCloser, error) {
	switch format {
	case None:
		return nopWriteCloser{w}, nil
	case LZ4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(level.lz4())); err != nil {
			return nil, fmt.Errorf("compress: configure lz4 writer: %w", err)
		}
		return lw, nil
	case ZSTD:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.zstd()))
		if err != nil {
			return nil, fmt.Errorf("compress: create zstd writer: %w", err)
		}
		return zw, nil
	case BZ2:
		bw, err := dsnetbzip2.NewWriter(w, &dsnetbzip2.WriterConfig{Level: bz2Level(level)})
		if err != nil {
			return nil, fmt.Errorf("compress: create bz2 writer: %w", err)
		}
		return bw, nil
	default:
		return nil, fmt.Errorf("compress: unsupported compression format %q", format)
	}
}

func bz2Level(l Level) int {
	switch {
	case l <= LevelFastest:
		return 1
	case l <= LevelFast:
		return 3
	case l <= LevelDefault:
		return 6
	case l <= LevelSlow:
		return 8
	default:
		return 9
	}
}

// NewReader returns a decompressing reader over r for the given format.
// Close is a no-op for formats without decoder resources to release, and is
// always safe to call.
func NewReader(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case None:
		return io.NopCloser(r), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case ZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("compress: create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case BZ2:
		// bzip2 is decode-only in the standard library; no ecosystem
		// decoder in the corpus improves on it, so it is used directly
		// here rather than dsnet's.
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("compress: unsupported compression format %q", format)
	}
}

// Decompress fully decompresses src (whose decompressed length is known to
// be size) using format, returning a freshly allocated buffer.
func Decompress(src []byte, format Format, size uint64) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(src), format)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("compress: decompress %s chunk: %w", format, err)
	}
	return out, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
