package byteio

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// MmapThreshold is the file size, in bytes, at or above which OpenReader
// selects a memory-mapped reader instead of a buffered file reader.
const MmapThreshold = 512 << 20 // 512 MiB

// MmapReader is a Reader backed by a memory-mapped file, used for large
// containers where random access via mmap avoids repeated syscalls.
type MmapReader struct {
	ra   *mmap.ReaderAt
	pos  int64
	size int64
}

// OpenMmapReader memory-maps path read-only.
func OpenMmapReader(path string) (*MmapReader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("byteio: mmap open %s: %w", path, err)
	}
	return &MmapReader{ra: ra, size: int64(ra.Len())}, nil
}

func (r *MmapReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	n, err := r.ra.ReadAt(p, r.pos)
	r.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *MmapReader) Peek(n int) ([]byte, error) {
	if r.pos+int64(n) > r.size {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := r.ra.ReadAt(buf, r.pos); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func (r *MmapReader) SeekStart(offset int64) error   { return r.seek(offset) }
func (r *MmapReader) SeekCurrent(offset int64) error { return r.seek(r.pos + offset) }
func (r *MmapReader) SeekEnd(offset int64) error     { return r.seek(r.size + offset) }

func (r *MmapReader) seek(pos int64) error {
	if pos < 0 || pos > r.size {
		return fmt.Errorf("byteio: mmap seek out of range: %d", pos)
	}
	r.pos = pos
	return nil
}

func (r *MmapReader) Tell() (int64, error) { return r.pos, nil }
func (r *MmapReader) Size() (int64, error) { return r.size, nil }
func (r *MmapReader) Close() error         { return r.ra.Close() }

// OpenOptions controls how OpenReader selects an underlying Reader
// implementation.
type OpenOptions struct {
	ForceMmap   bool
	ForceNoMmap bool
}

// OpenReader opens path, memory-mapping it when its size is at or above
// MmapThreshold unless overridden by opts.
func OpenReader(path string, opts OpenOptions) (Reader, error) {
	if opts.ForceMmap {
		return OpenMmapReader(path)
	}
	if opts.ForceNoMmap {
		return OpenFileReader(path)
	}
	fr, err := OpenFileReader(path)
	if err != nil {
		return nil, err
	}
	size, _ := fr.Size()
	if size < MmapThreshold {
		return fr, nil
	}
	fr.Close()
	return OpenMmapReader(path)
}
