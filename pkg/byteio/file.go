package byteio

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// FileReader is a Reader backed by *os.File, buffered for forward scans but
// still able to seek arbitrarily for index lookups.
type FileReader struct {
	f    *os.File
	br   *bufio.Reader
	pos  int64
	size int64
}

// OpenFileReader opens path read-only and wraps it in a FileReader.
func OpenFileReader(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("byteio: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("byteio: stat %s: %w", path, err)
	}
	return &FileReader{
		f:    f,
		br:   bufio.NewReaderSize(f, 1<<16),
		size: info.Size(),
	}, nil
}

func (r *FileReader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *FileReader) Peek(n int) ([]byte, error) {
	return r.br.Peek(n)
}

func (r *FileReader) SeekStart(offset int64) error {
	return r.seek(offset, io.SeekStart)
}

func (r *FileReader) SeekCurrent(offset int64) error {
	return r.seek(offset, io.SeekCurrent)
}

func (r *FileReader) SeekEnd(offset int64) error {
	return r.seek(offset, io.SeekEnd)
}

func (r *FileReader) seek(offset int64, whence int) error {
	pos, err := r.f.Seek(offset, whence)
	if err != nil {
		return fmt.Errorf("byteio: seek: %w", err)
	}
	r.pos = pos
	r.br.Reset(r.f)
	return nil
}

func (r *FileReader) Tell() (int64, error) {
	return r.pos, nil
}

func (r *FileReader) Size() (int64, error) {
	return r.size, nil
}

func (r *FileReader) Close() error {
	return r.f.Close()
}

// FileWriter is a Writer backed by *os.File.
type FileWriter struct {
	f   *os.File
	bw  *bufio.Writer
	pos int64
}

// CreateFileWriter creates (truncating) path and wraps it in a FileWriter.
func CreateFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("byteio: create %s: %w", path, err)
	}
	return &FileWriter{f: f, bw: bufio.NewWriterSize(f, 1<<16)}, nil
}

// OpenAppendFileWriter opens path for writing at the given offset, for
// MCAP/bag append-mode writers resuming a previously closed file.
func OpenAppendFileWriter(path string, at int64) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("byteio: open %s for append: %w", path, err)
	}
	if err := f.Truncate(at); err != nil {
		f.Close()
		return nil, fmt.Errorf("byteio: truncate %s: %w", path, err)
	}
	if _, err := f.Seek(at, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("byteio: seek %s: %w", path, err)
	}
	return &FileWriter{f: f, bw: bufio.NewWriterSize(f, 1<<16), pos: at}, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	w.pos += int64(n)
	return n, err
}

func (w *FileWriter) Tell() (int64, error) {
	return w.pos, nil
}

func (w *FileWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("byteio: flush: %w", err)
	}
	return w.f.Close()
}
