package byteio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	cases := []struct {
		pos, sz, want int64
	}{
		{0, 4, 0},
		{1, 4, 4},
		{3, 4, 4},
		{4, 4, 4},
		{5, 8, 8},
		{0, 1, 0},
		{7, 1, 7},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Align(c.pos, c.sz))
	}
}

func TestSliceReaderSeekAndPeek(t *testing.T) {
	r := NewSliceReader([]byte("hello world"))
	b, err := r.Peek(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, r.SeekStart(6))
	buf := make([]byte, 5)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBufferWriterTell(t *testing.T) {
	w := NewBufferWriter()
	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	pos, err := w.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)
	assert.Equal(t, []byte("abc"), w.Bytes())
}

func TestCRCReaderWriterRoundtrip(t *testing.T) {
	w := NewBufferWriter()
	cw := NewCRCWriter(w)
	data := []byte("the quick brown fox")
	_, err := cw.Write(data)
	require.NoError(t, err)

	cr := NewCRCReader(NewSliceReader(w.Bytes()), true)
	buf := make([]byte, len(data))
	_, err = io.ReadFull(cr, buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf)
	assert.Equal(t, cw.Checksum(), cr.Checksum())
}
