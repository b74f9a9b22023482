package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundtrip(t *testing.T, format Format) {
	t.Helper()
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, format, LevelDefault)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := Decompress(buf.Bytes(), format, uint64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRoundtripNone(t *testing.T) { roundtrip(t, None) }
func TestRoundtripLZ4(t *testing.T)  { roundtrip(t, LZ4) }
func TestRoundtripZSTD(t *testing.T) { roundtrip(t, ZSTD) }
func TestRoundtripBZ2(t *testing.T)  { roundtrip(t, BZ2) }

func TestUnsupportedFormat(t *testing.T) {
	_, err := NewWriter(io.Discard, Format("xz"), LevelDefault)
	require.Error(t, err)
}
