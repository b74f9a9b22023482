package ros1wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/pkg/byteio"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	w := byteio.NewBufferWriter()
	enc := NewEncoder(w)

	require.NoError(t, enc.String("topic_name"))
	require.NoError(t, enc.Uint32(42))
	require.NoError(t, enc.Time(1_500_000_001))
	require.NoError(t, enc.Float64(2.71828))

	// No alignment padding: string + uint32 + time + float64 is exactly
	// 4+10 + 4 + 8 + 8 bytes.
	require.Len(t, w.Bytes(), 4+10+4+8+8)

	dec := NewDecoder(byteio.NewSliceReader(w.Bytes()))
	s, err := dec.String()
	require.NoError(t, err)
	require.Equal(t, "topic_name", s)

	u, err := dec.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), u)

	ts, err := dec.Time()
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000_001), ts)

	f, err := dec.Float64()
	require.NoError(t, err)
	require.InDelta(t, 2.71828, f, 1e-9)
}

func TestFromNanosNegativeDuration(t *testing.T) {
	sec, nsec := FromNanos(-500_000_000)
	require.Equal(t, int32(-1), sec)
	require.Equal(t, int32(500_000_000), nsec)
	require.Equal(t, int64(-500_000_000), ToNanos(sec, nsec))
}
