package cdr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/pkg/byteio"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	w := byteio.NewBufferWriter()
	enc, err := NewEncoder(w)
	require.NoError(t, err)

	require.NoError(t, enc.Bool(true))
	require.NoError(t, enc.Int8(-5))
	require.NoError(t, enc.Int32(123456))
	require.NoError(t, enc.Float64(3.14159))
	require.NoError(t, enc.String("hello cdr"))
	require.NoError(t, enc.Int16(-42))

	dec, err := NewDecoder(byteio.NewSliceReader(w.Bytes()))
	require.NoError(t, err)

	b, err := dec.Bool()
	require.NoError(t, err)
	require.True(t, b)

	i8, err := dec.Int8()
	require.NoError(t, err)
	require.Equal(t, int8(-5), i8)

	i32, err := dec.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(123456), i32)

	f64, err := dec.Float64()
	require.NoError(t, err)
	require.InDelta(t, 3.14159, f64, 1e-9)

	s, err := dec.String()
	require.NoError(t, err)
	require.Equal(t, "hello cdr", s)

	i16, err := dec.Int16()
	require.NoError(t, err)
	require.Equal(t, int16(-42), i16)
}

func TestInt32AfterBoolIsPadded(t *testing.T) {
	// A bool (1 byte) followed by an int32 must insert 3 bytes of padding
	// before the int32 begins at a 4-byte boundary.
	w := byteio.NewBufferWriter()
	enc, err := NewEncoder(w)
	require.NoError(t, err)
	require.NoError(t, enc.Bool(true))
	require.NoError(t, enc.Int32(7))

	// header(4) + bool(1) + pad(3) + int32(4) = 12
	require.Len(t, w.Bytes(), 12)
}

func TestWStringRoundtripSurrogatePair(t *testing.T) {
	w := byteio.NewBufferWriter()
	enc, err := NewEncoder(w)
	require.NoError(t, err)
	require.NoError(t, enc.WString("a\U0001F600b"))

	dec, err := NewDecoder(byteio.NewSliceReader(w.Bytes()))
	require.NoError(t, err)
	s, err := dec.WString()
	require.NoError(t, err)
	require.Equal(t, "a\U0001F600b", s)
}
