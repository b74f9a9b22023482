package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/pkg/byteio"
	"github.com/robocap/robocap/pkg/cdr"
)

func headerSchema() *Schema {
	return &Schema{
		Name: "std_msgs/Header",
		Fields: []Field{
			{Name: "seq", Type: Type{Kind: KindPrimitive, Primitive: Uint32}},
			{Name: "stamp", Type: Type{Kind: KindPrimitive, Primitive: Time}},
			{Name: "frame_id", Type: Type{Kind: KindString}},
		},
	}
}

func imuSchema() *Schema {
	return &Schema{
		Name: "sensor_msgs/Imu",
		Fields: []Field{
			{Name: "header", Type: Type{Kind: KindComplex, ComplexName: "std_msgs/Header"}},
			{Name: "orientation", Type: Type{
				Kind: KindArray, Length: 4,
				Elem: &Type{Kind: KindPrimitive, Primitive: Float64},
			}},
			{Name: "ranges", Type: Type{
				Kind: KindSequence,
				Elem: &Type{Kind: KindPrimitive, Primitive: Float32},
			}},
		},
	}
}

func resolver() Resolver {
	schemas := map[string]*Schema{
		"std_msgs/Header": headerSchema(),
		"sensor_msgs/Imu":  imuSchema(),
	}
	return func(name string) (*Schema, bool) {
		s, ok := schemas[name]
		return s, ok
	}
}

func TestCompileEncodeDecodeRoundtrip(t *testing.T) {
	c := NewCompiler()
	routine, err := c.Compile(imuSchema(), resolver())
	require.NoError(t, err)

	msg := Message{
		"header": Message{
			"seq":      uint32(7),
			"stamp":    int64(1_600_000_000_500_000_000),
			"frame_id": "imu_link",
		},
		"orientation": []any{1.0, 2.0, 3.0, 4.0},
		"ranges":      []any{float32(0.5), float32(1.5)},
	}

	w := byteio.NewBufferWriter()
	enc, err := cdr.NewEncoder(w)
	require.NoError(t, err)
	require.NoError(t, routine.Encode(enc, msg))

	dec, err := cdr.NewDecoder(byteio.NewSliceReader(w.Bytes()))
	require.NoError(t, err)
	out, err := routine.Decode(dec)
	require.NoError(t, err)

	header, ok := out["header"].(Message)
	require.True(t, ok)
	require.Equal(t, "imu_link", header["frame_id"])
	require.Equal(t, uint32(7), header["seq"])

	orientation, ok := out["orientation"].([]any)
	require.True(t, ok)
	require.Len(t, orientation, 4)

	ranges, ok := out["ranges"].([]any)
	require.True(t, ok)
	require.Len(t, ranges, 2)
}

func TestCompileRejectsFixedArraySizeMismatch(t *testing.T) {
	c := NewCompiler()
	routine, err := c.Compile(imuSchema(), resolver())
	require.NoError(t, err)

	msg := Message{
		"header":      Message{"seq": uint32(0), "stamp": int64(0), "frame_id": ""},
		"orientation": []any{1.0, 2.0}, // should be length 4
		"ranges":      []any{},
	}
	w := byteio.NewBufferWriter()
	enc, err := cdr.NewEncoder(w)
	require.NoError(t, err)
	err = routine.Encode(enc, msg)
	require.Error(t, err)
}

func TestStaticMessageRoundtrip(t *testing.T) {
	c := NewCompiler()
	routine, err := c.Compile(imuSchema(), resolver())
	require.NoError(t, err)

	sm := NewStaticMessage(imuSchema())
	sm.Set("header", Message{"seq": uint32(7), "stamp": int64(0), "frame_id": "imu_link"})
	sm.Set("orientation", []any{1.0, 2.0, 3.0, 4.0})
	sm.Set("ranges", []any{float32(0.5), float32(1.5)})

	w := byteio.NewBufferWriter()
	enc, err := cdr.NewEncoder(w)
	require.NoError(t, err)
	require.NoError(t, routine.EncodeStatic(enc, sm))

	dec, err := cdr.NewDecoder(byteio.NewSliceReader(w.Bytes()))
	require.NoError(t, err)
	out := NewStaticMessage(imuSchema())
	require.NoError(t, routine.DecodeStatic(dec, out))

	header, ok := out.Get("header").(Message)
	require.True(t, ok)
	require.Equal(t, "imu_link", header["frame_id"])

	ranges, ok := out.Get("ranges").([]any)
	require.True(t, ok)
	require.Len(t, ranges, 2)
}

func pointSchema() *Schema {
	return &Schema{
		Name: "geometry_msgs/Point32",
		Fields: []Field{
			{Name: "x", Type: Type{Kind: KindPrimitive, Primitive: Float32}},
			{Name: "y", Type: Type{Kind: KindPrimitive, Primitive: Float32}},
			{Name: "z", Type: Type{Kind: KindPrimitive, Primitive: Float32}},
			{Name: "flags", Type: Type{Kind: KindPrimitive, Primitive: Uint8}},
		},
	}
}

// TestCompileGroupsAdjacentPrimitiveFields exercises compilePrimitiveGroup's
// batched path (x/y/z are all float32, so they compile into one grouped
// step) alongside the ungrouped trailing uint8 field, checking the roundtrip
// is correct regardless of the batching underneath.
func TestCompileGroupsAdjacentPrimitiveFields(t *testing.T) {
	c := NewCompiler()
	routine, err := c.Compile(pointSchema(), func(string) (*Schema, bool) { return nil, false })
	require.NoError(t, err)

	msg := Message{"x": float32(1.5), "y": float32(-2.5), "z": float32(3.0), "flags": uint8(7)}

	w := byteio.NewBufferWriter()
	enc, err := cdr.NewEncoder(w)
	require.NoError(t, err)
	require.NoError(t, routine.Encode(enc, msg))

	dec, err := cdr.NewDecoder(byteio.NewSliceReader(w.Bytes()))
	require.NoError(t, err)
	out, err := routine.Decode(dec)
	require.NoError(t, err)

	require.Equal(t, float32(1.5), out["x"])
	require.Equal(t, float32(-2.5), out["y"])
	require.Equal(t, float32(3.0), out["z"])
	require.Equal(t, uint8(7), out["flags"])
}

func TestCompileDetectsCycle(t *testing.T) {
	c := NewCompiler()
	a := &Schema{Name: "a", Fields: []Field{{Name: "b", Type: Type{Kind: KindComplex, ComplexName: "b"}}}}
	b := &Schema{Name: "b", Fields: []Field{{Name: "a", Type: Type{Kind: KindComplex, ComplexName: "a"}}}}
	resolve := func(name string) (*Schema, bool) {
		switch name {
		case "a":
			return a, true
		case "b":
			return b, true
		}
		return nil, false
	}
	_, err := c.Compile(a, resolve)
	require.Error(t, err)
}
