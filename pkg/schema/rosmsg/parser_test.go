package rosmsg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/pkg/schema"
)

const headerDef = `uint32 seq
time stamp
string frame_id
`

const imuDef = `Header header
float64[4] orientation
float64[9] orientation_covariance
float32[] ranges
uint8 STATUS_OK=0
uint8 STATUS_ERROR=1
`

func TestParseROS1Flat(t *testing.T) {
	s, siblings, err := ParseROS1("std_msgs/Header", []byte(headerDef), nil)
	require.NoError(t, err)
	require.Len(t, s.Fields, 3)
	require.Equal(t, "seq", s.Fields[0].Name)
	require.Equal(t, schema.KindPrimitive, s.Fields[0].Type.Kind)
	require.Equal(t, schema.Uint32, s.Fields[0].Type.Primitive)
	require.Equal(t, schema.KindPrimitive, s.Fields[1].Type.Kind)
	require.Equal(t, schema.Time, s.Fields[1].Type.Primitive)
	require.Equal(t, schema.KindString, s.Fields[2].Type.Kind)
	require.Contains(t, siblings, "std_msgs/Header")
}

func TestParseROS1NestedHeaderAndConstants(t *testing.T) {
	siblings := map[string][]byte{"std_msgs/Header": []byte(headerDef)}
	s, all, err := ParseROS1("sensor_msgs/Imu", []byte(imuDef), siblings)
	require.NoError(t, err)

	require.Equal(t, "header", s.Fields[0].Name)
	require.Equal(t, schema.KindComplex, s.Fields[0].Type.Kind)
	require.Equal(t, "std_msgs/Header", s.Fields[0].Type.ComplexName)

	require.Equal(t, schema.KindArray, s.Fields[1].Type.Kind)
	require.Equal(t, 4, s.Fields[1].Type.Length)
	require.Equal(t, schema.Float64, s.Fields[1].Type.Elem.Primitive)

	require.Equal(t, schema.KindSequence, s.Fields[3].Type.Kind)
	require.Equal(t, schema.Float32, s.Fields[3].Type.Elem.Primitive)

	require.Len(t, s.Constants, 2)
	require.Equal(t, "STATUS_OK", s.Constants[0].Name)
	require.Equal(t, "0", s.Constants[0].Literal)

	require.Contains(t, all, "std_msgs/Header")
	require.Contains(t, all, "sensor_msgs/Imu")
}

func TestMD5MatchesKnownHeaderChecksum(t *testing.T) {
	s, siblings, err := ParseROS1("std_msgs/Header", []byte(headerDef), nil)
	require.NoError(t, err)
	sum, err := MD5(s, siblings)
	require.NoError(t, err)
	// Well-known published checksum for std_msgs/Header.
	require.Equal(t, "2176decaecbce78abc3b96ef049fabed", sum)
}

func TestParseROS2BoundedStringAndSequence(t *testing.T) {
	const def = "string<=8 name\nint32[<=4] samples\n"
	s, _, err := ParseROS2("pkg/msg/Bounded", []byte(def), nil)
	require.NoError(t, err)

	require.Equal(t, schema.KindString, s.Fields[0].Type.Kind)
	require.Equal(t, 8, s.Fields[0].Type.Bound)

	require.Equal(t, schema.KindSequence, s.Fields[1].Type.Kind)
	require.Equal(t, 4, s.Fields[1].Type.Length)
	require.Equal(t, schema.Int32, s.Fields[1].Type.Elem.Primitive)
}

func TestSplitConcatenatedDefinition(t *testing.T) {
	full := imuDef + "================================================================================\n" +
		"MSG: std_msgs/Header\n" + headerDef
	top, siblings := SplitConcatenatedDefinition(full)
	require.Equal(t, imuDef, top)
	require.Contains(t, siblings, "std_msgs/Header")
}
