package rosbag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
	"github.com/robocap/robocap/pkg/mcap"
)

func TestToMCAPThenFromMCAPRoundtrip(t *testing.T) {
	bagBytes := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 256, Compression: compress.LZ4})

	br, err := NewReader(byteio.NewSliceReader(bagBytes))
	require.NoError(t, err)

	mcapBW := byteio.NewBufferWriter()
	mw, err := mcap.NewWriter(mcapBW, mcap.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, ToMCAP(mw, br))
	require.NoError(t, mw.Close())

	mr, err := mcap.NewReader(byteio.NewSliceReader(mcapBW.Bytes()))
	require.NoError(t, err)
	info, err := mr.Info()
	require.NoError(t, err)
	require.Len(t, info.Channels, 1)
	for _, ch := range info.Channels {
		require.Equal(t, "/imu", ch.Topic)
		require.Equal(t, "ros1", ch.MessageEncoding)
		require.Equal(t, "/driver", ch.Metadata["callerid"])
		require.Equal(t, "6a62c6daae103f4ff57a132d6f95cec2", ch.Metadata["md5sum"])
	}
	require.Equal(t, uint64(50), info.Statistics.MessageCount)

	// Convert back and confirm the connection and messages survive.
	mr2, err := mcap.NewReader(byteio.NewSliceReader(mcapBW.Bytes()))
	require.NoError(t, err)
	bagBW := byteio.NewBufferWriter()
	bw, err := NewWriter(bagBW, WriterOptions{Chunked: true, ChunkSize: 256, Compression: compress.LZ4})
	require.NoError(t, err)
	require.NoError(t, FromMCAP(bw, mr2))
	require.NoError(t, bw.Close())

	br2, err := NewReader(byteio.NewSliceReader(bagBW.Bytes()))
	require.NoError(t, err)
	bagInfo, err := br2.Info()
	require.NoError(t, err)
	require.Len(t, bagInfo.Connections, 1)
	for _, c := range bagInfo.Connections {
		require.Equal(t, "/imu", c.Topic)
		require.Equal(t, "sensor_msgs/Imu", c.Header.Type)
		require.Equal(t, "6a62c6daae103f4ff57a132d6f95cec2", c.Header.MD5Sum)
		require.Equal(t, "/driver", c.Header.Extra["callerid"])
	}

	it, err := br2.Messages()
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i)*1e9, m.Time)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}
}

func TestFromMCAPRecomputesMD5WhenMissingFromMetadata(t *testing.T) {
	mcapBW := byteio.NewBufferWriter()
	mw, err := mcap.NewWriter(mcapBW, mcap.WriterOptions{})
	require.NoError(t, err)
	schemaID, err := mw.AddSchema("std_msgs/Int32", "ros1msg", []byte("int32 data\n"))
	require.NoError(t, err)
	chanID, err := mw.AddChannel("/count", "ros1", schemaID, nil) // no md5sum in metadata
	require.NoError(t, err)
	require.NoError(t, mw.WriteMessage(&mcap.Message{ChannelID: chanID, LogTime: 1, Data: []byte{1}}))
	require.NoError(t, mw.Close())

	mr, err := mcap.NewReader(byteio.NewSliceReader(mcapBW.Bytes()))
	require.NoError(t, err)

	bagBW := byteio.NewBufferWriter()
	bw, err := NewWriter(bagBW, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, FromMCAP(bw, mr))
	require.NoError(t, bw.Close())

	info, err := RecoverInfo(byteio.NewSliceReader(bagBW.Bytes()))
	require.NoError(t, err)
	require.Len(t, info.Connections, 1)
	for _, c := range info.Connections {
		require.NotEmpty(t, c.Header.MD5Sum)
	}
}
