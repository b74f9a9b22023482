package rosbag

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

func writeSampleBag(t *testing.T, opts WriterOptions) []byte {
	t.Helper()
	bw := byteio.NewBufferWriter()
	w, err := NewWriter(bw, opts)
	require.NoError(t, err)

	connID, err := w.WriteConnection(ConnectionHeader{
		Topic:             "/imu",
		Type:              "sensor_msgs/Imu",
		MD5Sum:            "6a62c6daae103f4ff57a132d6f95cec2",
		MessageDefinition: "float64 x\nfloat64 y\n",
		Extra:             map[string]string{"callerid": "/driver"},
	})
	require.NoError(t, err)
	sameID, err := w.WriteConnection(ConnectionHeader{
		Topic:             "/imu",
		Type:              "sensor_msgs/Imu",
		MD5Sum:            "6a62c6daae103f4ff57a132d6f95cec2",
		MessageDefinition: "float64 x\nfloat64 y\n",
		Extra:             map[string]string{"callerid": "/driver"},
	})
	require.NoError(t, err)
	require.Equal(t, connID, sameID, "WriteConnection must be idempotent for identical input")

	for i := 0; i < 50; i++ {
		require.NoError(t, w.WriteMessage(&Message{
			ConnectionID: connID,
			Time:         uint64(1000+i) * 1e9,
			Data:         []byte{byte(i)},
		}))
	}
	require.NoError(t, w.Close())
	return bw.Bytes()
}

func readAllMessages(t *testing.T, it MessageIterator) []*Message {
	t.Helper()
	var out []*Message
	for {
		m, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, m)
	}
	require.NoError(t, it.Close())
	return out
}

func TestWriteReadRoundtripUnchunked(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)

	info, err := r.Info()
	require.NoError(t, err)
	require.False(t, info.CanReadUsingIndex(), "unchunked bags never write an index section")

	it, err := r.Messages()
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i)*1e9, m.Time)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}
}

func TestWriteReadRoundtripChunkedNone(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 64, Compression: compress.None})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)

	info, err := r.Info()
	require.NoError(t, err)
	require.True(t, info.CanReadUsingIndex())
	require.Equal(t, uint64(50), info.MessageCount)
	require.Greater(t, len(info.ChunkInfos), 1, "small chunk size should force multiple chunks")

	it, err := r.Messages(WithOrder(FileOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i)*1e9, m.Time)
	}
}

func TestWriteReadRoundtripChunkedLZ4(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 256, Compression: compress.LZ4})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithOrder(ReverseLogTimeOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+(49-i))*1e9, m.Time)
	}
}

func TestWriteReadRoundtripChunkedBZ2(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 256, Compression: compress.BZ2})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithOrder(LogTimeOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i)*1e9, m.Time)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}
}

func TestNewWriterRejectsZSTD(t *testing.T) {
	_, err := NewWriter(byteio.NewBufferWriter(), WriterOptions{Compression: compress.ZSTD})
	require.Error(t, err)
	require.ErrorAs(t, err, new(*ContainerError))
}

func TestTopicFilter(t *testing.T) {
	bw := byteio.NewBufferWriter()
	w, err := NewWriter(bw, WriterOptions{Chunked: true, ChunkSize: 1 << 20})
	require.NoError(t, err)
	aID, err := w.WriteConnection(ConnectionHeader{Topic: "/a", Type: "std_msgs/Int32", MD5Sum: "x"})
	require.NoError(t, err)
	bID, err := w.WriteConnection(ConnectionHeader{Topic: "/b", Type: "std_msgs/Int32", MD5Sum: "x"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteMessage(&Message{ConnectionID: aID, Time: uint64(i)}))
		require.NoError(t, w.WriteMessage(&Message{ConnectionID: bID, Time: uint64(i)}))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(byteio.NewSliceReader(bw.Bytes()))
	require.NoError(t, err)
	it, err := r.Messages(WithTopics("/a"))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 10)
	for _, m := range messages {
		require.Equal(t, aID, m.ConnectionID)
	}
}

func TestTimeRangeFilter(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 256, Compression: compress.LZ4})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithTimeRange(1010*1e9, 1020*1e9))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 10)
	require.Equal(t, uint64(1010)*1e9, messages[0].Time)
	require.Equal(t, uint64(1019)*1e9, messages[len(messages)-1].Time)
}

func TestRecoverInfoOnUnchunkedBag(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{})
	info, err := RecoverInfo(byteio.NewSliceReader(data))
	require.NoError(t, err)
	require.Equal(t, uint64(50), info.MessageCount)
	require.Len(t, info.Connections, 1)
	require.Equal(t, uint64(1000)*1e9, info.MessageStartTime)
	require.Equal(t, uint64(1049)*1e9, info.MessageEndTime)
}

func TestRecoverInfoOnChunkedBag(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 128, Compression: compress.LZ4})
	info, err := RecoverInfo(byteio.NewSliceReader(data))
	require.NoError(t, err)
	require.Equal(t, uint64(50), info.MessageCount)
	require.Len(t, info.Connections, 1)
}

func TestWithIndexFalseForcesLinearScan(t *testing.T) {
	data := writeSampleBag(t, WriterOptions{Chunked: true, ChunkSize: 128, Compression: compress.None})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithIndex(false))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
}
