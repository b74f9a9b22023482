package mcap

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

func writeSampleFile(t *testing.T, opts WriterOptions) []byte {
	t.Helper()
	bw := byteio.NewBufferWriter()
	w, err := NewWriter(bw, opts)
	require.NoError(t, err)

	schemaID, err := w.AddSchema("imu", "ros1msg", []byte("float64 x\nfloat64 y\n"))
	require.NoError(t, err)
	sameID, err := w.AddSchema("imu", "ros1msg", []byte("float64 x\nfloat64 y\n"))
	require.NoError(t, err)
	require.Equal(t, schemaID, sameID, "AddSchema must be idempotent for identical input")

	chanID, err := w.AddChannel("/imu", "ros1", schemaID, nil)
	require.NoError(t, err)
	sameChanID, err := w.AddChannel("/imu", "ros1", schemaID, nil)
	require.NoError(t, err)
	require.Equal(t, chanID, sameChanID, "AddChannel must be idempotent for identical input")

	for i := 0; i < 50; i++ {
		err := w.WriteMessage(&Message{
			ChannelID:   chanID,
			Sequence:    uint32(i),
			LogTime:     uint64(1000 + i),
			PublishTime: uint64(1000 + i),
			Data:        []byte{byte(i)},
		})
		require.NoError(t, err)
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
	data := writeSampleFile(t, WriterOptions{IncludeCRC: true})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)

	it, err := r.Messages(WithOrder(FileOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i), m.LogTime)
	}
}

func TestWriteReadRoundtripChunkedZSTD(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{
		Chunked: true, ChunkSize: 256, Compression: compress.ZSTD, IncludeCRC: true,
	})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)

	info, err := r.Info()
	require.NoError(t, err)
	require.True(t, info.CanReadUsingIndex())
	require.Equal(t, uint64(50), info.Statistics.MessageCount)

	it, err := r.Messages(WithOrder(LogTimeOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+i), m.LogTime)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}
}

func TestWriteReadRoundtripChunkedLZ4(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{
		Chunked: true, ChunkSize: 256, Compression: compress.LZ4, IncludeCRC: true,
	})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithOrder(ReverseLogTimeOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
	for i, m := range messages {
		require.Equal(t, uint64(1000+(49-i)), m.LogTime)
	}
}

func TestWriteReadRoundtripChunkedNone(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{Chunked: true, ChunkSize: 64, Compression: compress.None})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages()
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 50)
}

func TestAttachmentAndMetadataRoundtrip(t *testing.T) {
	bw := byteio.NewBufferWriter()
	w, err := NewWriter(bw, WriterOptions{IncludeCRC: true})
	require.NoError(t, err)

	require.NoError(t, w.WriteAttachment(&Attachment{
		LogTime:    42,
		CreateTime: 41,
		Name:       "calib.yaml",
		MediaType:  "text/yaml",
		Data:       []byte("focal_length: 525.0\n"),
	}))
	require.NoError(t, w.WriteMetadata(&Metadata{
		Name:     "run_config",
		Metadata: map[string]string{"operator": "alice"},
	}))
	require.NoError(t, w.Close())

	r, err := NewReader(byteio.NewSliceReader(bw.Bytes()))
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)
	require.Len(t, info.AttachmentIndexes, 1)
	require.Len(t, info.MetadataIndexes, 1)

	ar, err := r.Attachment(info.AttachmentIndexes[0])
	require.NoError(t, err)
	require.Equal(t, "calib.yaml", ar.Name)
	require.Equal(t, "text/yaml", ar.MediaType)
	data, err := io.ReadAll(ar.Data())
	require.NoError(t, err)
	require.Equal(t, []byte("focal_length: 525.0\n"), data)
	computed, err := ar.ComputedCRC()
	require.NoError(t, err)
	parsed, err := ar.ParsedCRC()
	require.NoError(t, err)
	require.Equal(t, parsed, computed)

	md, err := r.Metadata(info.MetadataIndexes[0])
	require.NoError(t, err)
	require.Equal(t, "run_config", md.Name)
	require.Equal(t, "alice", md.Metadata["operator"])
}

func TestTopicFilter(t *testing.T) {
	bw := byteio.NewBufferWriter()
	w, err := NewWriter(bw, WriterOptions{IncludeCRC: true})
	require.NoError(t, err)
	schemaID, err := w.AddSchema("s", "ros1msg", []byte("int32 x\n"))
	require.NoError(t, err)
	aID, err := w.AddChannel("/a", "ros1", schemaID, nil)
	require.NoError(t, err)
	bID, err := w.AddChannel("/b", "ros1", schemaID, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteMessage(&Message{ChannelID: aID, LogTime: uint64(i)}))
		require.NoError(t, w.WriteMessage(&Message{ChannelID: bID, LogTime: uint64(i)}))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(byteio.NewSliceReader(bw.Bytes()))
	require.NoError(t, err)
	it, err := r.Messages(WithTopics("/a"))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 10)
	for _, m := range messages {
		require.Equal(t, aID, m.ChannelID)
	}
}

func TestTimeRangeFilter(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{IncludeCRC: true})
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	it, err := r.Messages(WithTimeRange(1010, 1020))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 10)
	require.Equal(t, uint64(1010), messages[0].LogTime)
	require.Equal(t, uint64(1019), messages[len(messages)-1].LogTime)
}

func TestDataSectionCRCMatchesComputed(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{Chunked: true, ChunkSize: 512, Compression: compress.ZSTD, IncludeCRC: true})

	// Recompute the CRC directly over the bytes from just after the opening
	// magic through the DataEnd record's length field, and confirm it
	// matches what the writer stored in DataEnd.
	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)
	require.NotNil(t, info.Footer)
	dataEnd := int(info.Footer.SummaryStart) - 13 // DataEnd is opcode(1) + length(8) + crc(4)
	require.Equal(t, byte(OpDataEnd), data[dataEnd])
	require.Equal(t, crc32IEEE(data[len(Magic):dataEnd+9]), leUint32(data[dataEnd+9:dataEnd+13]))

	// Walk linearly and locate DataEnd; RecoverInfo exercises the same
	// scan path as a correctness cross-check.
	recovered, err := RecoverInfo(byteio.NewSliceReader(data))
	require.NoError(t, err)
	require.Equal(t, info.Statistics.MessageCount, recovered.Statistics.MessageCount)
	require.Equal(t, info.Statistics.MessageStartTime, recovered.Statistics.MessageStartTime)
	require.Equal(t, info.Statistics.MessageEndTime, recovered.Statistics.MessageEndTime)
}

func TestRecoverInfoOnUnchunkedFile(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{})
	info, err := RecoverInfo(byteio.NewSliceReader(data))
	require.NoError(t, err)
	require.Equal(t, uint64(50), info.Statistics.MessageCount)
	require.Len(t, info.Channels, 1)
	require.Len(t, info.Schemas, 1)
}

func TestChunkCRCMismatchDetected(t *testing.T) {
	data := writeSampleFile(t, WriterOptions{Chunked: true, ChunkSize: 64, Compression: compress.None, IncludeCRC: true})

	r, err := NewReader(byteio.NewSliceReader(data))
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)
	require.NotEmpty(t, info.ChunkIndexes)

	// Flip a byte inside the first chunk's record bytes (just past its
	// fixed-width fields and empty compression-name field), leaving the
	// framing intact so the corruption is only visible via the CRC check.
	corrupted := append([]byte(nil), data...)
	recordsStart := info.ChunkIndexes[0].ChunkStartOffset + 9 + 8 + 8 + 8 + 4 + 4 + 4
	corrupted[recordsStart] ^= 0xFF

	cr, err := NewReader(byteio.NewSliceReader(corrupted))
	require.NoError(t, err)
	it, err := cr.Messages(WithOrder(LogTimeOrder))
	require.NoError(t, err)
	_, err = readAllMessagesExpectingError(it)
	require.Error(t, err)
}

func readAllMessagesExpectingError(it MessageIterator) ([]*Message, error) {
	var out []*Message
	for {
		m, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
}

func TestEncryptionRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	provider, err := NewAES256GCMProvider(key)
	require.NoError(t, err)

	plaintext := []byte("sensor payload bytes")
	ciphertext, err := provider.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := provider.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestOpenForAppendResumesWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.mcap")

	fw, err := byteio.CreateFileWriter(path)
	require.NoError(t, err)
	w, err := NewWriter(fw, WriterOptions{IncludeCRC: true})
	require.NoError(t, err)
	schemaID, err := w.AddSchema("imu", "ros1msg", []byte("float64 x\n"))
	require.NoError(t, err)
	chanID, err := w.AddChannel("/imu", "ros1", schemaID, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteMessage(&Message{ChannelID: chanID, LogTime: uint64(i), Data: []byte{byte(i)}}))
	}
	require.NoError(t, w.Close())

	w2, err := OpenForAppend(path, WriterOptions{IncludeCRC: true})
	require.NoError(t, err)
	sameSchemaID, err := w2.AddSchema("imu", "ros1msg", []byte("float64 x\n"))
	require.NoError(t, err)
	require.Equal(t, schemaID, sameSchemaID, "reopened writer must recognize the prior schema as identical")
	sameChanID, err := w2.AddChannel("/imu", "ros1", schemaID, nil)
	require.NoError(t, err)
	require.Equal(t, chanID, sameChanID)
	for i := 5; i < 10; i++ {
		require.NoError(t, w2.WriteMessage(&Message{ChannelID: chanID, LogTime: uint64(i), Data: []byte{byte(i)}}))
	}
	require.NoError(t, w2.Close())

	fr, err := byteio.OpenFileReader(path)
	require.NoError(t, err)
	r, err := NewReader(fr)
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)
	require.Equal(t, uint64(10), info.Statistics.MessageCount)

	it, err := r.Messages(WithOrder(FileOrder))
	require.NoError(t, err)
	messages := readAllMessages(t, it)
	require.Len(t, messages, 10)
	for i, m := range messages {
		require.Equal(t, uint64(i), m.LogTime)
	}
}

func TestChunkCacheEviction(t *testing.T) {
	c := newChunkCache(2)
	c.put(0, []byte("a"))
	c.put(10, []byte("b"))
	c.put(20, []byte("c")) // evicts offset 0

	_, ok := c.get(0)
	require.False(t, ok)
	v, ok := c.get(10)
	require.True(t, ok)
	require.Equal(t, []byte("b"), v)
	v, ok = c.get(20)
	require.True(t, ok)
	require.Equal(t, []byte("c"), v)
}
