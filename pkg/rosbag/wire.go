package rosbag

import (
	"bytes"

	"github.com/robocap/robocap/internal/compress"
)

// This file holds the per-record-type encode/decode pairs built on top of
// record.go's generic header-kv primitives. Each function operates on one
// complete record's worth of bytes, independent of where those bytes end
// up (streamed into an open chunk, the data section, or the trailing
// connection/index summary) or came from (a top-level scan or a
// decompressed chunk body).

func encodeConnectionRecord(c *Connection) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpConnection)
	putHeaderFieldUint32(&hb, "conn", c.ID)
	putHeaderFieldString(&hb, "topic", c.Topic)
	return assembleRecord(hb.Bytes(), encodeConnectionHeader(c.Header))
}

func decodeConnectionRecord(fields map[string][]byte, data []byte) (*Connection, error) {
	id, err := headerUint32(fields, "conn")
	if err != nil {
		return nil, err
	}
	topic, err := headerString(fields, "topic")
	if err != nil {
		return nil, err
	}
	h, err := decodeConnectionHeader(data)
	if err != nil {
		return nil, err
	}
	return &Connection{ID: id, Topic: topic, Header: h}, nil
}

func encodeMessageDataRecord(connID uint32, timeNanos uint64, data []byte) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpMessageData)
	putHeaderFieldUint32(&hb, "conn", connID)
	putHeaderFieldROSTime(&hb, "time", timeNanos)
	return assembleRecord(hb.Bytes(), data)
}

func decodeMessageDataRecord(fields map[string][]byte, data []byte) (*Message, error) {
	connID, err := headerUint32(fields, "conn")
	if err != nil {
		return nil, err
	}
	t, err := headerROSTime(fields, "time")
	if err != nil {
		return nil, err
	}
	return &Message{ConnectionID: connID, Time: t, Data: data}, nil
}

func encodeChunkHeader(compression string, uncompressedSize uint32) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpChunk)
	putHeaderFieldString(&hb, "compression", compression)
	putHeaderFieldUint32(&hb, "size", uncompressedSize)
	return hb.Bytes()
}

func decodeChunkHeader(fields map[string][]byte) (compression string, size uint32, err error) {
	compression, err = headerString(fields, "compression")
	if err != nil {
		return "", 0, err
	}
	if compression == string(compress.ZSTD) {
		return "", 0, ErrCompressionNotSupportedHere(compression)
	}
	size, err = headerUint32(fields, "size")
	if err != nil {
		return "", 0, err
	}
	return compression, size, nil
}

func encodeIndexDataRecord(connID uint32, entries []IndexEntry) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpIndexData)
	putHeaderFieldUint32(&hb, "ver", 1)
	putHeaderFieldUint32(&hb, "conn", connID)
	putHeaderFieldUint32(&hb, "count", uint32(len(entries)))
	return assembleRecord(hb.Bytes(), encodeIndexEntries(entries))
}

func decodeIndexDataRecord(fields map[string][]byte, data []byte) (*IndexData, error) {
	connID, err := headerUint32(fields, "conn")
	if err != nil {
		return nil, err
	}
	entries, err := decodeIndexEntries(data)
	if err != nil {
		return nil, err
	}
	return &IndexData{ConnectionID: connID, Entries: entries}, nil
}

func encodeChunkInfoRecord(ci *ChunkInfo) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpChunkInfo)
	putHeaderFieldUint32(&hb, "ver", 1)
	putHeaderFieldUint64(&hb, "chunk_pos", ci.ChunkPos)
	putHeaderFieldROSTime(&hb, "start_time", ci.StartTime)
	putHeaderFieldROSTime(&hb, "end_time", ci.EndTime)
	putHeaderFieldUint32(&hb, "count", uint32(len(ci.ConnectionCounts)))
	return assembleRecord(hb.Bytes(), encodeConnectionCounts(ci.ConnectionCounts))
}

func decodeChunkInfoRecord(fields map[string][]byte, data []byte) (*ChunkInfo, error) {
	chunkPos, err := headerUint64(fields, "chunk_pos")
	if err != nil {
		return nil, err
	}
	startTime, err := headerROSTime(fields, "start_time")
	if err != nil {
		return nil, err
	}
	endTime, err := headerROSTime(fields, "end_time")
	if err != nil {
		return nil, err
	}
	counts, err := decodeConnectionCounts(data)
	if err != nil {
		return nil, err
	}
	return &ChunkInfo{ChunkPos: chunkPos, StartTime: startTime, EndTime: endTime, ConnectionCounts: counts}, nil
}

func decodeBagHeaderRecord(fields map[string][]byte) (*BagHeader, error) {
	indexPos, err := headerUint64(fields, "index_pos")
	if err != nil {
		return nil, err
	}
	connCount, err := headerUint32(fields, "conn_count")
	if err != nil {
		return nil, err
	}
	chunkCount, err := headerUint32(fields, "chunk_count")
	if err != nil {
		return nil, err
	}
	return &BagHeader{IndexPos: indexPos, ConnCount: connCount, ChunkCount: chunkCount}, nil
}

// encodeBagHeaderRecord renders the fixed bagHeaderRecordLength-byte first
// record, padding with spaces the way real bag writers do so the header
// stays at a seekable, reseekable offset for tools that expect it.
func encodeBagHeaderRecord(indexPos uint64, connCount, chunkCount uint32) []byte {
	var hb bytes.Buffer
	putHeaderFieldOp(&hb, OpBagHeader)
	putHeaderFieldUint64(&hb, "index_pos", indexPos)
	putHeaderFieldUint32(&hb, "conn_count", connCount)
	putHeaderFieldUint32(&hb, "chunk_count", chunkCount)

	overhead := bagHeaderRecordLength - 4 - 4 // minus header_len and data_len fields; data is empty
	paddingFieldTotal := overhead - hb.Len()
	padBytes := paddingFieldTotal - 4 - len("padding=")
	if padBytes < 0 {
		padBytes = 0
	}
	putHeaderFieldString(&hb, "padding", string(bytes.Repeat([]byte{' '}, padBytes)))

	return assembleRecord(hb.Bytes(), nil)
}
