package mcap

import (
	"fmt"
	"io"
)

func ParseHeader(buf []byte) (*Header, error) {
	profile, offset, err := getPrefixedString(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse header profile: %w", err)
	}
	library, _, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse header library: %w", err)
	}
	return &Header{Profile: profile, Library: library}, nil
}

func ParseFooter(buf []byte) (*Footer, error) {
	summaryStart, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse footer summary_start: %w", err)
	}
	summaryOffsetStart, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse footer summary_offset_start: %w", err)
	}
	summaryCRC, _, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse footer summary_crc: %w", err)
	}
	return &Footer{SummaryStart: summaryStart, SummaryOffsetStart: summaryOffsetStart, SummaryCRC: summaryCRC}, nil
}

func ParseSchema(buf []byte) (*Schema, error) {
	id, offset, err := getUint16(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse schema id: %w", err)
	}
	name, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse schema name: %w", err)
	}
	encoding, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse schema encoding: %w", err)
	}
	data, _, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse schema data: %w", err)
	}
	return &Schema{ID: id, Name: name, Encoding: encoding, Data: append([]byte(nil), data...)}, nil
}

func ParseChannel(buf []byte) (*Channel, error) {
	id, offset, err := getUint16(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse channel id: %w", err)
	}
	schemaID, offset, err := getUint16(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse channel schema_id: %w", err)
	}
	topic, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse channel topic: %w", err)
	}
	messageEncoding, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse channel message_encoding: %w", err)
	}
	metadata, _, err := getPrefixedMap(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse channel metadata: %w", err)
	}
	return &Channel{ID: id, SchemaID: schemaID, Topic: topic, MessageEncoding: messageEncoding, Metadata: metadata}, nil
}

// PopulateFrom decodes a Message record body into msg. When copyData is
// false, msg.Data aliases buf (valid only until the caller reuses buf); set
// copyData true to retain the message past the next read.
func (m *Message) PopulateFrom(buf []byte, copyData bool) error {
	channelID, offset, err := getUint16(buf, 0)
	if err != nil {
		return fmt.Errorf("mcap: parse message channel_id: %w", err)
	}
	sequence, offset, err := getUint32(buf, offset)
	if err != nil {
		return fmt.Errorf("mcap: parse message sequence: %w", err)
	}
	logTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return fmt.Errorf("mcap: parse message log_time: %w", err)
	}
	publishTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return fmt.Errorf("mcap: parse message publish_time: %w", err)
	}
	data := buf[offset:]
	if copyData {
		data = append([]byte(nil), data...)
	}
	m.ChannelID = channelID
	m.Sequence = sequence
	m.LogTime = logTime
	m.PublishTime = publishTime
	m.Data = data
	return nil
}

func ParseMessage(buf []byte) (*Message, error) {
	m := &Message{}
	if err := m.PopulateFrom(buf, true); err != nil {
		return nil, err
	}
	return m, nil
}

func ParseChunk(buf []byte) (*Chunk, error) {
	startTime, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk message_start_time: %w", err)
	}
	endTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk message_end_time: %w", err)
	}
	uncompressedSize, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk uncompressed_size: %w", err)
	}
	uncompressedCRC, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk uncompressed_crc: %w", err)
	}
	compression, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk compression: %w", err)
	}
	records, _, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk records: %w", err)
	}
	return &Chunk{
		MessageStartTime: startTime,
		MessageEndTime:   endTime,
		UncompressedSize: uncompressedSize,
		UncompressedCRC:  uncompressedCRC,
		Compression:      compression,
		Records:          records,
	}, nil
}

func ParseMessageIndex(buf []byte) (*MessageIndex, error) {
	channelID, offset, err := getUint16(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse message index channel_id: %w", err)
	}
	recordsBytes, _, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse message index records: %w", err)
	}
	n := len(recordsBytes) / 16
	records := make([]MessageIndexEntry, n)
	off := 0
	for i := 0; i < n; i++ {
		ts, next, err := getUint64(recordsBytes, off)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse message index entry %d: %w", i, err)
		}
		o, next2, err := getUint64(recordsBytes, next)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse message index entry %d: %w", i, err)
		}
		records[i] = MessageIndexEntry{Timestamp: ts, Offset: o}
		off = next2
	}
	return &MessageIndex{ChannelID: channelID, Records: records}, nil
}

func ParseChunkIndex(buf []byte) (*ChunkIndex, error) {
	startTime, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index message_start_time: %w", err)
	}
	endTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index message_end_time: %w", err)
	}
	chunkStartOffset, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index chunk_start_offset: %w", err)
	}
	chunkLength, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index chunk_length: %w", err)
	}
	msgIdxMapBytes, offset, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index message_index_offsets: %w", err)
	}
	msgIdxOffsets := make(map[uint16]uint64)
	mo := 0
	for mo < len(msgIdxMapBytes) {
		var chID uint16
		var chOff uint64
		chID, mo, err = getUint16(msgIdxMapBytes, mo)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse chunk index message_index_offsets entry: %w", err)
		}
		chOff, mo, err = getUint64(msgIdxMapBytes, mo)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse chunk index message_index_offsets entry: %w", err)
		}
		msgIdxOffsets[chID] = chOff
	}
	msgIdxLength, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index message_index_length: %w", err)
	}
	compression, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index compression: %w", err)
	}
	compressedSize, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index compressed_size: %w", err)
	}
	uncompressedSize, _, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse chunk index uncompressed_size: %w", err)
	}
	return &ChunkIndex{
		MessageStartTime:    startTime,
		MessageEndTime:      endTime,
		ChunkStartOffset:    chunkStartOffset,
		ChunkLength:         chunkLength,
		MessageIndexOffsets: msgIdxOffsets,
		MessageIndexLength:  msgIdxLength,
		Compression:         CompressionFormat(compression),
		CompressedSize:      compressedSize,
		UncompressedSize:    uncompressedSize,
	}, nil
}

// parseAttachmentReader reads an Attachment record's fixed fields from r
// (everything up to and including data_size) and returns a streaming
// AttachmentReader over the remaining data + crc, sized by data_size.
func parseAttachmentReader(r io.Reader, computeCRC bool) (*AttachmentReader, error) {
	cr := newCRCTrackingReader(r, computeCRC)

	logTime, err := readUint64(cr)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment log_time: %w", err)
	}
	createTime, err := readUint64(cr)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment create_time: %w", err)
	}
	name, err := readPrefixedString(cr)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment name: %w", err)
	}
	mediaType, err := readPrefixedString(cr)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment media_type: %w", err)
	}
	dataSize, err := readUint64(cr)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment data_size: %w", err)
	}
	return &AttachmentReader{
		LogTime:    logTime,
		CreateTime: createTime,
		Name:       name,
		MediaType:  mediaType,
		DataSize:   dataSize,
		data:       &io.LimitedReader{R: cr, N: int64(dataSize)},
		base:       r,
		crcReader:  cr,
	}, nil
}

func ParseAttachmentIndex(buf []byte) (*AttachmentIndex, error) {
	offsetField, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index offset: %w", err)
	}
	length, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index length: %w", err)
	}
	logTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index log_time: %w", err)
	}
	createTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index create_time: %w", err)
	}
	dataSize, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index data_size: %w", err)
	}
	name, offset, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index name: %w", err)
	}
	mediaType, _, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse attachment index media_type: %w", err)
	}
	return &AttachmentIndex{
		Offset: offsetField, Length: length, LogTime: logTime, CreateTime: createTime,
		DataSize: dataSize, Name: name, MediaType: mediaType,
	}, nil
}

func ParseStatistics(buf []byte) (*Statistics, error) {
	messageCount, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics message_count: %w", err)
	}
	schemaCount, offset, err := getUint16(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics schema_count: %w", err)
	}
	channelCount, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics channel_count: %w", err)
	}
	attachmentCount, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics attachment_count: %w", err)
	}
	metadataCount, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics metadata_count: %w", err)
	}
	chunkCount, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics chunk_count: %w", err)
	}
	messageStartTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics message_start_time: %w", err)
	}
	messageEndTime, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics message_end_time: %w", err)
	}
	countsBytes, _, err := getPrefixedBytes(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse statistics channel_message_counts: %w", err)
	}
	counts := make(map[uint16]uint64)
	co := 0
	for co < len(countsBytes) {
		var chID uint16
		var n uint64
		chID, co, err = getUint16(countsBytes, co)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse statistics channel_message_counts entry: %w", err)
		}
		n, co, err = getUint64(countsBytes, co)
		if err != nil {
			return nil, fmt.Errorf("mcap: parse statistics channel_message_counts entry: %w", err)
		}
		counts[chID] = n
	}
	return &Statistics{
		MessageCount: messageCount, SchemaCount: schemaCount, ChannelCount: channelCount,
		AttachmentCount: attachmentCount, MetadataCount: metadataCount, ChunkCount: chunkCount,
		MessageStartTime: messageStartTime, MessageEndTime: messageEndTime,
		ChannelMessageCounts: counts,
	}, nil
}

func ParseMetadata(buf []byte) (*Metadata, error) {
	name, offset, err := getPrefixedString(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse metadata name: %w", err)
	}
	metadata, _, err := getPrefixedMap(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse metadata metadata: %w", err)
	}
	return &Metadata{Name: name, Metadata: metadata}, nil
}

func ParseMetadataIndex(buf []byte) (*MetadataIndex, error) {
	offsetField, offset, err := getUint64(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse metadata index offset: %w", err)
	}
	length, offset, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse metadata index length: %w", err)
	}
	name, _, err := getPrefixedString(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse metadata index name: %w", err)
	}
	return &MetadataIndex{Offset: offsetField, Length: length, Name: name}, nil
}

func ParseSummaryOffset(buf []byte) (*SummaryOffset, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("mcap: parse summary offset: %w", io.ErrShortBuffer)
	}
	groupOpcode := OpCode(buf[0])
	groupStart, offset, err := getUint64(buf, 1)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse summary offset group_start: %w", err)
	}
	groupLength, _, err := getUint64(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse summary offset group_length: %w", err)
	}
	return &SummaryOffset{GroupOpcode: groupOpcode, GroupStart: groupStart, GroupLength: groupLength}, nil
}

func ParseDataEnd(buf []byte) (*DataEnd, error) {
	crc, _, err := getUint32(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("mcap: parse data end data_section_crc: %w", err)
	}
	return &DataEnd{DataSectionCRC: crc}, nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return leUint64(buf[:]), nil
}

func readPrefixedString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := leUint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
