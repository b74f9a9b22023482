package mcap

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/mcap/slicemap"
)

// WriterOptions configures a Writer's chunking, compression, and summary
// behavior. The zero value is valid and writes an unchunked, uncompressed
// file with a full summary section.
type WriterOptions struct {
	Chunked      bool
	ChunkSize    int64
	Compression  compress.Format
	IncludeCRC   bool
	Library      string

	// TopicSorted flushes the active chunk whenever WriteMessage is called
	// for a different channel than the chunk's current messages, so each
	// chunk on disk holds records from exactly one channel. Intended for
	// writers fed a topic-sorted message stream (e.g. a bag-to-mcap
	// conversion that iterates one connection at a time).
	TopicSorted bool

	SkipMessageIndexing bool
	SkipStatistics      bool
	SkipRepeatedSchemas bool
	SkipRepeatedChannels bool
	SkipAttachmentIndex bool
	SkipMetadataIndex   bool
	SkipChunkIndex      bool
	SkipSummaryOffsets  bool
}

func (o WriterOptions) chunkSize() int64 {
	if o.ChunkSize <= 0 {
		return 4 << 20
	}
	return o.ChunkSize
}

// Writer streams MCAP records to an underlying byteio.Writer, buffering
// messages into chunks when configured, and building the summary section
// on Close.
type Writer struct {
	w    *trackingWriter // tracks byte offsets and data/summary CRCs
	opts WriterOptions

	// schemasByID/channelsByID are slice-backed rather than map-backed: IDs
	// are assigned densely starting at 0/1, so a slice indexed directly by
	// ID avoids a map's hashing overhead and keeps Close's summary dump in
	// ID order for free.
	schemasByID    []*Schema
	channelsByID   []*Channel
	schemaIDByKey  map[string]uint16
	channelIDByKey map[string]uint16
	nextSchemaID  uint16
	nextChannelID uint16

	statistics Statistics

	chunkIndexes      []*ChunkIndex
	attachmentIndexes []*AttachmentIndex
	metadataIndexes   []*MetadataIndex

	// active chunk buffering
	chunkBuf        *bytes.Buffer
	chunkStartTime  uint64
	chunkEndTime    uint64
	chunkChannelID  uint16
	messageIndexes  map[uint16]*MessageIndex
	chunkOpen       bool

	closed bool
}

// NewWriter writes the magic bytes and Header record, and returns a Writer
// ready to accept Schema/Channel/Message records.
func NewWriter(w WriteSeeker, opts WriterOptions) (*Writer, error) {
	tracked := newTrackingWriter(w)
	if _, err := tracked.Write(Magic); err != nil {
		return nil, fmt.Errorf("mcap: write magic: %w", err)
	}
	wr := &Writer{
		w:              tracked,
		opts:           opts,
		schemaIDByKey:  make(map[string]uint16),
		channelIDByKey: make(map[string]uint16),
		nextSchemaID:   1, // 0 is reserved
		messageIndexes: make(map[uint16]*MessageIndex),
		statistics:     Statistics{ChannelMessageCounts: make(map[uint16]uint64)},
	}
	if opts.IncludeCRC {
		wr.w.startTrackingCRC()
	}
	if err := wr.writeHeader(&Header{Library: opts.Library}); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) writeHeader(h *Header) error {
	buf := make([]byte, 4+len(h.Profile)+4+len(h.Library))
	offset := putPrefixedString(buf, h.Profile)
	offset += putPrefixedString(buf[offset:], h.Library)
	return w.writeRecord(OpHeader, buf[:offset])
}

func (w *Writer) writeRecord(op OpCode, body []byte) error {
	var head [9]byte
	head[0] = byte(op)
	putUint64(head[1:], uint64(len(body)))
	if _, err := w.w.Write(head[:]); err != nil {
		return fmt.Errorf("mcap: write %s record header: %w", op, err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("mcap: write %s record body: %w", op, err)
	}
	return nil
}

func schemaKey(name, encoding string, data []byte) string {
	buf := append([]byte(name+"\x00"+encoding+"\x00"), data...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// AddSchema registers a schema, returning its ID. Calling AddSchema twice
// with identical name/encoding/data returns the same ID rather than writing
// a duplicate record, per the container's "any two schema records sharing
// an ID must be identical" invariant.
func (w *Writer) AddSchema(name, encoding string, data []byte) (uint16, error) {
	key := schemaKey(name, encoding, data)
	if id, ok := w.schemaIDByKey[key]; ok {
		return id, nil
	}
	id := w.nextSchemaID
	w.nextSchemaID++
	s := &Schema{ID: id, Name: name, Encoding: encoding, Data: data}
	w.schemasByID = slicemap.SetAt(w.schemasByID, id, s)
	w.schemaIDByKey[key] = id
	w.statistics.SchemaCount++
	if err := w.writeSchemaRecord(s); err != nil {
		return 0, err
	}
	return id, nil
}

func (w *Writer) writeSchemaRecord(s *Schema) error {
	buf := make([]byte, 2+4+len(s.Name)+4+len(s.Encoding)+4+len(s.Data))
	offset := putUint16(buf, s.ID)
	offset += putPrefixedString(buf[offset:], s.Name)
	offset += putPrefixedString(buf[offset:], s.Encoding)
	offset += putPrefixedBytes(buf[offset:], s.Data)
	return w.writeRecord(OpSchema, buf[:offset])
}

// AddChannel registers a channel, returning its ID. Calling AddChannel
// twice with the same topic/messageEncoding/schemaID returns the existing
// ID; metadata is not compared, and the first registration's is kept.
func (w *Writer) AddChannel(topic, messageEncoding string, schemaID uint16, metadata map[string]string) (uint16, error) {
	key := fmt.Sprintf("%s\x00%s\x00%d", topic, messageEncoding, schemaID)
	if id, ok := w.channelIDByKey[key]; ok {
		return id, nil
	}
	id := w.nextChannelID
	w.nextChannelID++
	c := &Channel{ID: id, SchemaID: schemaID, Topic: topic, MessageEncoding: messageEncoding, Metadata: metadata}
	w.channelsByID = slicemap.SetAt(w.channelsByID, id, c)
	w.channelIDByKey[key] = id
	w.statistics.ChannelCount++
	if err := w.writeChannelRecord(c); err != nil {
		return 0, err
	}
	return id, nil
}

func (w *Writer) writeChannelRecord(c *Channel) error {
	metaSize := 4 + prefixedMapSize(c.Metadata)
	buf := make([]byte, 2+2+4+len(c.Topic)+4+len(c.MessageEncoding)+metaSize)
	offset := putUint16(buf, c.ID)
	offset += putUint16(buf[offset:], c.SchemaID)
	offset += putPrefixedString(buf[offset:], c.Topic)
	offset += putPrefixedString(buf[offset:], c.MessageEncoding)
	offset += putPrefixedMap(buf[offset:], c.Metadata)
	return w.writeRecord(OpChannel, buf[:offset])
}

// WriteMessage appends a message record, buffering it into the active
// chunk when chunking is enabled. With WriterOptions.TopicSorted, a message
// for a different channel than the chunk currently holds flushes that chunk
// first, so each chunk ends up holding a single channel's records.
func (w *Writer) WriteMessage(m *Message) error {
	if slicemap.GetAt(w.channelsByID, m.ChannelID) == nil {
		return fmt.Errorf("mcap: %w: %d", ErrUnknownChannel, m.ChannelID)
	}
	w.statistics.MessageCount++
	w.statistics.ChannelMessageCounts[m.ChannelID]++
	if w.statistics.MessageCount == 1 || m.LogTime < w.statistics.MessageStartTime {
		w.statistics.MessageStartTime = m.LogTime
	}
	if m.LogTime > w.statistics.MessageEndTime {
		w.statistics.MessageEndTime = m.LogTime
	}

	body := make([]byte, 2+4+8+8+len(m.Data))
	offset := putUint16(body, m.ChannelID)
	offset += putUint32(body[offset:], m.Sequence)
	offset += putUint64(body[offset:], m.LogTime)
	offset += putUint64(body[offset:], m.PublishTime)
	offset += copy(body[offset:], m.Data)
	body = body[:offset]

	if !w.opts.Chunked {
		return w.writeRecord(OpMessage, body)
	}

	if w.opts.TopicSorted && w.chunkOpen && m.ChannelID != w.chunkChannelID {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	if !w.chunkOpen {
		w.openChunk()
		w.chunkChannelID = m.ChannelID
	}
	if !w.opts.SkipMessageIndexing {
		mi, ok := w.messageIndexes[m.ChannelID]
		if !ok {
			mi = &MessageIndex{ChannelID: m.ChannelID}
			w.messageIndexes[m.ChannelID] = mi
		}
		mi.Records = append(mi.Records, MessageIndexEntry{
			Timestamp: m.LogTime,
			Offset:    uint64(w.chunkBuf.Len()),
		})
	}
	if w.chunkBuf.Len() == 0 || m.LogTime < w.chunkStartTime {
		w.chunkStartTime = m.LogTime
	}
	if m.LogTime > w.chunkEndTime {
		w.chunkEndTime = m.LogTime
	}

	var head [9]byte
	head[0] = byte(OpMessage)
	putUint64(head[1:], uint64(len(body)))
	w.chunkBuf.Write(head[:])
	w.chunkBuf.Write(body)

	if int64(w.chunkBuf.Len()) >= w.opts.chunkSize() {
		return w.flushChunk()
	}
	return nil
}

func (w *Writer) openChunk() {
	w.chunkBuf = &bytes.Buffer{}
	w.chunkStartTime = 0
	w.chunkEndTime = 0
	w.messageIndexes = make(map[uint16]*MessageIndex)
	w.chunkOpen = true
}

// flushChunk compresses the active chunk's buffered records and emits the
// Chunk record followed by one MessageIndex per channel, recording a
// ChunkIndex entry.
func (w *Writer) flushChunk() error {
	if !w.chunkOpen || w.chunkBuf.Len() == 0 {
		w.chunkOpen = false
		return nil
	}
	uncompressed := w.chunkBuf.Bytes()
	uncompressedCRC := uint32(0)
	if w.opts.IncludeCRC {
		uncompressedCRC = crc32IEEE(uncompressed)
	}

	var compressedBuf bytes.Buffer
	cw, err := compress.NewWriter(&compressedBuf, w.opts.Compression, compress.LevelDefault)
	if err != nil {
		return fmt.Errorf("mcap: open chunk compressor: %w", err)
	}
	if _, err := cw.Write(uncompressed); err != nil {
		return fmt.Errorf("mcap: compress chunk: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("mcap: finalize chunk compression: %w", err)
	}

	chunkStartOffset, err := w.w.Tell()
	if err != nil {
		return err
	}

	body := make([]byte, 8+8+8+4+4+len(w.opts.Compression)+4+compressedBuf.Len())
	offset := putUint64(body, w.chunkStartTime)
	offset += putUint64(body[offset:], w.chunkEndTime)
	offset += putUint64(body[offset:], uint64(len(uncompressed)))
	offset += putUint32(body[offset:], uncompressedCRC)
	offset += putPrefixedString(body[offset:], string(w.opts.Compression))
	offset += putPrefixedBytes(body[offset:], compressedBuf.Bytes())
	if err := w.writeRecord(OpChunk, body[:offset]); err != nil {
		return err
	}
	chunkLength, err := w.w.Tell()
	if err != nil {
		return err
	}
	chunkLength -= chunkStartOffset

	msgIdxOffsets := make(map[uint16]uint64)
	channelIDs := make([]uint16, 0, len(w.messageIndexes))
	for id := range w.messageIndexes {
		channelIDs = append(channelIDs, id)
	}
	sort.Slice(channelIDs, func(i, j int) bool { return channelIDs[i] < channelIDs[j] })

	msgIdxStart, err := w.w.Tell()
	if err != nil {
		return err
	}
	for _, id := range channelIDs {
		mi := w.messageIndexes[id]
		offsetNow, err := w.w.Tell()
		if err != nil {
			return err
		}
		msgIdxOffsets[id] = uint64(offsetNow)
		recBytes := make([]byte, len(mi.Records)*16)
		o := 0
		for _, e := range mi.Records {
			o += putUint64(recBytes[o:], e.Timestamp)
			o += putUint64(recBytes[o:], e.Offset)
		}
		body := make([]byte, 2+4+len(recBytes))
		bo := putUint16(body, id)
		bo += putPrefixedBytes(body[bo:], recBytes)
		if err := w.writeRecord(OpMessageIndex, body[:bo]); err != nil {
			return err
		}
	}
	msgIdxEnd, err := w.w.Tell()
	if err != nil {
		return err
	}

	if !w.opts.SkipChunkIndex {
		w.chunkIndexes = append(w.chunkIndexes, &ChunkIndex{
			MessageStartTime:    w.chunkStartTime,
			MessageEndTime:      w.chunkEndTime,
			ChunkStartOffset:    uint64(chunkStartOffset),
			ChunkLength:         uint64(chunkLength),
			MessageIndexOffsets: msgIdxOffsets,
			MessageIndexLength:  uint64(msgIdxEnd - msgIdxStart),
			Compression:         CompressionFormat(w.opts.Compression),
			CompressedSize:      uint64(compressedBuf.Len()),
			UncompressedSize:    uint64(len(uncompressed)),
		})
	}
	w.statistics.ChunkCount++
	w.chunkOpen = false
	w.chunkBuf = nil
	return nil
}

// WriteAttachment flushes any open chunk (attachments never appear inside
// one) and writes the attachment record.
func (w *Writer) WriteAttachment(a *Attachment) error {
	if err := w.flushChunk(); err != nil {
		return err
	}
	offset, err := w.w.Tell()
	if err != nil {
		return err
	}
	body := make([]byte, 8+8+4+len(a.Name)+4+len(a.MediaType)+8+len(a.Data)+4)
	bo := putUint64(body, a.LogTime)
	bo += putUint64(body[bo:], a.CreateTime)
	bo += putPrefixedString(body[bo:], a.Name)
	bo += putPrefixedString(body[bo:], a.MediaType)
	bo += putUint64(body[bo:], uint64(len(a.Data)))
	bo += copy(body[bo:], a.Data)
	crc := uint32(0)
	if w.opts.IncludeCRC {
		crc = crc32IEEE(body[:bo])
	}
	bo += putUint32(body[bo:], crc)
	if err := w.writeRecord(OpAttachment, body[:bo]); err != nil {
		return err
	}
	end, err := w.w.Tell()
	if err != nil {
		return err
	}
	w.statistics.AttachmentCount++
	if !w.opts.SkipAttachmentIndex {
		w.attachmentIndexes = append(w.attachmentIndexes, &AttachmentIndex{
			Offset: uint64(offset), Length: uint64(end - offset), LogTime: a.LogTime,
			CreateTime: a.CreateTime, DataSize: uint64(len(a.Data)), Name: a.Name, MediaType: a.MediaType,
		})
	}
	return nil
}

// WriteMetadata flushes any open chunk and writes a metadata record.
func (w *Writer) WriteMetadata(md *Metadata) error {
	if err := w.flushChunk(); err != nil {
		return err
	}
	offset, err := w.w.Tell()
	if err != nil {
		return err
	}
	body := make([]byte, 4+len(md.Name)+4+prefixedMapSize(md.Metadata))
	bo := putPrefixedString(body, md.Name)
	bo += putPrefixedMap(body[bo:], md.Metadata)
	if err := w.writeRecord(OpMetadata, body[:bo]); err != nil {
		return err
	}
	end, err := w.w.Tell()
	if err != nil {
		return err
	}
	w.statistics.MetadataCount++
	if !w.opts.SkipMetadataIndex {
		w.metadataIndexes = append(w.metadataIndexes, &MetadataIndex{
			Offset: uint64(offset), Length: uint64(end - offset), Name: md.Name,
		})
	}
	return nil
}

// Close flushes any open chunk, writes the summary section, DataEnd record
// (with a correctly computed data-section CRC when enabled), Footer, and
// closing magic.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushChunk(); err != nil {
		return err
	}

	// The data-section CRC covers every byte from just after the opening
	// magic (the Header record included) through the DataEnd record's opcode+length, but not its own crc
	// field: write the 9-byte record head, sample the running CRC, then
	// write the crc field itself (which the tracker keeps accumulating,
	// harmlessly, since nothing further reads it as "the" data CRC).
	var deHead [9]byte
	deHead[0] = byte(OpDataEnd)
	putUint64(deHead[1:], 4)
	if _, err := w.w.Write(deHead[:]); err != nil {
		return fmt.Errorf("mcap: write data end header: %w", err)
	}
	dataSectionCRC := uint32(0)
	if w.opts.IncludeCRC {
		dataSectionCRC = w.w.crcChecksum()
	}
	deBody := make([]byte, 4)
	putUint32(deBody, dataSectionCRC)
	if _, err := w.w.Write(deBody); err != nil {
		return fmt.Errorf("mcap: write data end body: %w", err)
	}

	if w.opts.IncludeCRC {
		w.w.resetCRC()
	}
	summaryStart, err := w.w.Tell()
	if err != nil {
		return err
	}

	type group struct {
		op    OpCode
		start uint64
	}
	var groups []group

	if !w.opts.SkipRepeatedSchemas {
		start, _ := w.w.Tell()
		for _, s := range w.schemasByID {
			if s == nil {
				continue
			}
			if err := w.writeSchemaRecord(s); err != nil {
				return err
			}
		}
		groups = append(groups, group{OpSchema, uint64(start)})
	}
	if !w.opts.SkipRepeatedChannels {
		start, _ := w.w.Tell()
		for _, c := range w.channelsByID {
			if c == nil {
				continue
			}
			if err := w.writeChannelRecord(c); err != nil {
				return err
			}
		}
		groups = append(groups, group{OpChannel, uint64(start)})
	}
	if !w.opts.SkipStatistics {
		start, _ := w.w.Tell()
		if err := w.writeStatistics(); err != nil {
			return err
		}
		groups = append(groups, group{OpStatistics, uint64(start)})
	}
	if !w.opts.SkipChunkIndex && len(w.chunkIndexes) > 0 {
		start, _ := w.w.Tell()
		for _, ci := range w.chunkIndexes {
			if err := w.writeChunkIndexRecord(ci); err != nil {
				return err
			}
		}
		groups = append(groups, group{OpChunkIndex, uint64(start)})
	}
	if !w.opts.SkipAttachmentIndex && len(w.attachmentIndexes) > 0 {
		start, _ := w.w.Tell()
		for _, ai := range w.attachmentIndexes {
			if err := w.writeAttachmentIndexRecord(ai); err != nil {
				return err
			}
		}
		groups = append(groups, group{OpAttachmentIndex, uint64(start)})
	}
	if !w.opts.SkipMetadataIndex && len(w.metadataIndexes) > 0 {
		start, _ := w.w.Tell()
		for _, mi := range w.metadataIndexes {
			if err := w.writeMetadataIndexRecord(mi); err != nil {
				return err
			}
		}
		groups = append(groups, group{OpMetadataIndex, uint64(start)})
	}

	summaryOffsetStart, err := w.w.Tell()
	if err != nil {
		return err
	}
	if !w.opts.SkipSummaryOffsets {
		for i, g := range groups {
			groupEnd := uint64(summaryOffsetStart)
			if i+1 < len(groups) {
				groupEnd = groups[i+1].start
			}
			buf := make([]byte, 1+8+8)
			buf[0] = byte(g.op)
			putUint64(buf[1:], g.start)
			putUint64(buf[9:], groupEnd-g.start)
			if err := w.writeRecord(OpSummaryOffset, buf); err != nil {
				return err
			}
		}
	}

	// The summary CRC covers every byte from the start of the summary
	// section through the Footer record's summary_start/
	// summary_offset_start fields, but not the summary_crc field itself:
	// write the Footer head and those two fields first, sample, then
	// write the crc field (the accumulator was reset at summaryStart
	// above, so its value here is exactly that range).
	var foHead [9]byte
	foHead[0] = byte(OpFooter)
	putUint64(foHead[1:], 8+8+4)
	if _, err := w.w.Write(foHead[:]); err != nil {
		return fmt.Errorf("mcap: write footer header: %w", err)
	}
	foPrefix := make([]byte, 8+8)
	putUint64(foPrefix, uint64(summaryStart))
	putUint64(foPrefix[8:], uint64(summaryOffsetStart))
	if _, err := w.w.Write(foPrefix); err != nil {
		return fmt.Errorf("mcap: write footer body: %w", err)
	}
	summaryCRC := uint32(0)
	if w.opts.IncludeCRC {
		summaryCRC = w.w.crcChecksum()
	}
	foCRC := make([]byte, 4)
	putUint32(foCRC, summaryCRC)
	if _, err := w.w.Write(foCRC); err != nil {
		return fmt.Errorf("mcap: write footer crc: %w", err)
	}
	if _, err := w.w.Write(Magic); err != nil {
		return fmt.Errorf("mcap: write closing magic: %w", err)
	}
	return w.w.Close()
}

func (w *Writer) writeStatistics() error {
	countsSize := len(w.statistics.ChannelMessageCounts) * 10
	body := make([]byte, 8+2+4+4+4+4+8+8+4+countsSize)
	offset := putUint64(body, w.statistics.MessageCount)
	offset += putUint16(body[offset:], w.statistics.SchemaCount)
	offset += putUint32(body[offset:], w.statistics.ChannelCount)
	offset += putUint32(body[offset:], w.statistics.AttachmentCount)
	offset += putUint32(body[offset:], w.statistics.MetadataCount)
	offset += putUint32(body[offset:], w.statistics.ChunkCount)
	offset += putUint64(body[offset:], w.statistics.MessageStartTime)
	offset += putUint64(body[offset:], w.statistics.MessageEndTime)
	ids := make([]uint16, 0, len(w.statistics.ChannelMessageCounts))
	for id := range w.statistics.ChannelMessageCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	countsBytes := make([]byte, len(ids)*10)
	co := 0
	for _, id := range ids {
		co += putUint16(countsBytes[co:], id)
		co += putUint64(countsBytes[co:], w.statistics.ChannelMessageCounts[id])
	}
	offset += putPrefixedBytes(body[offset:], countsBytes)
	return w.writeRecord(OpStatistics, body[:offset])
}

func (w *Writer) writeChunkIndexRecord(ci *ChunkIndex) error {
	mapSize := len(ci.MessageIndexOffsets) * 10
	body := make([]byte, 8+8+8+8+4+mapSize+8+4+len(ci.Compression)+8+8)
	offset := putUint64(body, ci.MessageStartTime)
	offset += putUint64(body[offset:], ci.MessageEndTime)
	offset += putUint64(body[offset:], ci.ChunkStartOffset)
	offset += putUint64(body[offset:], ci.ChunkLength)
	ids := make([]uint16, 0, len(ci.MessageIndexOffsets))
	for id := range ci.MessageIndexOffsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	mapBytes := make([]byte, len(ids)*10)
	mo := 0
	for _, id := range ids {
		mo += putUint16(mapBytes[mo:], id)
		mo += putUint64(mapBytes[mo:], ci.MessageIndexOffsets[id])
	}
	offset += putPrefixedBytes(body[offset:], mapBytes)
	offset += putUint64(body[offset:], ci.MessageIndexLength)
	offset += putPrefixedString(body[offset:], string(ci.Compression))
	offset += putUint64(body[offset:], ci.CompressedSize)
	offset += putUint64(body[offset:], ci.UncompressedSize)
	return w.writeRecord(OpChunkIndex, body[:offset])
}

func (w *Writer) writeAttachmentIndexRecord(ai *AttachmentIndex) error {
	body := make([]byte, 8+8+8+8+8+4+len(ai.Name)+4+len(ai.MediaType))
	offset := putUint64(body, ai.Offset)
	offset += putUint64(body[offset:], ai.Length)
	offset += putUint64(body[offset:], ai.LogTime)
	offset += putUint64(body[offset:], ai.CreateTime)
	offset += putUint64(body[offset:], ai.DataSize)
	offset += putPrefixedString(body[offset:], ai.Name)
	offset += putPrefixedString(body[offset:], ai.MediaType)
	return w.writeRecord(OpAttachmentIndex, body[:offset])
}

func (w *Writer) writeMetadataIndexRecord(mi *MetadataIndex) error {
	body := make([]byte, 8+8+4+len(mi.Name))
	offset := putUint64(body, mi.Offset)
	offset += putUint64(body[offset:], mi.Length)
	offset += putPrefixedString(body[offset:], mi.Name)
	return w.writeRecord(OpMetadataIndex, body[:offset])
}

func crc32IEEE(b []byte) uint32 {
	cr := newCRCTrackingReader(bytes.NewReader(b), true)
	buf := make([]byte, len(b))
	_, _ = cr.Read(buf)
	return cr.Checksum()
}
