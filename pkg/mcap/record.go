// Package mcap implements the MCAP container format: record definitions,
// a streaming writer, and both summary-backed and linear-scan readers.
package mcap

import (
	"fmt"
	"io"
)

// Magic is the 8-byte sequence that opens and closes every MCAP file.
var Magic = []byte{0x89, 'M', 'C', 'A', 'P', 0x30, '\r', '\n'}

// OpCode identifies an MCAP record type.
type OpCode byte

const (
	OpReserved        OpCode = 0x00
	OpHeader          OpCode = 0x01
	OpFooter          OpCode = 0x02
	OpSchema          OpCode = 0x03
	OpChannel         OpCode = 0x04
	OpMessage         OpCode = 0x05
	OpChunk           OpCode = 0x06
	OpMessageIndex    OpCode = 0x07
	OpChunkIndex      OpCode = 0x08
	OpAttachment      OpCode = 0x09
	OpAttachmentIndex OpCode = 0x0A
	OpStatistics      OpCode = 0x0B
	OpMetadata        OpCode = 0x0C
	OpMetadataIndex   OpCode = 0x0D
	OpSummaryOffset   OpCode = 0x0E
	OpDataEnd         OpCode = 0x0F
)

func (c OpCode) String() string {
	switch c {
	case OpReserved:
		return "reserved"
	case OpHeader:
		return "header"
	case OpFooter:
		return "footer"
	case OpSchema:
		return "schema"
	case OpChannel:
		return "channel"
	case OpMessage:
		return "message"
	case OpChunk:
		return "chunk"
	case OpMessageIndex:
		return "message index"
	case OpChunkIndex:
		return "chunk index"
	case OpAttachment:
		return "attachment"
	case OpAttachmentIndex:
		return "attachment index"
	case OpStatistics:
		return "statistics"
	case OpMetadata:
		return "metadata"
	case OpMetadataIndex:
		return "metadata index"
	case OpSummaryOffset:
		return "summary offset"
	case OpDataEnd:
		return "data end"
	default:
		return fmt.Sprintf("<unrecognized opcode 0x%02x>", byte(c))
	}
}

// CompressionFormat names a chunk's compression codec.
type CompressionFormat string

const (
	CompressionNone CompressionFormat = ""
	CompressionZSTD CompressionFormat = "zstd"
	CompressionLZ4  CompressionFormat = "lz4"
)

func (c CompressionFormat) String() string { return string(c) }

// Header is the first record in an MCAP file.
type Header struct {
	Profile string
	Library string
}

// Footer is the last record before the closing magic.
type Footer struct {
	SummaryStart       uint64
	SummaryOffsetStart uint64
	SummaryCRC         uint32
}

// Schema describes one message type, identified within a file by ID. Any
// two Schema records sharing an ID must be identical; ID 0 is reserved and
// never assigned to a real schema.
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

// Channel binds a topic to a schema and message encoding. Any two Channel
// records sharing an ID must be identical.
type Channel struct {
	ID              uint16
	SchemaID        uint16
	Topic           string
	MessageEncoding string
	Metadata        map[string]string
}

// Message is one timestamped record on a channel.
type Message struct {
	ChannelID   uint16
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	Data        []byte
}

// Chunk batches Schema, Channel, and Message records, optionally
// compressed.
type Chunk struct {
	MessageStartTime uint64
	MessageEndTime   uint64
	UncompressedSize uint64
	UncompressedCRC  uint32
	Compression      string
	Records          []byte
}

// MessageIndexEntry locates one message within a chunk's decompressed
// record bytes.
type MessageIndexEntry struct {
	Timestamp uint64
	Offset    uint64
}

// MessageIndex lists, for one channel, every message's offset within the
// chunk immediately preceding it in the file.
type MessageIndex struct {
	ChannelID uint16
	Records   []MessageIndexEntry
}

// ChunkIndex locates a Chunk and its MessageIndex records.
type ChunkIndex struct {
	MessageStartTime    uint64
	MessageEndTime      uint64
	ChunkStartOffset    uint64
	ChunkLength         uint64
	MessageIndexOffsets map[uint16]uint64
	MessageIndexLength  uint64
	Compression         CompressionFormat
	CompressedSize      uint64
	UncompressedSize    uint64
}

// Attachment is a fully-buffered auxiliary artifact, for writing.
// Attachment records must not appear within a chunk.
type Attachment struct {
	LogTime    uint64
	CreateTime uint64
	Name       string
	MediaType  string
	Data       []byte
}

// AttachmentReader streams an attachment's data without requiring the
// reader to buffer it, for artifacts too large to hold in memory whole.
type AttachmentReader struct {
	LogTime    uint64
	CreateTime uint64
	Name       string
	MediaType  string
	DataSize   uint64

	data      *io.LimitedReader
	base      io.Reader
	crcReader *crcTrackingReader
	parsedCRC *uint32
}

// Data returns a reader over the attachment's data section. It must be
// fully consumed (or discarded via io.Copy(io.Discard, ...)) before
// ComputedCRC or ParsedCRC can be called.
func (a *AttachmentReader) Data() io.Reader { return a.data }

// ComputedCRC returns the CRC32 actually computed over the fields and data
// read so far. Returns an error if the data section has not been fully
// consumed.
func (a *AttachmentReader) ComputedCRC() (uint32, error) {
	if a.data.N > 0 {
		return 0, fmt.Errorf("mcap: attachment CRC requested before data fully consumed")
	}
	return a.crcReader.Checksum(), nil
}

// ParsedCRC returns the CRC32 field recorded in the attachment record
// itself. Must be called after the data section is fully consumed.
func (a *AttachmentReader) ParsedCRC() (uint32, error) {
	if a.parsedCRC != nil {
		return *a.parsedCRC, nil
	}
	if a.data.N > 0 {
		return 0, fmt.Errorf("mcap: attachment CRC requested before data fully consumed")
	}
	var buf [4]byte
	if _, err := io.ReadFull(a.base, buf[:]); err != nil {
		return 0, fmt.Errorf("mcap: read attachment CRC: %w", err)
	}
	crc := leUint32(buf[:])
	a.parsedCRC = &crc
	return crc, nil
}

// AttachmentIndex locates an Attachment record.
type AttachmentIndex struct {
	Offset     uint64
	Length     uint64
	LogTime    uint64
	CreateTime uint64
	DataSize   uint64
	Name       string
	MediaType  string
}

// Statistics summarizes the contents of the file.
type Statistics struct {
	MessageCount         uint64
	SchemaCount          uint16
	ChannelCount         uint32
	AttachmentCount      uint32
	MetadataCount        uint32
	ChunkCount           uint32
	MessageStartTime     uint64
	MessageEndTime       uint64
	ChannelMessageCounts map[uint16]uint64
}

// Metadata carries arbitrary user key-value pairs under a name.
type Metadata struct {
	Name     string
	Metadata map[string]string
}

// MetadataIndex locates a Metadata record.
type MetadataIndex struct {
	Offset uint64
	Length uint64
	Name   string
}

// SummaryOffset locates a group of same-opcode records within the summary
// section.
type SummaryOffset struct {
	GroupOpcode OpCode
	GroupStart  uint64
	GroupLength uint64
}

// DataEnd marks the end of the data section and carries its CRC.
type DataEnd struct {
	DataSectionCRC uint32
}

// Info is the parsed result of a summary-section scan, as produced by
// Reader.Info.
type Info struct {
	Header            *Header
	Footer            *Footer
	Statistics        *Statistics
	Schemas           map[uint16]*Schema
	Channels          map[uint16]*Channel
	ChunkIndexes      []*ChunkIndex
	AttachmentIndexes []*AttachmentIndex
	MetadataIndexes   []*MetadataIndex
}

// ChannelCounts maps topic name to message count.
func (i *Info) ChannelCounts() map[string]uint64 {
	counts := make(map[string]uint64, len(i.Channels))
	if i.Statistics == nil {
		return counts
	}
	for id, n := range i.Statistics.ChannelMessageCounts {
		if ch, ok := i.Channels[id]; ok {
			counts[ch.Topic] = n
		}
	}
	return counts
}

// CanReadUsingIndex reports whether messages can be read efficiently via
// the chunk index, rather than falling back to a linear scan.
func (i *Info) CanReadUsingIndex() bool {
	return len(i.ChunkIndexes) > 0 || (i.Statistics != nil && i.Statistics.MessageCount == 0)
}
