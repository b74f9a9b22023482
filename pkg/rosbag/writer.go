package rosbag

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/robocap/robocap/internal/compress"
	"github.com/robocap/robocap/pkg/byteio"
)

// WriterOptions configures a Writer's chunking and compression. The zero
// value writes an unchunked, uncompressed bag with no index section (a
// valid, if unindexed, bag file — index_pos is 0 in that case, the bag
// format's own convention for "no index").
type WriterOptions struct {
	Chunked     bool
	ChunkSize   int64
	Compression compress.Format // None, LZ4, or BZ2; ZSTD is MCAP-only and rejected by NewWriter
}

func (o WriterOptions) chunkSize() int64 {
	if o.ChunkSize <= 0 {
		return 768 << 10 // ROS1's own default chunk threshold
	}
	return o.ChunkSize
}

// Writer builds a ROS1 bag file. Because the BagHeader record at the front
// of the file carries index_pos, a forward pointer to the index/connection
// section that is only known once the whole data section has been
// written, and the underlying byteio.Writer is deliberately append-only
// (as it is for pkg/mcap, which never needs to patch anything already
// written), Writer buffers the entire data section in memory and flushes
// it — BagHeader first, with its index_pos now known, followed by the
// buffered data, followed by the connection and chunk-info summary — in
// one shot on Close. This trades streaming-to-disk for a simpler,
// append-only sink; see DESIGN.md for the full rationale.
type Writer struct {
	w    byteio.Writer
	opts WriterOptions

	dataSection bytes.Buffer

	connections []*Connection
	connIDByKey map[string]uint32
	nextConnID  uint32

	chunkInfos []*ChunkInfo

	chunkBuf        *bytes.Buffer
	chunkStartTime  uint64
	chunkEndTime    uint64
	chunkMsgCount   uint64
	chunkEntries    map[uint32][]IndexEntry
	chunkConnCounts map[uint32]uint32
	chunkOpen       bool

	messageCount uint64
	closed       bool
}

// NewWriter returns a Writer ready to accept connections and messages.
func NewWriter(w byteio.Writer, opts WriterOptions) (*Writer, error) {
	if opts.Compression == compress.ZSTD {
		return nil, ErrCompressionNotSupportedHere(string(compress.ZSTD))
	}
	return &Writer{
		w:           w,
		opts:        opts,
		connIDByKey: make(map[string]uint32),
	}, nil
}

// WriteConnection registers a connection, returning its ID. Calling
// WriteConnection twice with an identical topic/type/md5sum returns the
// existing ID rather than assigning a new one.
func (w *Writer) WriteConnection(h ConnectionHeader) (uint32, error) {
	key := h.Topic + "\x00" + h.Type + "\x00" + h.MD5Sum
	if id, ok := w.connIDByKey[key]; ok {
		return id, nil
	}
	id := w.nextConnID
	w.nextConnID++
	c := &Connection{ID: id, Topic: h.Topic, Header: h}
	w.connections = append(w.connections, c)
	w.connIDByKey[key] = id
	w.dataSection.Write(encodeConnectionRecord(c))
	return id, nil
}

// connectionByID returns the registered connection for id, or nil.
// Connections are assigned dense sequential IDs starting at 0, so they can
// be looked up directly by slice index.
func (w *Writer) connectionByID(id uint32) *Connection {
	if int(id) >= len(w.connections) {
		return nil
	}
	return w.connections[id]
}

// WriteMessage appends a message on the given connection, buffering it
// into the active chunk when chunking is enabled.
func (w *Writer) WriteMessage(m *Message) error {
	if w.connectionByID(m.ConnectionID) == nil {
		return fmt.Errorf("rosbag: %w: %d", ErrUnknownConnection, m.ConnectionID)
	}
	w.messageCount++

	if !w.opts.Chunked {
		w.dataSection.Write(encodeMessageDataRecord(m.ConnectionID, m.Time, m.Data))
		return nil
	}

	if !w.chunkOpen {
		w.openChunk()
	}
	entry := IndexEntry{Time: m.Time, Offset: uint32(w.chunkBuf.Len())}
	w.chunkEntries[m.ConnectionID] = append(w.chunkEntries[m.ConnectionID], entry)
	w.chunkConnCounts[m.ConnectionID]++
	w.chunkMsgCount++
	if w.chunkMsgCount == 1 || m.Time < w.chunkStartTime {
		w.chunkStartTime = m.Time
	}
	if m.Time > w.chunkEndTime {
		w.chunkEndTime = m.Time
	}
	w.chunkBuf.Write(encodeMessageDataRecord(m.ConnectionID, m.Time, m.Data))

	if int64(w.chunkBuf.Len()) >= w.opts.chunkSize() {
		return w.flushChunk()
	}
	return nil
}

func (w *Writer) openChunk() {
	w.chunkBuf = &bytes.Buffer{}
	w.chunkStartTime = 0
	w.chunkEndTime = 0
	w.chunkMsgCount = 0
	w.chunkEntries = make(map[uint32][]IndexEntry)
	w.chunkConnCounts = make(map[uint32]uint32)
	w.chunkOpen = true
}

// flushChunk compresses the active chunk's buffered records and appends
// the Chunk record, followed by one IndexData record per connection used
// in it, to the data section, recording a ChunkInfo entry for Close.
func (w *Writer) flushChunk() error {
	if !w.chunkOpen || w.chunkBuf.Len() == 0 {
		w.chunkOpen = false
		return nil
	}
	uncompressed := w.chunkBuf.Bytes()

	var compressedBuf bytes.Buffer
	cw, err := compress.NewWriter(&compressedBuf, w.opts.Compression, compress.LevelDefault)
	if err != nil {
		return fmt.Errorf("rosbag: open chunk compressor: %w", err)
	}
	if _, err := cw.Write(uncompressed); err != nil {
		return fmt.Errorf("rosbag: compress chunk: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("rosbag: finalize chunk compression: %w", err)
	}

	chunkPos := uint64(len(Magic)+bagHeaderRecordLength) + uint64(w.dataSection.Len())

	w.dataSection.Write(assembleRecord(
		encodeChunkHeader(string(w.opts.Compression), uint32(len(uncompressed))),
		compressedBuf.Bytes(),
	))

	for _, connID := range sortedUint32KeysFromEntries(w.chunkEntries) {
		w.dataSection.Write(encodeIndexDataRecord(connID, w.chunkEntries[connID]))
	}

	counts := make(map[uint32]uint32, len(w.chunkConnCounts))
	for id, n := range w.chunkConnCounts {
		counts[id] = n
	}
	w.chunkInfos = append(w.chunkInfos, &ChunkInfo{
		ChunkPos:         chunkPos,
		StartTime:        w.chunkStartTime,
		EndTime:          w.chunkEndTime,
		ConnectionCounts: counts,
	})

	w.chunkOpen = false
	w.chunkBuf = nil
	return nil
}

func sortedUint32KeysFromEntries(m map[uint32][]IndexEntry) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close flushes any open chunk, assembles the BagHeader (now that
// index_pos is known) and the trailing connection/chunk-info summary, and
// writes the whole file in one shot.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushChunk(); err != nil {
		return err
	}

	var indexPos uint64
	if len(w.chunkInfos) > 0 {
		indexPos = uint64(len(Magic)+bagHeaderRecordLength) + uint64(w.dataSection.Len())
	}

	var out bytes.Buffer
	out.Write(Magic)
	out.Write(encodeBagHeaderRecord(indexPos, uint32(len(w.connections)), uint32(len(w.chunkInfos))))
	out.Write(w.dataSection.Bytes())
	if indexPos != 0 {
		for _, c := range w.connections {
			out.Write(encodeConnectionRecord(c))
		}
		for _, ci := range w.chunkInfos {
			out.Write(encodeChunkInfoRecord(ci))
		}
	}

	if _, err := w.w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("rosbag: write bag: %w", err)
	}
	return w.w.Close()
}
