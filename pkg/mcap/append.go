package mcap

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/robocap/robocap/pkg/byteio"
	"github.com/robocap/robocap/pkg/mcap/slicemap"
)

// OpenForAppend reopens a previously-closed MCAP file for further writes.
// It locates the prior DataEnd record, truncates everything from there
// onward (the old DataEnd, summary section, footer, and closing magic),
// and, when opts.IncludeCRC is set, recomputes the running data-section
// CRC over the bytes it keeps, so the eventual new Close() stores a CRC
// covering the old and the new records alike.
//
// When the file's summary section is present and well-formed, the prior
// schema/channel/chunk-index/statistics state is rebuilt from it directly.
// Otherwise it falls back to RecoverInfoAt's full linear scan, which also
// supplies the truncation point in that case; that scan does not rebuild
// chunk indexes, so the new summary then indexes only the chunks written
// after reopening.
func OpenForAppend(path string, opts WriterOptions) (*Writer, error) {
	fr, err := byteio.OpenFileReader(path)
	if err != nil {
		return nil, err
	}

	var info *Info
	var resumeOffset int64
	var priorDataCRC uint32

	r, err := NewReader(fr)
	if err == nil {
		if summaryInfo, infoErr := r.Info(); infoErr == nil && summaryInfo.Footer != nil && summaryInfo.Footer.SummaryStart != 0 {
			if offset, _, locErr := locateDataEnd(fr, summaryInfo.Footer.SummaryStart); locErr == nil {
				info = summaryInfo
				resumeOffset = offset
			}
		}
	}
	if info == nil {
		if seekErr := fr.SeekStart(0); seekErr != nil {
			fr.Close()
			return nil, seekErr
		}
		recovered, offset, recErr := RecoverInfoAt(fr)
		if recErr != nil {
			fr.Close()
			return nil, fmt.Errorf("mcap: open for append: recover prior state: %w", recErr)
		}
		info = recovered
		resumeOffset = offset
	}
	if opts.IncludeCRC {
		// The prior DataEnd's stored CRC also covers that record's own head,
		// which is truncated away, so recompute over what is kept.
		if err := fr.SeekStart(int64(len(Magic))); err != nil {
			fr.Close()
			return nil, err
		}
		h := crc32.NewIEEE()
		if _, err := io.CopyN(h, fr, resumeOffset-int64(len(Magic))); err != nil {
			fr.Close()
			return nil, fmt.Errorf("mcap: open for append: recompute data-section CRC: %w", err)
		}
		priorDataCRC = h.Sum32()
	}
	if err := fr.Close(); err != nil {
		return nil, err
	}

	fw, err := byteio.OpenAppendFileWriter(path, resumeOffset)
	if err != nil {
		return nil, err
	}
	tracked := newTrackingWriter(fw)
	if opts.IncludeCRC {
		tracked.startTrackingCRC()
		tracked.crc = priorDataCRC
	}

	w := &Writer{
		w:              tracked,
		opts:           opts,
		schemaIDByKey:  make(map[string]uint16),
		channelIDByKey: make(map[string]uint16),
		messageIndexes: make(map[uint16]*MessageIndex),
		statistics:     Statistics{ChannelMessageCounts: make(map[uint16]uint64)},
	}
	if info.Statistics != nil {
		w.statistics = *info.Statistics
		if w.statistics.ChannelMessageCounts == nil {
			w.statistics.ChannelMessageCounts = make(map[uint16]uint64)
		}
	}
	for id, s := range info.Schemas {
		w.schemasByID = slicemap.SetAt(w.schemasByID, id, s)
		w.schemaIDByKey[schemaKey(s.Name, s.Encoding, s.Data)] = id
		if id >= w.nextSchemaID {
			w.nextSchemaID = id + 1
		}
	}
	if w.nextSchemaID == 0 {
		w.nextSchemaID = 1 // 0 is reserved
	}
	for id, c := range info.Channels {
		w.channelsByID = slicemap.SetAt(w.channelsByID, id, c)
		w.channelIDByKey[fmt.Sprintf("%s\x00%s\x00%d", c.Topic, c.MessageEncoding, c.SchemaID)] = id
		if id >= w.nextChannelID {
			w.nextChannelID = id + 1
		}
	}
	for _, ci := range info.ChunkIndexes {
		w.chunkIndexes = append(w.chunkIndexes, ci)
	}
	for _, ai := range info.AttachmentIndexes {
		w.attachmentIndexes = append(w.attachmentIndexes, ai)
	}
	for _, mi := range info.MetadataIndexes {
		w.metadataIndexes = append(w.metadataIndexes, mi)
	}
	return w, nil
}

// locateDataEnd reads the DataEnd record immediately preceding
// summaryStart, returning the offset of its opcode byte (the append
// truncation point) and the data-section CRC it recorded.
func locateDataEnd(r byteio.Reader, summaryStart uint64) (int64, uint32, error) {
	const dataEndSize = 9 + 4
	offset := int64(summaryStart) - dataEndSize
	if offset < 0 {
		return 0, 0, fmt.Errorf("mcap: summary_start too small to precede a DataEnd record")
	}
	if err := r.SeekStart(offset); err != nil {
		return 0, 0, err
	}
	lx, err := NewLexer(r, lexerOptions{SkipMagic: true})
	if err != nil {
		return 0, 0, err
	}
	op, body, err := lx.Next(nil)
	if err != nil {
		return 0, 0, fmt.Errorf("mcap: read prior data end record: %w", err)
	}
	if OpCode(op) != OpDataEnd {
		return 0, 0, fmt.Errorf("mcap: expected data end record at offset %d, got %s", offset, OpCode(op))
	}
	de, err := ParseDataEnd(body)
	if err != nil {
		return 0, 0, err
	}
	return offset, de.DataSectionCRC, nil
}
