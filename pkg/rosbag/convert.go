package rosbag

import (
	"fmt"
	"io"

	"github.com/robocap/robocap/pkg/mcap"
	"github.com/robocap/robocap/pkg/schema/rosmsg"
)

// ToMCAP copies every connection and message from r into w, translating the
// bag's wire shapes into MCAP's without touching message payload bytes: a
// connection's message_definition becomes a "ros1msg"-encoded Schema, its
// topic/type/md5sum a Channel with MessageEncoding "ros1", and the
// connection header's remaining fields (callerid, latching, ...) become
// channel metadata. Since ROS1-encoded message bytes are a valid MCAP
// message payload as-is (MCAP messages are opaque to the container), no
// re-encoding of message bodies occurs in either direction.
func ToMCAP(w *mcap.Writer, r *Reader) error {
	channelByConn := make(map[uint32]uint16)

	connections, err := bagConnections(r)
	if err != nil {
		return err
	}
	for _, c := range connections {
		chID, err := registerMCAPChannel(w, c)
		if err != nil {
			return fmt.Errorf("rosbag: to mcap: register connection %d (%s): %w", c.ID, c.Topic, err)
		}
		channelByConn[c.ID] = chID
	}

	// Opened after bagConnections, which may scan the shared reader.
	it, err := r.Messages(WithOrder(FileOrder), WithIndex(false))
	if err != nil {
		return fmt.Errorf("rosbag: to mcap: open message iterator: %w", err)
	}
	defer it.Close()

	var seq uint32
	for {
		m, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("rosbag: to mcap: read message: %w", err)
		}
		chID, ok := channelByConn[m.ConnectionID]
		if !ok {
			return fmt.Errorf("rosbag: to mcap: %w: %d", ErrUnknownConnection, m.ConnectionID)
		}
		if err := w.WriteMessage(&mcap.Message{
			ChannelID:   chID,
			Sequence:    seq,
			LogTime:     m.Time,
			PublishTime: m.Time,
			Data:        m.Data,
		}); err != nil {
			return fmt.Errorf("rosbag: to mcap: write message: %w", err)
		}
		seq++
	}
	return nil
}

// bagConnections returns r's connections, preferring the summary-section
// listing (Info) and falling back to a full linear scan (RecoverInfo) for
// unindexed bags.
func bagConnections(r *Reader) ([]*Connection, error) {
	info, err := r.Info()
	if err != nil || len(info.Connections) == 0 {
		recovered, rerr := RecoverInfo(r.r)
		if rerr != nil {
			if err != nil {
				return nil, err
			}
			return nil, rerr
		}
		info = recovered
	}
	out := make([]*Connection, 0, len(info.Connections))
	for _, c := range info.Connections {
		out = append(out, c)
	}
	return out, nil
}

func registerMCAPChannel(w *mcap.Writer, c *Connection) (uint16, error) {
	metadata := make(map[string]string, len(c.Header.Extra)+1)
	for k, v := range c.Header.Extra {
		metadata[k] = v
	}
	if c.Header.MD5Sum != "" {
		metadata["md5sum"] = c.Header.MD5Sum
	}
	schemaID, err := w.AddSchema(c.Header.Type, "ros1msg", []byte(c.Header.MessageDefinition))
	if err != nil {
		return 0, err
	}
	return w.AddChannel(c.Topic, "ros1", schemaID, metadata)
}

// FromMCAP copies every channel and message from r into w, reconstructing
// each bag Connection from the MCAP channel's schema and metadata. A
// channel's md5sum is taken from its metadata when present (as ToMCAP
// writes it); otherwise it is recomputed from the schema text via
// pkg/schema/rosmsg, which requires the schema to be valid ROS1 message
// definition syntax (encoding "ros1msg") — channels using any other
// encoding are rejected.
func FromMCAP(w *Writer, r *mcap.Reader) error {
	info, err := r.Info()
	if err != nil {
		return fmt.Errorf("rosbag: from mcap: %w", err)
	}

	connIDByChannel := make(map[uint16]uint32)
	for _, ch := range info.Channels {
		h, err := connectionHeaderFor(ch, info)
		if err != nil {
			return fmt.Errorf("rosbag: from mcap: channel %d (%s): %w", ch.ID, ch.Topic, err)
		}
		connID, err := w.WriteConnection(h)
		if err != nil {
			return err
		}
		connIDByChannel[ch.ID] = connID
	}

	it, err := r.Messages(mcap.WithOrder(mcap.FileOrder))
	if err != nil {
		return fmt.Errorf("rosbag: from mcap: open message iterator: %w", err)
	}
	defer it.Close()

	for {
		m, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("rosbag: from mcap: read message: %w", err)
		}
		connID, ok := connIDByChannel[m.ChannelID]
		if !ok {
			return fmt.Errorf("rosbag: from mcap: %w: channel %d", ErrUnknownConnection, m.ChannelID)
		}
		if err := w.WriteMessage(&Message{ConnectionID: connID, Time: m.LogTime, Data: m.Data}); err != nil {
			return fmt.Errorf("rosbag: from mcap: write message: %w", err)
		}
	}
	return nil
}

func connectionHeaderFor(ch *mcap.Channel, info *mcap.Info) (ConnectionHeader, error) {
	s, ok := info.Schemas[ch.SchemaID]
	if !ok {
		return ConnectionHeader{}, fmt.Errorf("schema %d not found", ch.SchemaID)
	}
	if s.Encoding != "ros1msg" {
		return ConnectionHeader{}, fmt.Errorf("unsupported schema encoding %q, want \"ros1msg\"", s.Encoding)
	}

	extra := make(map[string]string, len(ch.Metadata))
	var md5sum string
	for k, v := range ch.Metadata {
		if k == "md5sum" {
			md5sum = v
			continue
		}
		extra[k] = v
	}
	if md5sum == "" {
		sum, err := computeMD5(s.Name, s.Data)
		if err != nil {
			return ConnectionHeader{}, fmt.Errorf("compute md5sum: %w", err)
		}
		md5sum = sum
	}

	return ConnectionHeader{
		Topic:             ch.Topic,
		Type:              s.Name,
		MD5Sum:            md5sum,
		MessageDefinition: string(s.Data),
		Extra:             extra,
	}, nil
}

func computeMD5(name string, definition []byte) (string, error) {
	top, siblingDefs := rosmsg.SplitConcatenatedDefinition(string(definition))
	root, siblings, err := rosmsg.ParseROS1(name, []byte(top), siblingDefs)
	if err != nil {
		return "", err
	}
	siblings[name] = root
	return rosmsg.MD5(root, siblings)
}
