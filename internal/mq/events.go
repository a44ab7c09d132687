package mq

import (
	"context"
	"time"
)

const EventPacketIngested = "packet.ingested"

// PacketIngested is published after a packet was written to IoTDB.
type PacketIngested struct {
	Device         string    `json:"device"`
	PacketType     string    `json:"packet_type"`
	RecordsWritten int       `json:"records_written"`
	ArchiveKey     string    `json:"archive_key,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// PublishPacketIngested sends event to channel tagged with its event name.
func PublishPacketIngested(ctx context.Context, p Publisher, channel string, event PacketIngested) (string, error) {
	return PublishJSON(ctx, p, channel, event, map[string]string{"event": EventPacketIngested})
}
