package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/mq"
	"github.com/cosray/backend/internal/packets"
	"github.com/cosray/backend/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(username string) types.User {
	return types.User{Username: username, Email: username + "@example.com", IsActive: true}
}

var treeSettings = packets.DeviceSettings{Dialect: "tree", RootPath: "root.cosray"}

func TestIngestTimeseries(t *testing.T) {
	writer := &recordingWriter{}
	archive := &recordingArchive{}
	events := mq.NewMemory()
	service := NewPacketService(writer, treeSettings, zerolog.Nop(),
		WithArchive(archive),
		WithEvents(events, "mu-packets.ingested"))
	service.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	raw := []byte(`{"device":"factory.unit1"}`)
	result, err := service.Ingest(context.Background(), PacketRequest{
		Device:     "factory.unit1",
		PacketType: PacketTypeTimeseries,
		Records: []iotdb.Record{
			{Timestamp: 1_700_000_000_000, Measurements: []iotdb.Measurement{{Name: "temperature", Value: 20.5}}},
		},
		Raw: raw,
	})
	require.NoError(t, err)
	assert.Equal(t, PacketResult{Device: "root.cosray.factory.unit1", PacketType: "timeseries", RecordsWritten: 1}, result)
	assert.Equal(t, "root.cosray.factory.unit1", writer.target)
	assert.Equal(t, raw, archive.body)

	messages := events.Messages("mu-packets.ingested")
	require.Len(t, messages, 1)
	var event map[string]any
	require.NoError(t, json.Unmarshal(messages[0].Data, &event))
	assert.Equal(t, "packets/root.cosray.factory.unit1/key.json", event["archive_key"])
	assert.Equal(t, "2026-01-02T03:04:05Z", event["ingested_at"])
}

func TestIngestMuonPacket(t *testing.T) {
	writer := &recordingWriter{}
	service := NewPacketService(writer, treeSettings, zerolog.Nop())
	packet := packets.MuonPacket{
		PackageCounter: 5,
		UTCMs:          1_704_067_200_000,
		Events:         []packets.MuonEvent{{CPUTime: 1, Energy: 100, PPS: 2}, {CPUTime: 2, Energy: 150, PPS: 3}},
	}

	result, err := service.Ingest(context.Background(), PacketRequest{Device: "factory.unit3", PacketType: PacketTypeMuon, Muon: &packet})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsWritten)
	assert.Equal(t, int64(1_704_067_200_001), writer.records[1].Timestamp)
}

func TestIngestTimelineWithoutTimestamps(t *testing.T) {
	service := NewPacketService(&recordingWriter{}, treeSettings, zerolog.Nop())
	packet := packets.TimelinePacket{PackageCounter: 1, Events: []packets.TimelineEvent{{}}}

	_, err := service.Ingest(context.Background(), PacketRequest{Device: "d", PacketType: PacketTypeTimeline, Timeline: &packet})
	require.Error(t, err)
	assert.NotErrorIs(t, err, iotdb.ErrWrite)
}

func TestIngestErrors(t *testing.T) {
	writeErr := errors.New("boom")
	writer := &recordingWriter{err: errors.Join(iotdb.ErrWrite, writeErr)}
	archive := &recordingArchive{}
	service := NewPacketService(writer, treeSettings, zerolog.Nop(), WithArchive(archive))

	_, err := service.Ingest(context.Background(), PacketRequest{
		Device:     "d",
		PacketType: PacketTypeTimeseries,
		Records:    []iotdb.Record{{Timestamp: 1, Measurements: []iotdb.Measurement{{Name: "x", Value: 1}}}},
		Raw:        []byte("{}"),
	})
	assert.ErrorIs(t, err, iotdb.ErrWrite)
	assert.Nil(t, archive.body)

	_, err = service.Ingest(context.Background(), PacketRequest{Device: " . ", PacketType: PacketTypeTimeseries})
	assert.ErrorIs(t, err, packets.ErrEmptyDevice)

	_, err = service.Ingest(context.Background(), PacketRequest{Device: "d", PacketType: PacketTypeTimeseries})
	assert.ErrorIs(t, err, iotdb.ErrInvalidRecords)

	_, err = service.Ingest(context.Background(), PacketRequest{Device: "d", PacketType: "video"})
	assert.ErrorIs(t, err, ErrUnsupportedPacketType)

	_, err = service.Ingest(context.Background(), PacketRequest{Device: "d", PacketType: PacketTypeMuon})
	assert.Error(t, err)
}

func TestIngestArchiveFailureIsNotFatal(t *testing.T) {
	archive := &recordingArchive{err: errors.New("bucket offline")}
	events := mq.NewMemory()
	service := NewPacketService(&recordingWriter{}, treeSettings, zerolog.Nop(), WithArchive(archive), WithEvents(events, "ch"))

	result, err := service.Ingest(context.Background(), PacketRequest{
		Device:     "d",
		PacketType: PacketTypeTimeseries,
		Records:    []iotdb.Record{{Timestamp: 1, Measurements: []iotdb.Measurement{{Name: "x", Value: 1}}}},
		Raw:        []byte("{}"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsWritten)

	messages := events.Messages("ch")
	require.Len(t, messages, 1)
	assert.NotContains(t, string(messages[0].Data), "archive_key")
}
