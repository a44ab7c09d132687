package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/mq"
	"github.com/cosray/backend/internal/packets"
	"github.com/rs/zerolog"
)

const (
	PacketTypeTimeseries = "timeseries"
	PacketTypeMuon       = "muon"
	PacketTypeTimeline   = "timeline"
)

var ErrUnsupportedPacketType = errors.New("unsupported packet type")

// Archiver keeps a copy of accepted request bodies.
type Archiver interface {
	Store(ctx context.Context, device, packetType string, body []byte) (string, error)
}

// PacketRequest is a validated ingest request. Exactly one of Records,
// Muon or Timeline is used, selected by PacketType.
type PacketRequest struct {
	Device     string
	PacketType string
	Records    []iotdb.Record
	Muon       *packets.MuonPacket
	Timeline   *packets.TimelinePacket

	// Raw is the request body as received, archived after a successful write.
	Raw []byte
}

type PacketResult struct {
	Device         string `json:"device"`
	PacketType     string `json:"packet_type"`
	RecordsWritten int    `json:"records_written"`
}

// PacketService writes packets to IoTDB, then archives and announces them.
type PacketService struct {
	writer   iotdb.Writer
	settings packets.DeviceSettings
	archive  Archiver
	events   mq.Publisher
	channel  string
	log      zerolog.Logger
	now      func() time.Time
}

// PacketServiceOption customizes a PacketService.
type PacketServiceOption func(*PacketService)

// WithArchive stores raw bodies after each successful write.
func WithArchive(archive Archiver) PacketServiceOption {
	return func(s *PacketService) {
		s.archive = archive
	}
}

// WithEvents publishes a packet ingested event to channel after each
// successful write.
func WithEvents(publisher mq.Publisher, channel string) PacketServiceOption {
	return func(s *PacketService) {
		s.events = publisher
		s.channel = channel
	}
}

func NewPacketService(writer iotdb.Writer, settings packets.DeviceSettings, log zerolog.Logger, opts ...PacketServiceOption) *PacketService {
	s := &PacketService{
		writer:   writer,
		settings: settings,
		log:      log.With().Str("component", "packets").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest writes the packet's records to the normalized device. Errors
// wrapping iotdb.ErrWrite mean the store was unavailable.
func (s *PacketService) Ingest(ctx context.Context, req PacketRequest) (PacketResult, error) {
	device, err := packets.NormalizeDevice(req.Device, s.settings)
	if err != nil {
		return PacketResult{}, err
	}

	records, err := req.records()
	if err != nil {
		return PacketResult{}, err
	}
	if len(records) == 0 {
		return PacketResult{}, fmt.Errorf("%w: records must contain at least one element", iotdb.ErrInvalidRecords)
	}

	if err := s.writer.WriteRecords(ctx, device, records); err != nil {
		return PacketResult{}, err
	}

	result := PacketResult{Device: device, PacketType: req.PacketType, RecordsWritten: len(records)}
	s.log.Info().
		Str("device", device).
		Str("packet_type", req.PacketType).
		Int("records", len(records)).
		Msg("packet ingested")

	s.afterWrite(ctx, result, req.Raw)
	return result, nil
}

func (r PacketRequest) records() ([]iotdb.Record, error) {
	switch r.PacketType {
	case PacketTypeTimeseries:
		return r.Records, nil
	case PacketTypeMuon:
		if r.Muon == nil {
			return nil, errors.New("muon packet is required")
		}
		return r.Muon.Records()
	case PacketTypeTimeline:
		if r.Timeline == nil {
			return nil, errors.New("timeline packet is required")
		}
		return r.Timeline.Records()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPacketType, r.PacketType)
	}
}

// afterWrite never fails the request; the data is already stored.
func (s *PacketService) afterWrite(ctx context.Context, result PacketResult, raw []byte) {
	var archiveKey string
	if s.archive != nil && len(raw) > 0 {
		key, err := s.archive.Store(ctx, result.Device, result.PacketType, raw)
		if err != nil {
			s.log.Warn().Err(err).Str("device", result.Device).Msg("failed to archive packet")
		} else {
			archiveKey = key
		}
	}

	if s.events == nil || s.channel == "" {
		return
	}
	_, err := mq.PublishPacketIngested(ctx, s.events, s.channel, mq.PacketIngested{
		Device:         result.Device,
		PacketType:     result.PacketType,
		RecordsWritten: result.RecordsWritten,
		ArchiveKey:     archiveKey,
		IngestedAt:     s.now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("device", result.Device).Msg("failed to publish packet event")
	}
}
