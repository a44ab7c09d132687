package packets

import (
	"errors"

	"github.com/cosray/backend/internal/iotdb"
)

// MuonEvent is one detected muon.
type MuonEvent struct {
	CPUTime     int64
	Energy      int64
	PPS         int64
	TimestampMs *int64
}

// MuonPacket groups the events reported in one detector transmission.
type MuonPacket struct {
	PackageCounter int64
	UTCMs          int64
	Events         []MuonEvent
	Header         *Triplet
	Tail           *Triplet
	CRC            *int64
	Reserved       []byte
}

// ParseMuonEvent builds an event from a decoded JSON object.
func ParseMuonEvent(value any) (MuonEvent, error) {
	object, err := requireObject(value, "muon_event")
	if err != nil {
		return MuonEvent{}, err
	}

	var event MuonEvent
	if event.CPUTime, err = requireInt(object, "cpu_time", false); err != nil {
		return MuonEvent{}, err
	}
	if event.Energy, err = requireInt(object, "energy", false); err != nil {
		return MuonEvent{}, err
	}
	if event.PPS, err = requireInt(object, "pps", false); err != nil {
		return MuonEvent{}, err
	}
	if event.TimestampMs, err = optionalTimestamp(object, "timestamp"); err != nil {
		return MuonEvent{}, err
	}
	return event, nil
}

// ParseMuonPacket builds a packet from a decoded JSON object.
func ParseMuonPacket(value any) (MuonPacket, error) {
	object, err := requireObject(value, "muon_packet")
	if err != nil {
		return MuonPacket{}, err
	}

	var packet MuonPacket
	if packet.PackageCounter, err = requireInt(object, "package_counter", false); err != nil {
		return MuonPacket{}, err
	}

	utc, err := requireField(object, "utc")
	if err != nil {
		return MuonPacket{}, err
	}
	if packet.UTCMs, err = ParseTimestamp(utc); err != nil {
		return MuonPacket{}, invalid("utc", err.Error())
	}

	rawEvents, err := requireField(object, "events")
	if err != nil {
		return MuonPacket{}, err
	}
	objects, err := requireObjects(rawEvents, "events")
	if err != nil {
		return MuonPacket{}, err
	}
	packet.Events = make([]MuonEvent, 0, len(objects))
	for _, item := range objects {
		event, err := ParseMuonEvent(item)
		if err != nil {
			return MuonPacket{}, err
		}
		packet.Events = append(packet.Events, event)
	}

	if packet.Header, err = optionalTriplet(object, "head"); err != nil {
		return MuonPacket{}, err
	}
	if packet.Tail, err = optionalTriplet(object, "tail"); err != nil {
		return MuonPacket{}, err
	}
	if packet.CRC, err = optionalInt(object, "crc"); err != nil {
		return MuonPacket{}, err
	}
	if packet.Reserved, err = optionalBytes(object, "reserved"); err != nil {
		return MuonPacket{}, err
	}
	return packet, nil
}

// Records flattens the packet into one record per event. Events without
// their own timestamp are placed at utc_ms plus their index.
func (p MuonPacket) Records() ([]iotdb.Record, error) {
	if len(p.Events) == 0 {
		return nil, errors.New("muon packet must contain at least one event")
	}

	count := len(p.Events)
	records := make([]iotdb.Record, 0, count)
	for index, event := range p.Events {
		timestamp := p.UTCMs + int64(index)
		if event.TimestampMs != nil {
			timestamp = *event.TimestampMs
		}

		measurements := []iotdb.Measurement{
			{Name: "muon.energy", Value: event.Energy},
			{Name: "muon.pps", Value: event.PPS},
			{Name: "muon.cpu_time", Value: event.CPUTime},
			{Name: "muon.package_counter", Value: p.PackageCounter},
			{Name: "muon.event_index", Value: int64(index)},
			{Name: "muon.event_count", Value: int64(count)},
			{Name: "muon.utc_ms", Value: p.UTCMs},
		}
		measurements = appendPacketMeta(measurements, "muon", p.CRC, p.Header, p.Tail, p.Reserved)

		records = append(records, iotdb.Record{Timestamp: timestamp, Measurements: measurements})
	}
	return records, nil
}

func appendPacketMeta(measurements []iotdb.Measurement, prefix string, crc *int64, header, tail *Triplet, reserved []byte) []iotdb.Measurement {
	if crc != nil {
		measurements = append(measurements, iotdb.Measurement{Name: prefix + ".packet_crc", Value: *crc})
	}
	if header != nil {
		measurements = append(measurements, iotdb.Measurement{Name: prefix + ".packet_header", Value: header.String()})
	}
	if tail != nil {
		measurements = append(measurements, iotdb.Measurement{Name: prefix + ".packet_tail", Value: tail.String()})
	}
	if reserved != nil {
		measurements = append(measurements, iotdb.Measurement{Name: prefix + ".packet_reserved", Value: formatBytes(reserved)})
	}
	return measurements
}
