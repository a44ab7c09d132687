package packets

import (
	"errors"

	"github.com/cosray/backend/internal/iotdb"
)

// TimelineEvent is one housekeeping sample: timing, GPS position,
// acceleration and SiPM/MCU telemetry.
type TimelineEvent struct {
	CPUTime         int64
	PPS             int64
	UTCMs           *int64
	PPSUTC          int64
	CPUTimePPS      int64
	GPSLong         int64
	GPSLat          int64
	GPSAlt          int64
	AccX            int64
	AccY            int64
	AccZ            int64
	SiPMTemperature int64
	MCUTemperature  int64
	SiPMCurrent     int64
	SiPMVoltage     int64
	TimestampMs     *int64
}

// TimelinePacket groups timeline events from one transmission.
type TimelinePacket struct {
	PackageCounter int64
	Events         []TimelineEvent
	Header         *Triplet
	Tail           *Triplet
	CRC            *int64
	Reserved       []byte
}

type intField struct {
	name          string
	allowNegative bool
	dst           *int64
}

// ParseTimelineEvent builds an event from a decoded JSON object.
func ParseTimelineEvent(value any) (TimelineEvent, error) {
	object, err := requireObject(value, "timeline_event")
	if err != nil {
		return TimelineEvent{}, err
	}

	var event TimelineEvent
	if event.TimestampMs, err = optionalTimestamp(object, "timestamp"); err != nil {
		return TimelineEvent{}, err
	}

	utc, err := requireField(object, "utc")
	if err != nil {
		return TimelineEvent{}, err
	}
	utcMs, err := ParseTimestamp(utc)
	if err != nil {
		return TimelineEvent{}, invalid("utc", err.Error())
	}
	event.UTCMs = &utcMs

	fields := []intField{
		{"cpu_time", false, &event.CPUTime},
		{"pps", false, &event.PPS},
		{"pps_utc", false, &event.PPSUTC},
		{"cputime_pps", false, &event.CPUTimePPS},
		{"gps_long", true, &event.GPSLong},
		{"gps_lat", true, &event.GPSLat},
		{"gps_alt", true, &event.GPSAlt},
		{"acc_x", true, &event.AccX},
		{"acc_y", true, &event.AccY},
		{"acc_z", true, &event.AccZ},
		{"SiPMTmp", false, &event.SiPMTemperature},
		{"MCUTmp", false, &event.MCUTemperature},
		{"SiPMImon", false, &event.SiPMCurrent},
		{"SiPMVmon", false, &event.SiPMVoltage},
	}
	for _, f := range fields {
		if *f.dst, err = requireInt(object, f.name, f.allowNegative); err != nil {
			return TimelineEvent{}, err
		}
	}
	return event, nil
}

// ParseTimelinePacket builds a packet from a decoded JSON object.
func ParseTimelinePacket(value any) (TimelinePacket, error) {
	object, err := requireObject(value, "timeline_packet")
	if err != nil {
		return TimelinePacket{}, err
	}

	var packet TimelinePacket
	if packet.PackageCounter, err = requireInt(object, "package_counter", false); err != nil {
		return TimelinePacket{}, err
	}

	rawEvents, err := requireField(object, "events")
	if err != nil {
		return TimelinePacket{}, err
	}
	objects, err := requireObjects(rawEvents, "events")
	if err != nil {
		return TimelinePacket{}, err
	}
	packet.Events = make([]TimelineEvent, 0, len(objects))
	for _, item := range objects {
		event, err := ParseTimelineEvent(item)
		if err != nil {
			return TimelinePacket{}, err
		}
		packet.Events = append(packet.Events, event)
	}

	if packet.Header, err = optionalTriplet(object, "head"); err != nil {
		return TimelinePacket{}, err
	}
	if packet.Tail, err = optionalTriplet(object, "tail"); err != nil {
		return TimelinePacket{}, err
	}
	if packet.CRC, err = optionalInt(object, "crc"); err != nil {
		return TimelinePacket{}, err
	}
	if packet.Reserved, err = optionalBytes(object, "reserved"); err != nil {
		return TimelinePacket{}, err
	}
	return packet, nil
}

// Records flattens the packet into one record per event. An event is placed
// at its own timestamp, else at its utc time, else at the first known time in
// the packet plus its index. Zero is a valid time.
func (p TimelinePacket) Records() ([]iotdb.Record, error) {
	if len(p.Events) == 0 {
		return nil, errors.New("timeline packet must contain at least one event")
	}

	var base *int64
	for _, event := range p.Events {
		if event.TimestampMs != nil {
			base = event.TimestampMs
			break
		}
		if event.UTCMs != nil {
			base = event.UTCMs
			break
		}
	}
	if base == nil {
		return nil, errors.New("all events are missing both timestamp and utc; cannot infer timestamps")
	}

	count := len(p.Events)
	records := make([]iotdb.Record, 0, count)
	for index, event := range p.Events {
		var timestamp int64
		switch {
		case event.TimestampMs != nil:
			timestamp = *event.TimestampMs
		case event.UTCMs != nil:
			timestamp = *event.UTCMs
		default:
			timestamp = *base + int64(index)
		}

		measurements := []iotdb.Measurement{
			{Name: "timeline.cpu_time", Value: event.CPUTime},
			{Name: "timeline.pps", Value: event.PPS},
		}
		if event.UTCMs != nil {
			measurements = append(measurements, iotdb.Measurement{Name: "timeline.utc_ms", Value: *event.UTCMs})
		}
		measurements = append(measurements,
			iotdb.Measurement{Name: "timeline.pps_utc", Value: event.PPSUTC},
			iotdb.Measurement{Name: "timeline.cputime_pps", Value: event.CPUTimePPS},
			iotdb.Measurement{Name: "timeline.gps_long", Value: event.GPSLong},
			iotdb.Measurement{Name: "timeline.gps_lat", Value: event.GPSLat},
			iotdb.Measurement{Name: "timeline.gps_alt", Value: event.GPSAlt},
			iotdb.Measurement{Name: "timeline.acc_x", Value: event.AccX},
			iotdb.Measurement{Name: "timeline.acc_y", Value: event.AccY},
			iotdb.Measurement{Name: "timeline.acc_z", Value: event.AccZ},
			iotdb.Measurement{Name: "timeline.sipm_temperature", Value: event.SiPMTemperature},
			iotdb.Measurement{Name: "timeline.mcu_temperature", Value: event.MCUTemperature},
			iotdb.Measurement{Name: "timeline.sipm_current", Value: event.SiPMCurrent},
			iotdb.Measurement{Name: "timeline.sipm_voltage", Value: event.SiPMVoltage},
			iotdb.Measurement{Name: "timeline.package_counter", Value: p.PackageCounter},
			iotdb.Measurement{Name: "timeline.event_index", Value: int64(index)},
			iotdb.Measurement{Name: "timeline.event_count", Value: int64(count)},
		)
		measurements = appendPacketMeta(measurements, "timeline", p.CRC, p.Header, p.Tail, p.Reserved)

		records = append(records, iotdb.Record{Timestamp: timestamp, Measurements: measurements})
	}
	return records, nil
}
