package packets

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// secondsThreshold separates second precision values from millisecond ones.
// 10^12 ms is roughly September 2001.
const secondsThreshold int64 = 1_000_000_000_000

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp converts a decoded JSON value into epoch milliseconds.
// Integers below 10^12 are seconds. Floats are truncated first. Strings are
// either integers or ISO-8601 datetimes; datetimes without an offset are UTC.
func ParseTimestamp(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, fmt.Errorf("timestamp cannot be null")
	case bool:
		return 0, fmt.Errorf("boolean values are not valid timestamps")
	case int:
		return scaleTimestamp(int64(v)), nil
	case int32:
		return scaleTimestamp(int64(v)), nil
	case int64:
		return scaleTimestamp(v), nil
	case float32:
		return timestampFromFloat(float64(v))
	case float64:
		return timestampFromFloat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return scaleTimestamp(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("unable to parse timestamp: %q", v.String())
		}
		return timestampFromFloat(f)
	case string:
		return timestampFromString(v)
	default:
		return 0, fmt.Errorf("unsupported timestamp type: %T", value)
	}
}

func scaleTimestamp(v int64) int64 {
	if v >= secondsThreshold {
		return v
	}
	return v * 1000
}

func timestampFromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, fmt.Errorf("timestamp out of range: %v", f)
	}
	return scaleTimestamp(int64(f)), nil
}

func timestampFromString(raw string) (int64, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return 0, fmt.Errorf("timestamp string cannot be empty")
	}
	if numeric, err := strconv.ParseInt(candidate, 10, 64); err == nil {
		return scaleTimestamp(numeric), nil
	}

	// Accept a space between date and time.
	if len(candidate) > 10 && candidate[10] == ' ' {
		candidate = candidate[:10] + "T" + candidate[11:]
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, candidate); err == nil {
			return parsed.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unable to parse timestamp: %q", raw)
}
