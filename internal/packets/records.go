package packets

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cosray/backend/internal/iotdb"
)

var measurementNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.:]+(?:-[A-Za-z0-9_.:]+)?$`)

// FieldErrors maps field names to validation messages.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

// ValidMeasurementName reports whether name can be used as an IoTDB measurement.
func ValidMeasurementName(name string) bool {
	return measurementNamePattern.MatchString(name)
}

// ParseRecord validates one client supplied record. Measurements are
// returned sorted by name.
func ParseRecord(value any) (iotdb.Record, FieldErrors) {
	errs := FieldErrors{}

	object, ok := value.(map[string]any)
	if !ok {
		errs.add("non_field_errors", fmt.Sprintf("Invalid data. Expected a dictionary, but got %s.", JSONTypeName(value)))
		return iotdb.Record{}, errs
	}

	var record iotdb.Record
	rawTimestamp, ok := object["timestamp"]
	if !ok {
		errs.add("timestamp", "This field is required.")
	} else if ts, err := ParseTimestamp(rawTimestamp); err != nil {
		errs.add("timestamp", "Invalid timestamp format.")
	} else {
		record.Timestamp = ts
	}

	rawMeasurements, ok := object["measurements"]
	if !ok {
		errs.add("measurements", "This field is required.")
		return iotdb.Record{}, errs
	}
	measurements, ok := rawMeasurements.(map[string]any)
	if !ok {
		errs.add("measurements", fmt.Sprintf("Expected a dictionary of items but got type %q.", JSONTypeName(rawMeasurements)))
		return iotdb.Record{}, errs
	}
	if len(measurements) == 0 {
		errs.add("measurements", "measurements must contain at least one entry")
		return iotdb.Record{}, errs
	}

	names := make([]string, 0, len(measurements))
	for name := range measurements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := measurements[name]
		if message := measurementError(name, raw); message != "" {
			errs.add("measurements", message)
			break
		}
		record.Measurements = append(record.Measurements, iotdb.Measurement{Name: name, Value: raw})
	}

	if len(errs) > 0 {
		return iotdb.Record{}, errs
	}
	return record, nil
}

func measurementError(name string, value any) string {
	switch {
	case name == "":
		return "measurement names must be non-empty strings"
	case !ValidMeasurementName(name):
		return fmt.Sprintf("Invalid measurement name: %s", name)
	case value == nil:
		return "measurement values cannot be null"
	}
	switch value.(type) {
	case []any, map[string]any:
		return "measurement values must be scalar types"
	}
	return ""
}

// JSONTypeName names the JSON kind of a decoded value for error messages.
func JSONTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	default:
		return "number"
	}
}
