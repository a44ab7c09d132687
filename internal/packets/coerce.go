package packets

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const tripletLength = 3

// ValidationError describes a malformed packet field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s' %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func requireObject(value any, field string) (map[string]any, error) {
	object, ok := value.(map[string]any)
	if !ok {
		return nil, invalid(field, "must be a mapping")
	}
	return object, nil
}

func requireField(object map[string]any, field string) (any, error) {
	value, ok := object[field]
	if !ok {
		return nil, invalid(field, "is required")
	}
	return value, nil
}

func requireObjects(value any, field string) ([]map[string]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, invalid(field, "must be a sequence of mappings")
	}
	if len(items) == 0 {
		return nil, invalid(field, "must not be empty")
	}
	objects := make([]map[string]any, 0, len(items))
	for _, item := range items {
		object, ok := item.(map[string]any)
		if !ok {
			return nil, invalid(field, "must only contain mappings")
		}
		objects = append(objects, object)
	}
	return objects, nil
}

func coerceInt(value any, field string, allowNegative bool) (int64, error) {
	var out int64
	switch v := value.(type) {
	case bool, nil:
		return 0, invalid(field, "must be an integer")
	case int:
		out = int64(v)
	case int64:
		out = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, invalid(field, "must be an integer")
		}
		out = int64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			out = i
			break
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, invalid(field, "must be an integer")
		}
		out = int64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, invalid(field, "must be an integer")
		}
		out = i
	default:
		return 0, invalid(field, "must be an integer")
	}
	if !allowNegative && out < 0 {
		return 0, invalid(field, "must be non-negative")
	}
	return out, nil
}

func requireInt(object map[string]any, field string, allowNegative bool) (int64, error) {
	value, err := requireField(object, field)
	if err != nil {
		return 0, err
	}
	return coerceInt(value, field, allowNegative)
}

func optionalTimestamp(object map[string]any, field string) (*int64, error) {
	value, ok := object[field]
	if !ok || value == nil {
		return nil, nil
	}
	ms, err := ParseTimestamp(value)
	if err != nil {
		return nil, invalid(field, err.Error())
	}
	return &ms, nil
}

func optionalInt(object map[string]any, field string) (*int64, error) {
	value, ok := object[field]
	if !ok || value == nil {
		return nil, nil
	}
	v, err := coerceInt(value, field, false)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Triplet is a three byte frame marker.
type Triplet [tripletLength]byte

// String renders the triplet as upper-case hex pairs, e.g. AA-BB-CC.
func (t Triplet) String() string {
	return formatBytes(t[:])
}

func optionalTriplet(object map[string]any, field string) (*Triplet, error) {
	value, ok := object[field]
	if !ok || value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, invalid(field, "must be a sequence of three integers")
	}
	if len(items) != tripletLength {
		return nil, invalid(field, "must contain exactly three elements")
	}
	var triplet Triplet
	for i, item := range items {
		v, err := coerceInt(item, fmt.Sprintf("%s[%d]", field, i), false)
		if err != nil {
			return nil, err
		}
		triplet[i] = byte(v & 0xFF)
	}
	return &triplet, nil
}

func optionalBytes(object map[string]any, field string) ([]byte, error) {
	value, ok := object[field]
	if !ok || value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, invalid(field, "must be a byte sequence")
	}
	out := make([]byte, 0, len(items))
	for _, item := range items {
		v, err := coerceInt(item, field, false)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(v&0xFF))
	}
	return out, nil
}

func formatBytes(values []byte) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, "-")
}
