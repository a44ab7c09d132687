// Package iotdb writes time-series records to Apache IoTDB through its REST
// service. Both the tree and the table SQL dialects are supported.
package iotdb

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrWrite is returned when IoTDB cannot be reached or rejects a write.
	ErrWrite = errors.New("iotdb write failed")
	// ErrConfiguration is returned for settings the client cannot work with.
	ErrConfiguration = errors.New("iotdb configuration error")
	// ErrInvalidRecords is returned when records cannot be encoded for IoTDB.
	ErrInvalidRecords = errors.New("invalid iotdb records")
)

// Dialects understood by the writer.
const (
	DialectTree  = "tree"
	DialectTable = "table"
)

// IoTDB data type names.
const (
	TypeBoolean = "BOOLEAN"
	TypeInt64   = "INT64"
	TypeDouble  = "DOUBLE"
	TypeText    = "TEXT"
)

// Measurement is a single named value of a record.
type Measurement struct {
	Name  string
	Value any
}

// Record is one row for one device: a timestamp in milliseconds and its
// measurements in write order.
type Record struct {
	Timestamp    int64
	Measurements []Measurement
}

// Value returns the named measurement value.
func (r Record) Value(name string) (any, bool) {
	for _, m := range r.Measurements {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// CoerceValue maps a Go value onto the IoTDB type used to store it.
func CoerceValue(value any) (any, string, error) {
	switch v := value.(type) {
	case bool:
		return v, TypeBoolean, nil
	case int:
		return int64(v), TypeInt64, nil
	case int8:
		return int64(v), TypeInt64, nil
	case int16:
		return int64(v), TypeInt64, nil
	case int32:
		return int64(v), TypeInt64, nil
	case int64:
		return v, TypeInt64, nil
	case uint8:
		return int64(v), TypeInt64, nil
	case uint16:
		return int64(v), TypeInt64, nil
	case uint32:
		return int64(v), TypeInt64, nil
	case float32:
		return float64(v), TypeDouble, nil
	case float64:
		return v, TypeDouble, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, TypeInt64, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, "", fmt.Errorf("%w: unsupported number %q", ErrInvalidRecords, v.String())
		}
		return f, TypeDouble, nil
	case string:
		return v, TypeText, nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported measurement value type %T", ErrInvalidRecords, value)
	}
}
