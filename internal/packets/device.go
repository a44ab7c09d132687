package packets

import (
	"errors"
	"regexp"
	"strings"

	"github.com/cosray/backend/config"
)

var devicePattern = regexp.MustCompile(`^[A-Za-z0-9_:]+(?:-[A-Za-z0-9_:]+)?(?:\.[A-Za-z0-9_:]+(?:-[A-Za-z0-9_:]+)?)*$`)

// ErrEmptyDevice is returned when a device identifier is blank after trimming.
var ErrEmptyDevice = errors.New("device identifier cannot be empty")

// DeviceSettings controls how device identifiers map onto IoTDB paths.
type DeviceSettings struct {
	Dialect         string
	RootPath        string
	TableNamePrefix string
}

// DeviceSettingsFrom extracts the device settings from the IoTDB config.
func DeviceSettingsFrom(cfg config.IoTDBConfig) DeviceSettings {
	return DeviceSettings{
		Dialect:         cfg.SQLDialect,
		RootPath:        cfg.RootPath,
		TableNamePrefix: cfg.TableNamePrefix,
	}
}

// NormalizeDevice turns a client supplied device identifier into the IoTDB
// target: a full device path in the tree dialect, a table name in the table
// dialect.
func NormalizeDevice(device string, settings DeviceSettings) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(device), ".")
	if trimmed == "" {
		return "", ErrEmptyDevice
	}

	dialect := strings.ToLower(strings.TrimSpace(settings.Dialect))
	if dialect == "table" {
		sanitized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "/", "."), " ", "_")
		prefix := settings.TableNamePrefix
		if prefix != "" && !strings.HasPrefix(sanitized, prefix) {
			return prefix + sanitized, nil
		}
		return sanitized, nil
	}

	base := settings.RootPath
	if base != "" && !strings.HasPrefix(trimmed, base) {
		return strings.ReplaceAll(base+"."+trimmed, "..", "."), nil
	}
	return trimmed, nil
}

// ValidDevice reports whether device is a dotted identifier IoTDB accepts.
func ValidDevice(device string) bool {
	return devicePattern.MatchString(device)
}
