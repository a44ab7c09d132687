package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const archiveContentType = "application/json"

// Archive keeps raw packet bodies as they were received.
type Archive struct {
	backend ObjectStorage
	now     func() time.Time
	newID   func() string
}

func NewArchive(backend ObjectStorage) *Archive {
	return &Archive{
		backend: backend,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Store writes body under packets/<device>/<yyyy>/<mm>/<dd>/ and returns the
// object key.
func (a *Archive) Store(ctx context.Context, device, packetType string, body []byte) (string, error) {
	device = strings.Trim(strings.TrimSpace(device), "/")
	if device == "" {
		return "", errors.New("archive device is required")
	}

	key := a.key(device)
	if err := a.backend.Put(ctx, key, bytes.NewReader(body), int64(len(body)), archiveContentType); err != nil {
		return "", fmt.Errorf("archive %s packet: %w", packetType, err)
	}
	return key, nil
}

func (a *Archive) key(device string) string {
	now := a.now().UTC()
	return fmt.Sprintf("packets/%s/%04d/%02d/%02d/%d-%s.json",
		device, now.Year(), int(now.Month()), now.Day(), now.UnixMilli(), a.newID())
}
