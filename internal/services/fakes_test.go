package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
)

type memoryUsers struct {
	mu        sync.Mutex
	users     map[int]types.User
	addresses map[int]types.EmailAddress
	nextUser  int
	nextEmail int
	touched   map[int]time.Time
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		users:     map[int]types.User{},
		addresses: map[int]types.EmailAddress{},
		touched:   map[int]time.Time{},
	}
}

func (m *memoryUsers) withVerification(user types.User) types.User {
	user.EmailVerified = false
	for _, address := range m.addresses {
		if address.UserID == user.ID && address.Primary {
			user.EmailVerified = address.Verified
		}
	}
	return user
}

func (m *memoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return m.withVerification(user), nil
}

func (m *memoryUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return m.withVerification(user), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUsers) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLogin = &at
	m.users[id] = user
	m.touched[id] = at
	return nil
}

func (m *memoryUsers) CreateWithPrimaryEmail(_ context.Context, user types.User, verified bool) (types.User, types.EmailAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return types.User{}, types.EmailAddress{}, store.ErrConflict
		}
	}
	m.nextUser++
	m.nextEmail++
	user.ID = m.nextUser
	user.EmailVerified = verified
	address := types.EmailAddress{ID: m.nextEmail, UserID: user.ID, Email: user.Email, Verified: verified, Primary: true}
	m.users[user.ID] = user
	m.addresses[address.ID] = address
	return user, address, nil
}

func (m *memoryUsers) PrimaryEmail(_ context.Context, userID int) (types.EmailAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, address := range m.addresses {
		if address.UserID == userID && address.Primary {
			return address, nil
		}
	}
	return types.EmailAddress{}, store.ErrNotFound
}

func (m *memoryUsers) EmailAddressByID(_ context.Context, id int) (types.EmailAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	address, ok := m.addresses[id]
	if !ok {
		return types.EmailAddress{}, store.ErrNotFound
	}
	return address, nil
}

func (m *memoryUsers) MarkEmailVerified(_ context.Context, userID int, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, address := range m.addresses {
		if address.UserID == userID && address.Email == email {
			if address.Verified {
				return false, nil
			}
			address.Verified = true
			m.addresses[id] = address
			return true, nil
		}
	}
	return false, errors.New("address not found")
}

type recordingWriter struct {
	target  string
	records []iotdb.Record
	err     error
}

func (w *recordingWriter) WriteRecords(_ context.Context, target string, records []iotdb.Record) error {
	if w.err != nil {
		return w.err
	}
	w.target = target
	w.records = records
	return nil
}

type recordingArchive struct {
	device     string
	packetType string
	body       []byte
	err        error
}

func (a *recordingArchive) Store(_ context.Context, device, packetType string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.device, a.packetType, a.body = device, packetType, body
	return "packets/" + device + "/key.json", nil
}
