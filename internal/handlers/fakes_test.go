package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/cosray/backend/internal/iotdb"
	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	mu        sync.Mutex
	users     map[int]types.User
	addresses map[int]types.EmailAddress
	nextID    int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:     map[int]types.User{},
		addresses: map[int]types.EmailAddress{},
	}
}

// seed stores an active user whose primary email is verified.
func (f *fakeUsers) seed(username, password string, staff bool) types.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user, _, err := f.CreateWithPrimaryEmail(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      staff,
	}, true)
	if err != nil {
		panic(err)
	}
	return user
}

func (f *fakeUsers) verified(user types.User) types.User {
	user.EmailVerified = false
	for _, address := range f.addresses {
		if address.UserID == user.ID && address.Primary {
			user.EmailVerified = address.Verified
		}
	}
	return user
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return f.verified(user), nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return f.verified(user), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Update(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLogin = &at
	f.users[id] = user
	return nil
}

func (f *fakeUsers) CreateWithPrimaryEmail(_ context.Context, user types.User, verified bool) (types.User, types.EmailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username {
			return types.User{}, types.EmailAddress{}, store.ErrConflict
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.EmailVerified = verified
	address := types.EmailAddress{ID: f.nextID, UserID: user.ID, Email: user.Email, Verified: verified, Primary: true}
	f.users[user.ID] = user
	f.addresses[address.ID] = address
	return user, address, nil
}

func (f *fakeUsers) PrimaryEmail(_ context.Context, userID int) (types.EmailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, address := range f.addresses {
		if address.UserID == userID && address.Primary {
			return address, nil
		}
	}
	return types.EmailAddress{}, store.ErrNotFound
}

func (f *fakeUsers) EmailAddressByID(_ context.Context, id int) (types.EmailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	address, ok := f.addresses[id]
	if !ok {
		return types.EmailAddress{}, store.ErrNotFound
	}
	return address, nil
}

func (f *fakeUsers) MarkEmailVerified(_ context.Context, userID int, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, address := range f.addresses {
		if address.UserID == userID && address.Email == email {
			if address.Verified {
				return false, nil
			}
			address.Verified = true
			f.addresses[id] = address
			return true, nil
		}
	}
	return false, store.ErrNotFound
}

type fakeWriter struct {
	mu      sync.Mutex
	target  string
	records []iotdb.Record
	err     error
}

func (w *fakeWriter) WriteRecords(_ context.Context, target string, records []iotdb.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.target = target
	w.records = records
	return nil
}
