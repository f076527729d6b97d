package mockbackend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUserAlreadyRegistered indicates a sign-up for a taken email.
	ErrUserAlreadyRegistered = errors.New("mockbackend.users.already_registered")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("mockbackend.users.invalid_credentials")
	// ErrWeakPassword indicates a password below the minimum length.
	ErrWeakPassword = errors.New("mockbackend.users.weak_password")
)

const minPasswordLength = 6

type userRecord struct {
	ID       string
	Email    string
	Password string
}

// UserStore is the in-memory account registry of the mock identity service.
// Passwords are stored in the clear: this store never leaves dev and tests.
type UserStore struct {
	mutex   sync.Mutex
	byEmail map[string]userRecord
	nextID  int
}

// NewUserStore creates an empty registry.
func NewUserStore() *UserStore {
	return &UserStore{byEmail: make(map[string]userRecord)}
}

// Register creates an account and returns its user id.
func (store *UserStore) Register(email string, password string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byEmail[normalized]; exists {
		return "", ErrUserAlreadyRegistered
	}
	store.nextID++
	record := userRecord{
		ID:       fmt.Sprintf("user-%04d", store.nextID),
		Email:    normalized,
		Password: password,
	}
	store.byEmail[normalized] = record
	return record.ID, nil
}

// GetByID returns the account for a user id.
func (store *UserStore) GetByID(userID string) (userRecord, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, record := range store.byEmail {
		if record.ID == userID {
			return record, true
		}
	}
	return userRecord{}, false
}

// Authenticate checks the password and returns the account.
func (store *UserStore) Authenticate(email string, password string) (userRecord, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, exists := store.byEmail[normalized]
	if !exists || record.Password != password {
		return userRecord{}, ErrInvalidCredentials
	}
	return record, nil
}
