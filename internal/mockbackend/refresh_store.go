package mockbackend

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrRefreshTokenNotFound indicates no refresh token matched the opaque value.
	ErrRefreshTokenNotFound = errors.New("mockbackend.refresh.not_found")
	// ErrRefreshTokenRevoked indicates the refresh token has been rotated or revoked.
	ErrRefreshTokenRevoked = errors.New("mockbackend.refresh.revoked")
	// ErrRefreshTokenExpired indicates the refresh token exceeded its expiry.
	ErrRefreshTokenExpired = errors.New("mockbackend.refresh.expired")
)

type refreshRecord struct {
	TokenID   string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// RefreshTokenStore holds rotating opaque refresh tokens, hash-indexed so
// the plaintext never rests in memory longer than the issue call.
type RefreshTokenStore struct {
	clock Clock

	mutex      sync.Mutex
	byID       map[string]*refreshRecord
	byHash     map[string]string
	sequenceID uint64
}

// NewRefreshTokenStore creates an empty store.
func NewRefreshTokenStore(clock Clock) *RefreshTokenStore {
	return &RefreshTokenStore{
		clock:  clock,
		byID:   make(map[string]*refreshRecord),
		byHash: make(map[string]string),
	}
}

// Issue creates a new refresh token for the user and returns its opaque value.
func (store *RefreshTokenStore) Issue(userID string, ttl time.Duration) string {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.sequenceID++
	opaque := randomOpaque(32)
	hashValue := hashOpaque(opaque)
	record := &refreshRecord{
		TokenID:   fmt.Sprintf("rt-%d", store.sequenceID),
		UserID:    userID,
		Hash:      hashValue,
		ExpiresAt: store.clock.Now().Add(ttl),
	}
	store.byID[record.TokenID] = record
	store.byHash[hashValue] = record.TokenID
	return opaque
}

// Validate resolves the opaque value to its owning user and token id.
func (store *RefreshTokenStore) Validate(opaque string) (string, string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, found := store.byHash[hashOpaque(opaque)]
	if !found {
		return "", "", ErrRefreshTokenNotFound
	}
	record := store.byID[tokenID]
	if record == nil {
		return "", "", ErrRefreshTokenNotFound
	}
	if !record.RevokedAt.IsZero() {
		return "", "", ErrRefreshTokenRevoked
	}
	if store.clock.Now().After(record.ExpiresAt) {
		return "", "", ErrRefreshTokenExpired
	}
	return record.UserID, record.TokenID, nil
}

// Revoke marks a single token revoked; revoking twice is a no-op.
func (store *RefreshTokenStore) Revoke(tokenID string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record := store.byID[tokenID]
	if record != nil && record.RevokedAt.IsZero() {
		record.RevokedAt = store.clock.Now()
	}
}

// RevokeAllForUser invalidates every live token of one user (logout).
func (store *RefreshTokenStore) RevokeAllForUser(userID string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.clock.Now()
	for _, record := range store.byID {
		if record.UserID == userID && record.RevokedAt.IsZero() {
			record.RevokedAt = now
		}
	}
}

func hashOpaque(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
