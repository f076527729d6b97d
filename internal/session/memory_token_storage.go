package session

import (
	"context"
	"sync"
)

// MemoryTokenStorage is an in-memory TokenStorage intended for tests and
// ephemeral runs.
type MemoryTokenStorage struct {
	mutex    sync.Mutex
	state    TokenState
	hasState bool
}

// NewMemoryTokenStorage creates an empty in-memory storage.
func NewMemoryTokenStorage() *MemoryTokenStorage {
	return &MemoryTokenStorage{}
}

// Load returns the stored state and whether any state was present.
func (storage *MemoryTokenStorage) Load(ctx context.Context) (TokenState, bool, error) {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	return storage.state, storage.hasState, nil
}

// Save replaces the stored state.
func (storage *MemoryTokenStorage) Save(ctx context.Context, state TokenState) error {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	storage.state = state
	storage.hasState = true
	return nil
}

// Clear removes the stored state.
func (storage *MemoryTokenStorage) Clear(ctx context.Context) error {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	storage.state = TokenState{}
	storage.hasState = false
	return nil
}
