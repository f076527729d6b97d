package session

import "context"

// TokenState is the persisted copy of the current credentials, written on
// every session transition and read back on start to restore a session
// without a fresh sign-in.
type TokenState struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	PartnerToken string
}

// TokenStorage persists the current token state under a fixed key.
type TokenStorage interface {
	// Load returns the stored state and whether any state was present.
	Load(ctx context.Context) (TokenState, bool, error)
	// Save replaces the stored state wholesale.
	Save(ctx context.Context, state TokenState) error
	// Clear removes the stored state. Clearing empty storage succeeds.
	Clear(ctx context.Context) error
}
