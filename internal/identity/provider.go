package identity

import (
	"context"
	"time"
)

// Session is the authenticated state issued by the identity provider.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Established reports whether the provider issued usable credentials.
// Sign-up flows that require email confirmation return a session without
// an access token.
func (session *Session) Established() bool {
	return session != nil && session.AccessToken != ""
}

// Provider is the identity capability consumed by the session store.
type Provider interface {
	// SignUp registers a new account. The returned session carries tokens
	// only when the provider auto-confirms the account.
	SignUp(ctx context.Context, email string, password string) (*Session, error)
	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email string, password string) (*Session, error)
	// SignOut invalidates the provider-side session for the access token.
	SignOut(ctx context.Context, accessToken string) error
	// RefreshSession exchanges a refresh token for a new session.
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
}
