package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mprlab/recarga/internal/identity"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Event describes a session transition delivered to subscribers.
type Event string

// Session transitions.
const (
	EventSignedIn       Event = "signed_in"
	EventTokenRefreshed Event = "token_refreshed"
	EventSignedOut      Event = "signed_out"
)

var (
	// ErrNotSignedIn indicates an operation that needs an active session ran without one.
	ErrNotSignedIn = errors.New("session.store.not_signed_in")
	// ErrRefreshFailed indicates the identity provider rejected the refresh attempt.
	ErrRefreshFailed = errors.New("session.store.refresh_failed")
	// ErrNoSessionIssued indicates the provider answered without usable credentials.
	ErrNoSessionIssued = errors.New("session.store.no_session_issued")
)

// Session is the current authenticated identity. It is replaced wholesale on
// refresh and nulled on sign-out.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	PartnerToken string
	ExpiresAt    time.Time
}

// Config configures the Store.
type Config struct {
	Provider identity.Provider
	Storage  TokenStorage
	Logger   *zap.Logger
	Clock    Clock
}

// Store is the single source of truth for who is logged in and which tokens
// outbound requests must carry.
type Store struct {
	provider identity.Provider
	storage  TokenStorage
	logger   *zap.Logger
	clock    Clock

	mutex            sync.Mutex
	current          *Session
	subscribers      map[int]func(Event, *Session)
	nextSubscriberID int
}

// NewStore validates the configuration and builds the store.
func NewStore(configuration Config) (*Store, error) {
	if configuration.Provider == nil {
		return nil, errors.New("session.store.new: missing identity provider")
	}
	if configuration.Storage == nil {
		return nil, errors.New("session.store.new: missing token storage")
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{
		provider:    configuration.Provider,
		storage:     configuration.Storage,
		logger:      logger,
		clock:       clock,
		subscribers: make(map[int]func(Event, *Session)),
	}, nil
}

// Subscribe registers an observer for session transitions and returns an
// unsubscribe function.
func (store *Store) Subscribe(observer func(Event, *Session)) func() {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.nextSubscriberID++
	subscriberID := store.nextSubscriberID
	store.subscribers[subscriberID] = observer
	return func() {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		delete(store.subscribers, subscriberID)
	}
}

// CurrentSession returns a copy of the active session, or nil.
func (store *Store) CurrentSession() *Session {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.current == nil {
		return nil
	}
	clone := *store.current
	return &clone
}

// AccessToken returns the current bearer token, or empty when signed out.
func (store *Store) AccessToken() string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.current == nil {
		return ""
	}
	return store.current.AccessToken
}

// PartnerToken returns the current partner-API token, or empty.
func (store *Store) PartnerToken() string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.current == nil {
		return ""
	}
	return store.current.PartnerToken
}

// SetPartnerToken records a freshly exchanged partner-API token and persists it.
func (store *Store) SetPartnerToken(ctx context.Context, partnerToken string) error {
	store.mutex.Lock()
	if store.current == nil {
		store.mutex.Unlock()
		return fmt.Errorf("session.store.set_partner_token: %w", ErrNotSignedIn)
	}
	store.current.PartnerToken = partnerToken
	state := store.stateLocked()
	store.mutex.Unlock()

	if saveErr := store.storage.Save(ctx, state); saveErr != nil {
		return fmt.Errorf("session.store.set_partner_token: %w", saveErr)
	}
	return nil
}

// SignUp registers a new account. When the provider auto-confirms the
// account the session is established immediately; otherwise the caller must
// confirm the email and sign in.
func (store *Store) SignUp(ctx context.Context, email string, password string) (*Session, error) {
	issued, signUpErr := store.provider.SignUp(ctx, email, password)
	if signUpErr != nil {
		return nil, signUpErr
	}
	if !issued.Established() {
		store.logger.Info("sign-up pending email confirmation",
			zap.String("code", "session.store.signup_pending"),
		)
		return nil, nil
	}
	return store.establish(ctx, issued, EventSignedIn)
}

// SignIn authenticates with email and password and establishes the session.
func (store *Store) SignIn(ctx context.Context, email string, password string) (*Session, error) {
	issued, signInErr := store.provider.SignInWithPassword(ctx, email, password)
	if signInErr != nil {
		return nil, signInErr
	}
	if !issued.Established() {
		return nil, fmt.Errorf("session.store.sign_in: %w", ErrNoSessionIssued)
	}
	return store.establish(ctx, issued, EventSignedIn)
}

// SignOut clears the session. It is idempotent: signing out without an
// active session succeeds silently, and a provider-side failure is logged
// but never surfaced so local state is always cleared.
func (store *Store) SignOut(ctx context.Context) {
	store.mutex.Lock()
	current := store.current
	store.current = nil
	store.mutex.Unlock()

	if current != nil && current.AccessToken != "" {
		if providerErr := store.provider.SignOut(ctx, current.AccessToken); providerErr != nil {
			store.logger.Warn("provider sign-out failed; clearing local state anyway",
				zap.String("code", "session.store.provider_signout_failed"),
				zap.Error(providerErr),
			)
		}
	}

	if clearErr := store.storage.Clear(ctx); clearErr != nil {
		store.logger.Warn("token storage clear failed",
			zap.String("code", "session.store.storage_clear_failed"),
			zap.Error(clearErr),
		)
	}

	store.notify(EventSignedOut, nil)
}

// RefreshSession requests a new access token from the identity provider.
// Refresh failure is treated as session loss: the store signs out as a side
// effect and returns the error.
func (store *Store) RefreshSession(ctx context.Context) (string, error) {
	store.mutex.Lock()
	var refreshToken string
	var partnerToken string
	if store.current != nil {
		refreshToken = store.current.RefreshToken
		partnerToken = store.current.PartnerToken
	}
	store.mutex.Unlock()

	if refreshToken == "" {
		store.SignOut(ctx)
		return "", fmt.Errorf("session.store.refresh: %w", ErrNotSignedIn)
	}

	issued, refreshErr := store.provider.RefreshSession(ctx, refreshToken)
	if refreshErr != nil || !issued.Established() {
		store.logger.Warn("session refresh failed; forcing sign-out",
			zap.String("code", "session.store.refresh_failed"),
			zap.Error(refreshErr),
		)
		store.SignOut(ctx)
		if refreshErr == nil {
			refreshErr = ErrRefreshFailed
		}
		return "", fmt.Errorf("session.store.refresh: %w", refreshErr)
	}

	// The partner token survives an identity refresh.
	refreshed, establishErr := store.establishWithPartner(ctx, issued, partnerToken, EventTokenRefreshed)
	if establishErr != nil {
		return "", establishErr
	}
	return refreshed.AccessToken, nil
}

// Restore re-establishes a session from persisted tokens without a fresh
// sign-in. A stale access token is refreshed; missing state is not an error.
func (store *Store) Restore(ctx context.Context) (*Session, error) {
	state, found, loadErr := store.storage.Load(ctx)
	if loadErr != nil {
		return nil, fmt.Errorf("session.store.restore: %w", loadErr)
	}
	if !found || state.AccessToken == "" {
		return nil, nil
	}

	expiresAt, expiryErr := tokenExpiry(state.AccessToken)
	stillValid := expiryErr == nil && store.clock.Now().Add(30*time.Second).Before(expiresAt)

	if stillValid {
		restored := &Session{
			UserID:       state.UserID,
			Email:        state.Email,
			AccessToken:  state.AccessToken,
			RefreshToken: state.RefreshToken,
			PartnerToken: state.PartnerToken,
			ExpiresAt:    expiresAt,
		}
		store.mutex.Lock()
		store.current = restored
		store.mutex.Unlock()
		store.notify(EventSignedIn, restored)
		return store.CurrentSession(), nil
	}

	if state.RefreshToken == "" {
		if clearErr := store.storage.Clear(ctx); clearErr != nil {
			store.logger.Warn("token storage clear failed",
				zap.String("code", "session.store.storage_clear_failed"),
				zap.Error(clearErr),
			)
		}
		return nil, nil
	}

	issued, refreshErr := store.provider.RefreshSession(ctx, state.RefreshToken)
	if refreshErr != nil || !issued.Established() {
		store.logger.Info("persisted session could not be refreshed",
			zap.String("code", "session.store.restore_refresh_failed"),
			zap.Error(refreshErr),
		)
		if clearErr := store.storage.Clear(ctx); clearErr != nil {
			store.logger.Warn("token storage clear failed",
				zap.String("code", "session.store.storage_clear_failed"),
				zap.Error(clearErr),
			)
		}
		return nil, nil
	}
	return store.establishWithPartner(ctx, issued, state.PartnerToken, EventSignedIn)
}

func (store *Store) establish(ctx context.Context, issued *identity.Session, event Event) (*Session, error) {
	return store.establishWithPartner(ctx, issued, "", event)
}

func (store *Store) establishWithPartner(ctx context.Context, issued *identity.Session, partnerToken string, event Event) (*Session, error) {
	established := &Session{
		UserID:       issued.UserID,
		Email:        issued.Email,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		PartnerToken: partnerToken,
		ExpiresAt:    issued.ExpiresAt,
	}

	store.mutex.Lock()
	store.current = established
	state := store.stateLocked()
	store.mutex.Unlock()

	if saveErr := store.storage.Save(ctx, state); saveErr != nil {
		store.logger.Warn("token persistence failed",
			zap.String("code", "session.store.storage_save_failed"),
			zap.Error(saveErr),
		)
	}

	store.notify(event, established)
	return store.CurrentSession(), nil
}

func (store *Store) stateLocked() TokenState {
	if store.current == nil {
		return TokenState{}
	}
	return TokenState{
		UserID:       store.current.UserID,
		Email:        store.current.Email,
		AccessToken:  store.current.AccessToken,
		RefreshToken: store.current.RefreshToken,
		PartnerToken: store.current.PartnerToken,
	}
}

func (store *Store) notify(event Event, current *Session) {
	store.mutex.Lock()
	observers := make([]func(Event, *Session), 0, len(store.subscribers))
	for _, observer := range store.subscribers {
		observers = append(observers, observer)
	}
	store.mutex.Unlock()

	var clone *Session
	if current != nil {
		copied := *current
		clone = &copied
	}
	for _, observer := range observers {
		observer(event, clone)
	}
}

func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	_, _, parseErr := jwt.NewParser().ParseUnverified(accessToken, &claims)
	if parseErr != nil {
		return time.Time{}, fmt.Errorf("session.store.token_expiry: %w", parseErr)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("session.store.token_expiry: no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
