package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/mprlab/recarga/internal/identity"
)

type fakeProvider struct {
	mutex sync.Mutex

	signUpSession  *identity.Session
	signUpErr      error
	signInSession  *identity.Session
	signInErr      error
	refreshSession *identity.Session
	refreshErr     error
	signOutErr     error

	refreshCalls  int
	signOutTokens []string
}

func (provider *fakeProvider) SignUp(ctx context.Context, email string, password string) (*identity.Session, error) {
	return provider.signUpSession, provider.signUpErr
}

func (provider *fakeProvider) SignInWithPassword(ctx context.Context, email string, password string) (*identity.Session, error) {
	return provider.signInSession, provider.signInErr
}

func (provider *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	provider.mutex.Lock()
	provider.signOutTokens = append(provider.signOutTokens, accessToken)
	provider.mutex.Unlock()
	return provider.signOutErr
}

func (provider *fakeProvider) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	provider.mutex.Lock()
	provider.refreshCalls++
	provider.mutex.Unlock()
	return provider.refreshSession, provider.refreshErr
}

type recordedEvent struct {
	event   Event
	session *Session
}

type eventRecorder struct {
	mutex  sync.Mutex
	events []recordedEvent
}

func (recorder *eventRecorder) observe(event Event, current *Session) {
	recorder.mutex.Lock()
	recorder.events = append(recorder.events, recordedEvent{event: event, session: current})
	recorder.mutex.Unlock()
}

func (recorder *eventRecorder) recorded() []recordedEvent {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]recordedEvent(nil), recorder.events...)
}

func newTestStore(t *testing.T, provider identity.Provider, storage TokenStorage) *Store {
	t.Helper()
	if storage == nil {
		storage = NewMemoryTokenStorage()
	}
	store, storeErr := NewStore(Config{
		Provider: provider,
		Storage:  storage,
		Logger:   zaptest.NewLogger(t),
	})
	if storeErr != nil {
		t.Fatalf("new store error: %v", storeErr)
	}
	return store
}

func issuedSession(accessToken string) *identity.Session {
	return &identity.Session{
		UserID:       "user-0001",
		Email:        "ana@example.com",
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(15 * time.Minute),
	}
}

func mintExpiringToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-0001",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, signErr := token.SignedString([]byte("test-key"))
	if signErr != nil {
		t.Fatalf("sign token: %v", signErr)
	}
	return signed
}

func TestSignInEstablishesPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{signInSession: issuedSession("access-1")}
	storage := NewMemoryTokenStorage()
	store := newTestStore(t, provider, storage)

	recorder := &eventRecorder{}
	store.Subscribe(recorder.observe)

	established, signInErr := store.SignIn(context.Background(), "ana@example.com", "secret123")
	if signInErr != nil {
		t.Fatalf("sign in error: %v", signInErr)
	}
	if established.AccessToken != "access-1" || established.Email != "ana@example.com" {
		t.Fatalf("unexpected session: %+v", established)
	}
	if store.AccessToken() != "access-1" {
		t.Fatalf("access token not exposed")
	}

	state, found, loadErr := storage.Load(context.Background())
	if loadErr != nil || !found {
		t.Fatalf("expected persisted state, found=%v err=%v", found, loadErr)
	}
	if state.AccessToken != "access-1" || state.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected persisted state: %+v", state)
	}

	events := recorder.recorded()
	if len(events) != 1 || events[0].event != EventSignedIn {
		t.Fatalf("expected one signed_in event, got %+v", events)
	}
	if events[0].session == nil || events[0].session.UserID != "user-0001" {
		t.Fatalf("event payload missing session: %+v", events[0].session)
	}
}

func TestSignInSurfacesAuthErrorWithoutState(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		signInErr: identity.NewAuthError(identity.AuthInvalidCredentials, "Invalid login credentials"),
	}
	storage := NewMemoryTokenStorage()
	store := newTestStore(t, provider, storage)

	established, signInErr := store.SignIn(context.Background(), "ana@example.com", "wrong")
	if established != nil {
		t.Fatalf("expected nil session, got %+v", established)
	}
	var authErr *identity.AuthError
	if !errors.As(signInErr, &authErr) || authErr.Kind != identity.AuthInvalidCredentials {
		t.Fatalf("expected invalid_credentials auth error, got %v", signInErr)
	}
	if store.CurrentSession() != nil {
		t.Fatalf("failed sign-in must not establish a session")
	}
	if _, found, _ := storage.Load(context.Background()); found {
		t.Fatalf("failed sign-in must not persist tokens")
	}
}

func TestSignInWithoutIssuedTokensFails(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{signInSession: &identity.Session{Email: "ana@example.com"}}
	store := newTestStore(t, provider, nil)

	if _, signInErr := store.SignIn(context.Background(), "ana@example.com", "secret123"); !errors.Is(signInErr, ErrNoSessionIssued) {
		t.Fatalf("expected ErrNoSessionIssued, got %v", signInErr)
	}
}

func TestSignUpPendingConfirmationReturnsNilSession(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{signUpSession: &identity.Session{UserID: "user-0002", Email: "new@example.com"}}
	store := newTestStore(t, provider, nil)

	established, signUpErr := store.SignUp(context.Background(), "new@example.com", "secret123")
	if signUpErr != nil {
		t.Fatalf("sign up error: %v", signUpErr)
	}
	if established != nil {
		t.Fatalf("pending confirmation must not establish a session")
	}
	if store.CurrentSession() != nil {
		t.Fatalf("store must stay signed out")
	}
}

func TestSignUpAutoConfirmedEstablishesSession(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{signUpSession: issuedSession("access-signup")}
	store := newTestStore(t, provider, nil)

	established, signUpErr := store.SignUp(context.Background(), "ana@example.com", "secret123")
	if signUpErr != nil {
		t.Fatalf("sign up error: %v", signUpErr)
	}
	if established == nil || established.AccessToken != "access-signup" {
		t.Fatalf("expected established session, got %+v", established)
	}
}

func TestSignOutIsIdempotentAndSwallowsProviderFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		signInSession: issuedSession("access-1"),
		signOutErr:    errors.New("provider unavailable"),
	}
	storage := NewMemoryTokenStorage()
	store := newTestStore(t, provider, storage)

	recorder := &eventRecorder{}
	store.Subscribe(recorder.observe)

	if _, err := store.SignIn(context.Background(), "ana@example.com", "secret123"); err != nil {
		t.Fatalf("sign in error: %v", err)
	}

	store.SignOut(context.Background())
	if store.CurrentSession() != nil {
		t.Fatalf("session must be cleared despite provider failure")
	}
	if _, found, _ := storage.Load(context.Background()); found {
		t.Fatalf("persisted tokens must be cleared")
	}
	if len(provider.signOutTokens) != 1 || provider.signOutTokens[0] != "access-1" {
		t.Fatalf("provider must receive the access token: %v", provider.signOutTokens)
	}

	// Second sign-out without a session succeeds silently.
	store.SignOut(context.Background())

	events := recorder.recorded()
	if len(events) != 3 {
		t.Fatalf("expected signed_in and two signed_out events, got %+v", events)
	}
	if events[1].event != EventSignedOut || events[1].session != nil {
		t.Fatalf("signed_out event must carry nil session: %+v", events[1])
	}
}

func TestRefreshSessionReplacesTokensAndKeepsPartnerToken(t *testing.T) {
	t.Parallel()

	refreshed := issuedSession("access-2")
	refreshed.RefreshToken = "refresh-2"
	provider := &fakeProvider{
		signInSession:  issuedSession("access-1"),
		refreshSession: refreshed,
	}
	storage := NewMemoryTokenStorage()
	store := newTestStore(t, provider, storage)

	if _, err := store.SignIn(context.Background(), "ana@example.com", "secret123"); err != nil {
		t.Fatalf("sign in error: %v", err)
	}
	if err := store.SetPartnerToken(context.Background(), "ptk-1"); err != nil {
		t.Fatalf("set partner token error: %v", err)
	}

	recorder := &eventRecorder{}
	store.Subscribe(recorder.observe)

	accessToken, refreshErr := store.RefreshSession(context.Background())
	if refreshErr != nil {
		t.Fatalf("refresh error: %v", refreshErr)
	}
	if accessToken != "access-2" {
		t.Fatalf("expected refreshed token, got %q", accessToken)
	}
	if store.PartnerToken() != "ptk-1" {
		t.Fatalf("partner token must survive a refresh")
	}

	state, found, _ := storage.Load(context.Background())
	if !found || state.AccessToken != "access-2" || state.RefreshToken != "refresh-2" || state.PartnerToken != "ptk-1" {
		t.Fatalf("unexpected persisted state: %+v", state)
	}

	events := recorder.recorded()
	if len(events) != 1 || events[0].event != EventTokenRefreshed {
		t.Fatalf("expected token_refreshed event, got %+v", events)
	}
}

func TestRefreshFailureForcesSignOut(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		signInSession: issuedSession("access-1"),
		refreshErr:    errors.New("refresh token revoked"),
	}
	storage := NewMemoryTokenStorage()
	store := newTestStore(t, provider, storage)

	if _, err := store.SignIn(context.Background(), "ana@example.com", "secret123"); err != nil {
		t.Fatalf("sign in error: %v", err)
	}

	recorder := &eventRecorder{}
	store.Subscribe(recorder.observe)

	if _, refreshErr := store.RefreshSession(context.Background()); refreshErr == nil {
		t.Fatalf("expected refresh error")
	}
	if store.CurrentSession() != nil {
		t.Fatalf("refresh failure must sign the user out")
	}
	if _, found, _ := storage.Load(context.Background()); found {
		t.Fatalf("refresh failure must clear persisted tokens")
	}

	events := recorder.recorded()
	if len(events) != 1 || events[0].event != EventSignedOut {
		t.Fatalf("expected signed_out event, got %+v", events)
	}
}

func TestRefreshWithoutSessionFails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeProvider{}, nil)
	if _, refreshErr := store.RefreshSession(context.Background()); !errors.Is(refreshErr, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", refreshErr)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{signInSession: issuedSession("access-1")}
	store := newTestStore(t, provider, nil)

	recorder := &eventRecorder{}
	unsubscribe := store.Subscribe(recorder.observe)
	unsubscribe()

	if _, err := store.SignIn(context.Background(), "ana@example.com", "secret123"); err != nil {
		t.Fatalf("sign in error: %v", err)
	}
	if len(recorder.recorded()) != 0 {
		t.Fatalf("unsubscribed observer must not be notified")
	}
}

func TestRestoreUsesValidPersistedToken(t *testing.T) {
	t.Parallel()

	storage := NewMemoryTokenStorage()
	stillValid := mintExpiringToken(t, time.Now().Add(10*time.Minute))
	if err := storage.Save(context.Background(), TokenState{
		UserID:       "user-0001",
		Email:        "ana@example.com",
		AccessToken:  stillValid,
		RefreshToken: "refresh-1",
		PartnerToken: "ptk-1",
	}); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	provider := &fakeProvider{}
	store := newTestStore(t, provider, storage)

	restored, restoreErr := store.Restore(context.Background())
	if restoreErr != nil {
		t.Fatalf("restore error: %v", restoreErr)
	}
	if restored == nil || restored.AccessToken != stillValid || restored.PartnerToken != "ptk-1" {
		t.Fatalf("unexpected restored session: %+v", restored)
	}
	if provider.refreshCalls != 0 {
		t.Fatalf("valid token must not trigger a refresh")
	}
}

func TestRestoreRefreshesStaleToken(t *testing.T) {
	t.Parallel()

	storage := NewMemoryTokenStorage()
	stale := mintExpiringToken(t, time.Now().Add(-time.Minute))
	if err := storage.Save(context.Background(), TokenState{
		UserID:       "user-0001",
		Email:        "ana@example.com",
		AccessToken:  stale,
		RefreshToken: "refresh-1",
		PartnerToken: "ptk-1",
	}); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	refreshed := issuedSession("access-fresh")
	provider := &fakeProvider{refreshSession: refreshed}
	store := newTestStore(t, provider, storage)

	restored, restoreErr := store.Restore(context.Background())
	if restoreErr != nil {
		t.Fatalf("restore error: %v", restoreErr)
	}
	if restored == nil || restored.AccessToken != "access-fresh" {
		t.Fatalf("expected refreshed session, got %+v", restored)
	}
	if restored.PartnerToken != "ptk-1" {
		t.Fatalf("partner token must survive the restore refresh")
	}
	if provider.refreshCalls != 1 {
		t.Fatalf("expected one refresh call, got %d", provider.refreshCalls)
	}
}

func TestRestoreClearsStorageWhenRefreshFails(t *testing.T) {
	t.Parallel()

	storage := NewMemoryTokenStorage()
	stale := mintExpiringToken(t, time.Now().Add(-time.Minute))
	if err := storage.Save(context.Background(), TokenState{
		AccessToken:  stale,
		RefreshToken: "refresh-1",
	}); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	provider := &fakeProvider{refreshErr: errors.New("refresh token revoked")}
	store := newTestStore(t, provider, storage)

	restored, restoreErr := store.Restore(context.Background())
	if restoreErr != nil {
		t.Fatalf("restore error: %v", restoreErr)
	}
	if restored != nil {
		t.Fatalf("failed restore must return nil session")
	}
	if _, found, _ := storage.Load(context.Background()); found {
		t.Fatalf("unusable persisted tokens must be cleared")
	}
}

func TestRestoreWithEmptyStorageIsNoop(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeProvider{}, nil)
	restored, restoreErr := store.Restore(context.Background())
	if restoreErr != nil {
		t.Fatalf("restore error: %v", restoreErr)
	}
	if restored != nil {
		t.Fatalf("restore without stored tokens must return nil")
	}
}

func TestSetPartnerTokenRequiresSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeProvider{}, nil)
	if err := store.SetPartnerToken(context.Background(), "ptk-1"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}
