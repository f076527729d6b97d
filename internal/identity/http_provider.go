package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAuthTimeout = 10 * time.Second

var (
	// ErrMissingBaseURL indicates the identity base URL was not configured.
	ErrMissingBaseURL = errors.New("identity.http.missing_base_url")
	// ErrMissingAnonKey indicates the public API key was not configured.
	ErrMissingAnonKey = errors.New("identity.http.missing_anon_key")
	// ErrEmptyRefreshToken indicates a refresh was attempted without a token.
	ErrEmptyRefreshToken = errors.New("identity.http.empty_refresh_token")
)

// HTTPConfig configures the HTTP-backed identity provider.
type HTTPConfig struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
	Logger  *zap.Logger
}

// HTTPProvider implements Provider against a GoTrue-style REST surface.
type HTTPProvider struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider validates the configuration and builds the provider.
func NewHTTPProvider(configuration HTTPConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(configuration.BaseURL) == "" {
		return nil, fmt.Errorf("identity.http.new: %w", ErrMissingBaseURL)
	}
	if strings.TrimSpace(configuration.AnonKey) == "" {
		return nil, fmt.Errorf("identity.http.new: %w", ErrMissingAnonKey)
	}
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(configuration.BaseURL, "/"),
		anonKey:    configuration.AnonKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

func (payload errorPayload) message() string {
	switch {
	case payload.ErrorDescription != "":
		return payload.ErrorDescription
	case payload.Message != "":
		return payload.Message
	case payload.Error != "":
		return payload.Error
	default:
		return "authentication failed"
	}
}

// SignUp registers a new account and returns the session when the provider
// auto-confirms it.
func (provider *HTTPProvider) SignUp(ctx context.Context, email string, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	payload, err := provider.post(ctx, "/auth/v1/signup", nil, "", body)
	if err != nil {
		return nil, err
	}
	return provider.sessionFromPayload(payload), nil
}

// SignInWithPassword authenticates with email and password.
func (provider *HTTPProvider) SignInWithPassword(ctx context.Context, email string, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	payload, err := provider.post(ctx, "/auth/v1/token", url.Values{"grant_type": {"password"}}, "", body)
	if err != nil {
		return nil, err
	}
	return provider.sessionFromPayload(payload), nil
}

// SignOut invalidates the server-side session for the access token.
func (provider *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	_, err := provider.post(ctx, "/auth/v1/logout", nil, accessToken, nil)
	return err
}

// RefreshSession exchanges a refresh token for a fresh session.
func (provider *HTTPProvider) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("identity.http.refresh: %w", ErrEmptyRefreshToken)
	}
	body := map[string]string{"refresh_token": refreshToken}
	payload, err := provider.post(ctx, "/auth/v1/token", url.Values{"grant_type": {"refresh_token"}}, "", body)
	if err != nil {
		return nil, err
	}
	return provider.sessionFromPayload(payload), nil
}

func (provider *HTTPProvider) sessionFromPayload(payload *tokenPayload) *Session {
	if payload == nil {
		return nil
	}
	expiresAt := time.Time{}
	switch {
	case payload.ExpiresAt > 0:
		expiresAt = time.Unix(payload.ExpiresAt, 0).UTC()
	case payload.ExpiresIn > 0:
		expiresAt = time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return &Session{
		UserID:       payload.User.ID,
		Email:        payload.User.Email,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

func (provider *HTTPProvider) post(ctx context.Context, path string, query url.Values, accessToken string, body any) (*tokenPayload, error) {
	endpoint := provider.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var requestBody io.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		if encodeErr != nil {
			return nil, fmt.Errorf("identity.http.encode: %w", encodeErr)
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, requestBody)
	if requestErr != nil {
		return nil, fmt.Errorf("identity.http.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("apikey", provider.anonKey)
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}

	response, sendErr := provider.httpClient.Do(request)
	if sendErr != nil {
		provider.logger.Warn("identity request failed",
			zap.String("code", "identity.http.transport"),
			zap.String("path", path),
			zap.Error(sendErr),
		)
		return nil, fmt.Errorf("identity.http.send: %w", sendErr)
	}
	defer func() { _ = response.Body.Close() }()

	responseBytes, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("identity.http.read: %w", readErr)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		var failure errorPayload
		_ = json.Unmarshal(responseBytes, &failure)
		authErr := NewAuthError(AuthUnknown, failure.message())
		provider.logger.Debug("identity request rejected",
			zap.String("code", "identity.http.rejected"),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("kind", string(authErr.Kind)),
		)
		return nil, authErr
	}

	if len(responseBytes) == 0 {
		return nil, nil
	}
	var payload tokenPayload
	if decodeErr := json.Unmarshal(responseBytes, &payload); decodeErr != nil {
		return nil, fmt.Errorf("identity.http.decode: %w", decodeErr)
	}
	return &payload, nil
}
