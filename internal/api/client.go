// Package api is the single configured request pipeline for all partner-API
// calls: it attaches the right token at send time, classifies failures, and
// transparently retries once after a session refresh on 401.
package api

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

// Defaults for the request pipeline.
const (
	DefaultTimeout       = 15 * time.Second
	DefaultSlowThreshold = 2 * time.Second
)

// ErrMissingBaseURL indicates the partner-API base URL was not configured.
var ErrMissingBaseURL = errors.New("api.client.missing_base_url")

// TokenSource supplies tokens for outbound requests. Tokens are read fresh
// at send time, never cached into a request ahead of time, so a refresh
// completing between enqueue and send is always picked up.
type TokenSource interface {
	// AccessToken returns the current session bearer token, or empty.
	AccessToken() string
	// PartnerToken returns the current partner-API token, or empty.
	PartnerToken() string
	// SetPartnerToken records a freshly exchanged partner-API token.
	SetPartnerToken(ctx context.Context, partnerToken string) error
	// RefreshSession obtains a new session token; failure means session loss.
	RefreshSession(ctx context.Context) (string, error)
	// SignOut force-clears the session after an unrecoverable rejection.
	SignOut(ctx context.Context)
}

// Config configures the Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	SlowThreshold time.Duration
	Logger        *zap.Logger
	// Transport overrides the underlying round tripper; tests use this.
	Transport http.RoundTripper
}

// Client issues typed partner-API operations through one pipeline.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tokens     TokenSource
	refresh    refreshCoordinator
	logger     *zap.Logger
}

// NewClient validates the configuration and builds the client.
func NewClient(configuration Config, tokens TokenSource) (*Client, error) {
	if strings.TrimSpace(configuration.BaseURL) == "" {
		return nil, fmt.Errorf("api.client.new: %w", ErrMissingBaseURL)
	}
	if tokens == nil {
		return nil, errors.New("api.client.new: missing token source")
	}
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	slowThreshold := configuration.SlowThreshold
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := configuration.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		baseURL: strings.TrimRight(configuration.BaseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &loggingTransport{
				base:          base,
				logger:        logger,
				slowThreshold: slowThreshold,
			},
		},
		tokens: tokens,
		logger: logger,
	}, nil
}

// AuthToken exchanges the current identity session for a partner-API token.
func (client *Client) AuthToken(ctx context.Context) (string, error) {
	var response authTokenResponse
	if err := client.do(ctx, http.MethodPost, "/api/auth", nil, &response); err != nil {
		return "", err
	}
	return response.Token, nil
}

// Suppliers lists the carriers accepting top-ups.
func (client *Client) Suppliers(ctx context.Context) ([]Supplier, error) {
	if client.tokens.PartnerToken() == "" {
		if _, exchangeErr := client.refreshToken(ctx, tokenPartner); exchangeErr != nil {
			return nil, exchangeErr
		}
	}
	var suppliers []Supplier
	if err := client.do(ctx, http.MethodGet, "/api/suppliers", nil, &suppliers); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// CreateRecharge submits a top-up request.
func (client *Client) CreateRecharge(ctx context.Context, request RechargeRequest) (*RechargeResponse, error) {
	var response RechargeResponse
	if err := client.do(ctx, http.MethodPost, "/api/recharges", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Transactions returns the full top-up history for the current user.
func (client *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var transactions []Transaction
	if err := client.do(ctx, http.MethodGet, "/api/transactions", nil, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

// TransactionsByPhone returns history entries for one phone number.
func (client *Client) TransactionsByPhone(ctx context.Context, phoneNumber string) ([]Transaction, error) {
	var transactions []Transaction
	path := "/api/transactions/phone/" + url.PathEscape(phoneNumber)
	if err := client.do(ctx, http.MethodGet, path, nil, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

type tokenKind int

const (
	tokenNone tokenKind = iota
	tokenSession
	tokenPartner
)

// tokenKindForPath selects the credential a route needs: the partner token
// guards the supplier catalog, the identity session guards the exchange and
// the user-scoped resources.
func tokenKindForPath(path string) tokenKind {
	switch {
	case strings.HasPrefix(path, "/api/suppliers"):
		return tokenPartner
	case strings.HasPrefix(path, "/api/recharges"), strings.HasPrefix(path, "/api/transactions"), path == "/api/auth":
		return tokenSession
	default:
		return tokenNone
	}
}

func (client *Client) do(ctx context.Context, method string, path string, requestBody any, responseBody any) error {
	var payload []byte
	if requestBody != nil {
		encoded, encodeErr := json.Marshal(requestBody)
		if encodeErr != nil {
			return fmt.Errorf("api.client.encode: %w", encodeErr)
		}
		payload = encoded
	}
	kind := tokenKindForPath(path)

	response, sendErr := client.send(ctx, method, path, payload, kind, "")
	if sendErr != nil {
		return sendErr
	}
	body, readErr := readBody(response)
	if readErr != nil {
		return readErr
	}

	if response.StatusCode == http.StatusUnauthorized && kind != tokenNone {
		freshToken, refreshErr := client.refreshToken(ctx, kind)
		if refreshErr != nil {
			return refreshErr
		}
		retryResponse, retryErr := client.send(ctx, method, path, payload, kind, freshToken)
		if retryErr != nil {
			return retryErr
		}
		body, readErr = readBody(retryResponse)
		if readErr != nil {
			return readErr
		}
		if retryResponse.StatusCode == http.StatusUnauthorized {
			if kind == tokenSession {
				client.tokens.SignOut(ctx)
			}
			return fmt.Errorf("%s %s: %w", method, path, ErrSessionExpired)
		}
		response = retryResponse
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &ApiError{Status: response.StatusCode, Body: body}
	}
	if responseBody != nil && len(body) > 0 {
		if decodeErr := json.Unmarshal(body, responseBody); decodeErr != nil {
			return fmt.Errorf("api.client.decode: %w", decodeErr)
		}
	}
	return nil
}

// send builds a fresh request for every attempt so the Authorization header
// always reflects the latest token.
func (client *Client) send(ctx context.Context, method string, path string, payload []byte, kind tokenKind, overrideToken string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	requestURL := client.baseURL + path
	request, requestErr := http.NewRequestWithContext(ctx, method, requestURL, body)
	if requestErr != nil {
		return nil, fmt.Errorf("api.client.request: %w", requestErr)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	switch kind {
	case tokenSession:
		token := overrideToken
		if token == "" {
			token = client.tokens.AccessToken()
		}
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	case tokenPartner:
		token := overrideToken
		if token == "" {
			token = client.tokens.PartnerToken()
		}
		// The partner API expects its token verbatim, without a scheme.
		if token != "" {
			request.Header.Set("Authorization", token)
		}
	}

	response, sendErr := client.httpClient.Do(request)
	if sendErr != nil {
		return nil, classifyTransportError(requestURL, sendErr, client.timeout)
	}
	return response, nil
}

// refreshToken renews the credential for the given kind behind the
// single-flight coordinator: at most one renewal per kind is in flight and
// every blocked request shares its outcome.
func (client *Client) refreshToken(ctx context.Context, kind tokenKind) (string, error) {
	switch kind {
	case tokenPartner:
		return client.refresh.do(partnerFlightKey, func() (string, error) {
			detached := detachedContext(ctx)
			partnerToken, exchangeErr := client.AuthToken(detached)
			if exchangeErr != nil {
				return "", exchangeErr
			}
			if setErr := client.tokens.SetPartnerToken(detached, partnerToken); setErr != nil {
				return "", setErr
			}
			return partnerToken, nil
		})
	default:
		return client.refresh.do(sessionFlightKey, func() (string, error) {
			return client.tokens.RefreshSession(detachedContext(ctx))
		})
	}
}

func readBody(response *http.Response) ([]byte, error) {
	defer func() { _ = response.Body.Close() }()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, fmt.Errorf("api.client.read: %w", readErr)
	}
	return body, nil
}
