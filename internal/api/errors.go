package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrSessionExpired indicates a 401 that survived a refresh attempt; the
// session store has already forced a sign-out by the time it surfaces.
var ErrSessionExpired = errors.New("api.session_expired")

// ConnectivityError indicates no response reached the client.
type ConnectivityError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (connectivityErr *ConnectivityError) Error() string {
	return fmt.Sprintf("api.connectivity: %s: %v", connectivityErr.URL, connectivityErr.Err)
}

// Unwrap exposes the underlying transport error.
func (connectivityErr *ConnectivityError) Unwrap() error {
	return connectivityErr.Err
}

// TimeoutError indicates the response exceeded the configured timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

// Error implements the error interface.
func (timeoutErr *TimeoutError) Error() string {
	return fmt.Sprintf("api.timeout: %s after %s", timeoutErr.URL, timeoutErr.Timeout)
}

// Unwrap exposes the underlying transport error.
func (timeoutErr *TimeoutError) Unwrap() error {
	return timeoutErr.Err
}

// ApiError is any non-2xx partner-API response other than an intercepted
// 401. The caller interprets Body (field-level validation messages vs. a
// single message string).
type ApiError struct {
	Status int
	Body   []byte
}

// Error implements the error interface.
func (apiErr *ApiError) Error() string {
	return fmt.Sprintf("api.status_%d: %s", apiErr.Status, apiErr.Message())
}

// Message extracts a human-readable message from the response body.
func (apiErr *ApiError) Message() string {
	var payload struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if unmarshalErr := json.Unmarshal(apiErr.Body, &payload); unmarshalErr == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Errors) > 0 {
			return payload.Errors[0]
		}
	}
	return string(apiErr.Body)
}

// FieldErrors returns the field-level validation messages, if any.
func (apiErr *ApiError) FieldErrors() []string {
	var payload struct {
		Errors []string `json:"errors"`
	}
	if unmarshalErr := json.Unmarshal(apiErr.Body, &payload); unmarshalErr != nil {
		return nil
	}
	return payload.Errors
}

// classifyTransportError maps a failed send into the error taxonomy:
// timeouts become TimeoutError, everything else ConnectivityError.
func classifyTransportError(requestURL string, sendErr error, timeout time.Duration) error {
	var urlErr *url.Error
	if errors.As(sendErr, &urlErr) && urlErr.Timeout() {
		return &TimeoutError{URL: requestURL, Timeout: timeout, Err: sendErr}
	}
	if errors.Is(sendErr, context.DeadlineExceeded) {
		return &TimeoutError{URL: requestURL, Timeout: timeout, Err: sendErr}
	}
	return &ConnectivityError{URL: requestURL, Err: sendErr}
}
