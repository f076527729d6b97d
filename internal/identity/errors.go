package identity

import (
	"fmt"
	"strings"
)

// AuthErrorKind distinguishes the provider rejections the UI cares about.
type AuthErrorKind string

// Known rejection kinds.
const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthEmailUnconfirmed   AuthErrorKind = "email_unconfirmed"
	AuthAlreadyRegistered  AuthErrorKind = "already_registered"
	AuthWeakPassword       AuthErrorKind = "weak_password"
	AuthUnknown            AuthErrorKind = "unknown"
)

// AuthError is an identity-provider rejection classified by kind.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

// Error implements the error interface.
func (authErr *AuthError) Error() string {
	return fmt.Sprintf("identity.auth.%s: %s", authErr.Kind, authErr.Message)
}

// NewAuthError builds an AuthError, classifying the message when the kind
// is not already known.
func NewAuthError(kind AuthErrorKind, message string) *AuthError {
	if kind == "" || kind == AuthUnknown {
		kind = ClassifyAuthMessage(message)
	}
	return &AuthError{Kind: kind, Message: message}
}

// ClassifyAuthMessage maps a provider error message to an AuthErrorKind.
func ClassifyAuthMessage(message string) AuthErrorKind {
	lowered := strings.ToLower(message)
	switch {
	case strings.Contains(lowered, "invalid login credentials"):
		return AuthInvalidCredentials
	case strings.Contains(lowered, "email not confirmed"):
		return AuthEmailUnconfirmed
	case strings.Contains(lowered, "already registered"), strings.Contains(lowered, "already in use"):
		return AuthAlreadyRegistered
	case strings.Contains(lowered, "weak password"), strings.Contains(lowered, "password should be at least"):
		return AuthWeakPassword
	default:
		return AuthUnknown
	}
}
