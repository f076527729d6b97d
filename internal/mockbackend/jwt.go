package mockbackend

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidSessionToken = errors.New("mockbackend.jwt.invalid_session_token")

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// mintSessionToken creates a signed HS256 access token for the user.
func (backend *Backend) mintSessionToken(userID string, email string) (string, time.Time, error) {
	issuedAt := backend.clock.Now()
	expiresAt := issuedAt.Add(backend.configuration.SessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    backend.configuration.JWTIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(backend.configuration.JWTSigningKey)
	return signed, expiresAt, signErr
}

// parseSessionToken validates an access token against the backend clock.
func (backend *Backend) parseSessionToken(tokenString string) (*sessionClaims, error) {
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return backend.configuration.JWTSigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return backend.clock.Now()
	}))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, errInvalidSessionToken
	}
	claims, ok := parsedToken.Claims.(*sessionClaims)
	if !ok || claims.Issuer != backend.configuration.JWTIssuer || claims.Subject == "" {
		return nil, errInvalidSessionToken
	}
	return claims, nil
}

func randomOpaque(byteLength int) string {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic(fmt.Sprintf("mockbackend.random: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buffer)
}
