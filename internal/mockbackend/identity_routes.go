package mockbackend

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentialsRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type issuedUserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type issuedSessionPayload struct {
	AccessToken  string            `json:"access_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	ExpiresAt    int64             `json:"expires_at"`
	RefreshToken string            `json:"refresh_token"`
	User         issuedUserPayload `json:"user"`
}

func identityError(contextGin *gin.Context, status int, description string) {
	contextGin.AbortWithStatusJSON(status, gin.H{"error_description": description})
}

func (backend *Backend) requireAnonKey() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if contextGin.GetHeader("apikey") != backend.configuration.AnonKey {
			identityError(contextGin, http.StatusUnauthorized, "No API key found in request")
			return
		}
		contextGin.Next()
	}
}

func (backend *Backend) issueSession(contextGin *gin.Context, userID string, email string) {
	accessToken, expiresAt, mintErr := backend.mintSessionToken(userID, email)
	if mintErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	refreshToken := backend.refreshTokens.Issue(userID, backend.configuration.RefreshTTL)
	contextGin.JSON(http.StatusOK, issuedSessionPayload{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(backend.configuration.SessionTTL.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refreshToken,
		User:         issuedUserPayload{ID: userID, Email: email},
	})
}

func (backend *Backend) handleSignUp(contextGin *gin.Context) {
	var inbound credentialsRequest
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.Email) == "" {
		identityError(contextGin, http.StatusBadRequest, "Signup requires a valid email")
		return
	}
	userID, registerErr := backend.users.Register(inbound.Email, inbound.Password)
	switch {
	case errors.Is(registerErr, ErrWeakPassword):
		identityError(contextGin, http.StatusBadRequest, "Password should be at least 6 characters")
		return
	case errors.Is(registerErr, ErrUserAlreadyRegistered):
		identityError(contextGin, http.StatusBadRequest, "User already registered")
		return
	case registerErr != nil:
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	backend.logger.Info("mock identity sign-up",
		zap.String("code", "mockbackend.identity.signup"),
		zap.String("user_id", userID),
	)
	// Accounts are auto-confirmed, so sign-up establishes a session.
	backend.issueSession(contextGin, userID, strings.ToLower(strings.TrimSpace(inbound.Email)))
}

func (backend *Backend) handleToken(contextGin *gin.Context) {
	switch contextGin.Query("grant_type") {
	case "password":
		backend.handlePasswordGrant(contextGin)
	case "refresh_token":
		backend.handleRefreshGrant(contextGin)
	default:
		identityError(contextGin, http.StatusBadRequest, "unsupported grant type")
	}
}

func (backend *Backend) handlePasswordGrant(contextGin *gin.Context) {
	var inbound credentialsRequest
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
		identityError(contextGin, http.StatusBadRequest, "invalid request body")
		return
	}
	record, authenticateErr := backend.users.Authenticate(inbound.Email, inbound.Password)
	if authenticateErr != nil {
		identityError(contextGin, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	backend.issueSession(contextGin, record.ID, record.Email)
}

func (backend *Backend) handleRefreshGrant(contextGin *gin.Context) {
	var inbound credentialsRequest
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.RefreshToken) == "" {
		identityError(contextGin, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, tokenID, validateErr := backend.refreshTokens.Validate(inbound.RefreshToken)
	if validateErr != nil {
		identityError(contextGin, http.StatusBadRequest, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	record, found := backend.users.GetByID(userID)
	if !found {
		identityError(contextGin, http.StatusBadRequest, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	// Rotation: the presented token dies with this exchange.
	backend.refreshTokens.Revoke(tokenID)
	backend.issueSession(contextGin, record.ID, record.Email)
}

func (backend *Backend) handleLogout(contextGin *gin.Context) {
	claims, claimsErr := backend.bearerClaims(contextGin)
	if claimsErr != nil {
		identityError(contextGin, http.StatusUnauthorized, "invalid session token")
		return
	}
	backend.refreshTokens.RevokeAllForUser(claims.Subject)
	contextGin.Status(http.StatusNoContent)
}
