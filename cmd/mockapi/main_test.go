package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_backend_config: backend configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadBackendConfigRequiresSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("anon_key", "anon")
	viper.Set("session_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadBackendConfig()
	if err == nil {
		t.Fatalf("expected error when jwt_signing_key is missing")
	}
	expectedMessage := "config.missing_jwt_signing_key: jwt_signing_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadBackendConfigRequiresAnonKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("jwt_signing_key", "signing-secret")
	viper.Set("session_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadBackendConfig()
	if err == nil {
		t.Fatalf("expected error when anon_key is missing")
	}
	expectedMessage := "config.missing_anon_key: anon_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadBackendConfigRequiresPositiveSessionTTL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("jwt_signing_key", "signing-secret")
	viper.Set("anon_key", "anon")
	viper.Set("session_ttl", 0)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadBackendConfig()
	if err == nil {
		t.Fatalf("expected error when session_ttl is non-positive")
	}
	expectedMessage := "config.invalid_session_ttl: session_ttl must be greater than zero"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestPrepareBackendConfigStoresConfigInContext(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("jwt_signing_key", "signing-secret")
	viper.Set("anon_key", "anon")
	viper.Set("session_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	command := &cobra.Command{}
	if err := prepareBackendConfig(command, nil); err != nil {
		t.Fatalf("prepare error: %v", err)
	}
	if command.Context().Value(backendConfigContextKey) == nil {
		t.Fatalf("expected configuration in command context")
	}
}
