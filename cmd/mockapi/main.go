package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/recarga/internal/mockbackend"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mockapi",
		Short:   "Local stand-in for the identity provider and the partner top-up API",
		PreRunE: prepareBackendConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8090", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for session JWTs")
	rootCmd.Flags().String("anon_key", "", "Public API key expected in the apikey header")
	rootCmd.Flags().Duration("session_ttl", mockbackend.DefaultSessionTTL, "Session token TTL")
	rootCmd.Flags().Duration("refresh_ttl", mockbackend.DefaultRefreshTTL, "Refresh token TTL")
	rootCmd.Flags().Duration("partner_ttl", mockbackend.DefaultPartnerTTL, "Partner token TTL")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for browser clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("anon_key", rootCmd.Flags().Lookup("anon_key"))
	_ = viper.BindPFlag("session_ttl", rootCmd.Flags().Lookup("session_ttl"))
	_ = viper.BindPFlag("refresh_ttl", rootCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("partner_ttl", rootCmd.Flags().Lookup("partner_ttl"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("MOCKAPI")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingJWTSigningKey = "config.missing_jwt_signing_key"
	configCodeMissingAnonKey       = "config.missing_anon_key"
	configCodeInvalidSessionTTL    = "config.invalid_session_ttl"
	configCodeInvalidRefreshTTL    = "config.invalid_refresh_ttl"
	configCodeUninitializedConfig  = "config.uninitialized_backend_config"
)

type contextKey string

const backendConfigContextKey contextKey = "backendConfig"

func prepareBackendConfig(command *cobra.Command, arguments []string) error {
	backendConfig, loadErr := LoadBackendConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, backendConfigContextKey, backendConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadBackendConfig() (mockbackend.Config, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return mockbackend.Config{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	anonKey := viper.GetString("anon_key")
	if anonKey == "" {
		return mockbackend.Config{}, configError(configCodeMissingAnonKey, "anon_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return mockbackend.Config{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return mockbackend.Config{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	return mockbackend.Config{
		JWTSigningKey: []byte(jwtSigningKey),
		JWTIssuer:     mockbackend.DefaultIssuer,
		AnonKey:       anonKey,
		SessionTTL:    sessionTTL,
		RefreshTTL:    refreshTTL,
		PartnerTTL:    viper.GetDuration("partner_ttl"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(backendConfigContextKey)
	}
	backendConfig, ok := contextValue.(mockbackend.Config)
	if !ok {
		return configError(configCodeUninitializedConfig, "backend configuration not prepared; PreRunE must execute before RunE")
	}
	backendConfig.Logger = logger

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := mockbackend.PermissiveCORS(corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	backend, backendErr := mockbackend.New(backendConfig)
	if backendErr != nil {
		return backendErr
	}
	backend.Mount(router)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
