package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mprlab/recarga/internal/api"
	"github.com/mprlab/recarga/internal/identity"
	"github.com/mprlab/recarga/internal/recarga"
	"github.com/mprlab/recarga/internal/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const (
	configCodeMissingAPIBaseURL      = "config.missing_api_base_url"
	configCodeMissingIdentityBaseURL = "config.missing_identity_base_url"
	configCodeMissingIdentityAnonKey = "config.missing_identity_anon_key"
	configCodeInvalidRequestTimeout  = "config.invalid_request_timeout"
	configCodeSessionDBPath          = "config.session_db_path"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// ClientConfig carries everything needed to reach the two upstream services.
type ClientConfig struct {
	APIBaseURL        string
	IdentityBaseURL   string
	IdentityAnonKey   string
	RequestTimeout    time.Duration
	SlowThreshold     time.Duration
	SuppliersCacheTTL time.Duration
	SessionDBURL      string
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "recarga",
		Short:         "Mobile top-up client for Colombian carriers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("api_base_url", "http://localhost:8090", "Partner API base URL")
	rootCmd.PersistentFlags().String("identity_base_url", "http://localhost:8090", "Identity provider base URL")
	rootCmd.PersistentFlags().String("identity_anon_key", "", "Identity provider public API key")
	rootCmd.PersistentFlags().Duration("request_timeout", api.DefaultTimeout, "Per-request timeout for partner API calls")
	rootCmd.PersistentFlags().Duration("slow_threshold", api.DefaultSlowThreshold, "Latency above which requests are logged as slow")
	rootCmd.PersistentFlags().Duration("suppliers_cache_ttl", recarga.DefaultSuppliersTTL, "How long the carrier catalog is cached")
	rootCmd.PersistentFlags().String("session_db_url", "", "Session storage URL (postgres:// or sqlite://; defaults to a sqlite file in the user config dir)")

	_ = viper.BindPFlag("api_base_url", rootCmd.PersistentFlags().Lookup("api_base_url"))
	_ = viper.BindPFlag("identity_base_url", rootCmd.PersistentFlags().Lookup("identity_base_url"))
	_ = viper.BindPFlag("identity_anon_key", rootCmd.PersistentFlags().Lookup("identity_anon_key"))
	_ = viper.BindPFlag("request_timeout", rootCmd.PersistentFlags().Lookup("request_timeout"))
	_ = viper.BindPFlag("slow_threshold", rootCmd.PersistentFlags().Lookup("slow_threshold"))
	_ = viper.BindPFlag("suppliers_cache_ttl", rootCmd.PersistentFlags().Lookup("suppliers_cache_ttl"))
	_ = viper.BindPFlag("session_db_url", rootCmd.PersistentFlags().Lookup("session_db_url"))

	viper.SetEnvPrefix("RECARGA")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newRegisterCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoAmICommand(),
		newSuppliersCommand(),
		newTopUpCommand(),
		newHistoryCommand(),
	)

	return rootCmd
}

// LoadClientConfig reads and validates the flag/env configuration.
func LoadClientConfig() (ClientConfig, error) {
	apiBaseURL := viper.GetString("api_base_url")
	if apiBaseURL == "" {
		return ClientConfig{}, configError(configCodeMissingAPIBaseURL, "api_base_url must be provided")
	}

	identityBaseURL := viper.GetString("identity_base_url")
	if identityBaseURL == "" {
		return ClientConfig{}, configError(configCodeMissingIdentityBaseURL, "identity_base_url must be provided")
	}

	identityAnonKey := viper.GetString("identity_anon_key")
	if identityAnonKey == "" {
		return ClientConfig{}, configError(configCodeMissingIdentityAnonKey, "identity_anon_key must be provided")
	}

	requestTimeout := viper.GetDuration("request_timeout")
	if requestTimeout <= 0 {
		return ClientConfig{}, configError(configCodeInvalidRequestTimeout, "request_timeout must be greater than zero")
	}

	sessionDBURL := viper.GetString("session_db_url")
	if sessionDBURL == "" {
		defaultURL, defaultErr := defaultSessionDBURL()
		if defaultErr != nil {
			return ClientConfig{}, fmt.Errorf("%s: %w", configCodeSessionDBPath, defaultErr)
		}
		sessionDBURL = defaultURL
	}

	return ClientConfig{
		APIBaseURL:        apiBaseURL,
		IdentityBaseURL:   identityBaseURL,
		IdentityAnonKey:   identityAnonKey,
		RequestTimeout:    requestTimeout,
		SlowThreshold:     viper.GetDuration("slow_threshold"),
		SuppliersCacheTTL: viper.GetDuration("suppliers_cache_ttl"),
		SessionDBURL:      sessionDBURL,
	}, nil
}

func defaultSessionDBURL() (string, error) {
	configDir, configErr := os.UserConfigDir()
	if configErr != nil {
		return "", configErr
	}
	appDir := filepath.Join(configDir, "recarga")
	if mkdirErr := os.MkdirAll(appDir, 0o700); mkdirErr != nil {
		return "", mkdirErr
	}
	return "sqlite://" + filepath.Join(appDir, "session.db"), nil
}

// appContext bundles the constructed application with its teardown.
type appContext struct {
	app      *recarga.App
	sessions *session.Store
	logger   *zap.Logger
}

func (appCtx *appContext) close() {
	appCtx.app.Close()
	_ = appCtx.logger.Sync()
}

// buildApp assembles storage, identity provider, session store, API client,
// and the application context. restore controls whether a persisted session
// is revalidated before the command runs.
func buildApp(ctx context.Context, restore bool) (*appContext, error) {
	clientConfig, configErr := LoadClientConfig()
	if configErr != nil {
		return nil, configErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return nil, loggerErr
	}

	tokenStorage, storageErr := session.NewDatabaseTokenStorage(ctx, clientConfig.SessionDBURL)
	if storageErr != nil {
		return nil, storageErr
	}

	provider, providerErr := identity.NewHTTPProvider(identity.HTTPConfig{
		BaseURL: clientConfig.IdentityBaseURL,
		AnonKey: clientConfig.IdentityAnonKey,
		Logger:  logger,
	})
	if providerErr != nil {
		return nil, providerErr
	}

	sessions, sessionsErr := session.NewStore(session.Config{
		Provider: provider,
		Storage:  tokenStorage,
		Logger:   logger,
	})
	if sessionsErr != nil {
		return nil, sessionsErr
	}

	if restore {
		if _, restoreErr := sessions.Restore(ctx); restoreErr != nil {
			logger.Warn("stored session not restored", zap.Error(restoreErr))
		}
	}

	client, clientErr := api.NewClient(api.Config{
		BaseURL:       clientConfig.APIBaseURL,
		Timeout:       clientConfig.RequestTimeout,
		SlowThreshold: clientConfig.SlowThreshold,
		Logger:        logger,
	}, sessions)
	if clientErr != nil {
		return nil, clientErr
	}

	app := recarga.New(sessions, client, recarga.Config{
		SuppliersTTL: clientConfig.SuppliersCacheTTL,
		Logger:       logger,
	})

	return &appContext{app: app, sessions: sessions, logger: logger}, nil
}

func newRegisterCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "register",
		Short: "Create an account with email and password",
		RunE: func(command *cobra.Command, arguments []string) error {
			email, _ := command.Flags().GetString("email")
			password, _ := command.Flags().GetString("password")

			appCtx, buildErr := buildApp(command.Context(), false)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			established, signUpErr := appCtx.sessions.SignUp(command.Context(), email, password)
			if signUpErr != nil {
				return signUpErr
			}
			if established == nil {
				fmt.Fprintln(command.OutOrStdout(), "Registro recibido. Confirma tu correo antes de iniciar sesión.")
				return nil
			}
			fmt.Fprintf(command.OutOrStdout(), "Sesión iniciada como %s\n", established.Email)
			return nil
		},
	}
	command.Flags().String("email", "", "Account email")
	command.Flags().String("password", "", "Account password")
	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")
	return command
}

func newLoginCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(command *cobra.Command, arguments []string) error {
			email, _ := command.Flags().GetString("email")
			password, _ := command.Flags().GetString("password")

			appCtx, buildErr := buildApp(command.Context(), false)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			established, signInErr := appCtx.sessions.SignIn(command.Context(), email, password)
			if signInErr != nil {
				return signInErr
			}
			fmt.Fprintf(command.OutOrStdout(), "Sesión iniciada como %s\n", established.Email)
			return nil
		},
	}
	command.Flags().String("email", "", "Account email")
	command.Flags().String("password", "", "Account password")
	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")
	return command
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and discard stored tokens",
		RunE: func(command *cobra.Command, arguments []string) error {
			appCtx, buildErr := buildApp(command.Context(), true)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			appCtx.sessions.SignOut(command.Context())
			fmt.Fprintln(command.OutOrStdout(), "Sesión cerrada")
			return nil
		},
	}
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(command *cobra.Command, arguments []string) error {
			appCtx, buildErr := buildApp(command.Context(), true)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			current := appCtx.sessions.CurrentSession()
			if current == nil {
				return session.ErrNotSignedIn
			}
			fmt.Fprintf(command.OutOrStdout(), "%s (%s)\n", current.Email, current.UserID)
			return nil
		},
	}
}

func newSuppliersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suppliers",
		Short: "List the available carriers",
		RunE: func(command *cobra.Command, arguments []string) error {
			appCtx, buildErr := buildApp(command.Context(), true)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			suppliers, suppliersErr := appCtx.app.Suppliers(command.Context())
			if suppliersErr != nil {
				return suppliersErr
			}
			for _, supplier := range suppliers {
				fmt.Fprintf(command.OutOrStdout(), "%s\t%s\n", supplier.ID, supplier.Name)
			}
			return nil
		},
	}
}

func newTopUpCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "topup",
		Short: "Submit a mobile top-up",
		RunE: func(command *cobra.Command, arguments []string) error {
			phoneNumber, _ := command.Flags().GetString("phone")
			amount, _ := command.Flags().GetInt("amount")
			supplierID, _ := command.Flags().GetString("supplier")

			appCtx, buildErr := buildApp(command.Context(), true)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			response, rechargeErr := appCtx.app.Recharge(command.Context(), recarga.RechargeInput{
				PhoneNumber: phoneNumber,
				Amount:      amount,
				SupplierID:  supplierID,
			})
			if rechargeErr != nil {
				return rechargeErr
			}
			fmt.Fprintf(command.OutOrStdout(), "Recarga %s por %s a %s — ticket %s\n",
				response.Status,
				recarga.FormatCurrency(response.Amount),
				recarga.FormatPhoneNumber(response.PhoneNumber),
				response.Ticket,
			)
			return nil
		},
	}
	command.Flags().String("phone", "", "Ten-digit mobile number starting with 3")
	command.Flags().Int("amount", 0, "Amount in COP (1000 to 100000)")
	command.Flags().String("supplier", "", "Carrier ID")
	_ = command.MarkFlagRequired("phone")
	_ = command.MarkFlagRequired("amount")
	_ = command.MarkFlagRequired("supplier")
	return command
}

const historyDateLayout = "2006-01-02"

func newHistoryCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "history",
		Short: "Show the top-up history",
		RunE: func(command *cobra.Command, arguments []string) error {
			phoneNumber, _ := command.Flags().GetString("phone")
			status, _ := command.Flags().GetString("status")
			supplierID, _ := command.Flags().GetString("supplier")
			fromText, _ := command.Flags().GetString("from")
			toText, _ := command.Flags().GetString("to")
			pageNumber, _ := command.Flags().GetInt("page")
			pageSize, _ := command.Flags().GetInt("page-size")
			forceRefresh, _ := command.Flags().GetBool("refresh")

			filter := recarga.TransactionFilter{
				PhoneNumber: phoneNumber,
				Status:      status,
				SupplierID:  supplierID,
			}
			if fromText != "" {
				from, parseErr := time.Parse(historyDateLayout, fromText)
				if parseErr != nil {
					return fmt.Errorf("history.invalid_from: %w", parseErr)
				}
				filter.DateFrom = from
			}
			if toText != "" {
				to, parseErr := time.Parse(historyDateLayout, toText)
				if parseErr != nil {
					return fmt.Errorf("history.invalid_to: %w", parseErr)
				}
				filter.DateTo = to
			}

			appCtx, buildErr := buildApp(command.Context(), true)
			if buildErr != nil {
				return buildErr
			}
			defer appCtx.close()

			transactions, historyErr := loadHistory(command.Context(), appCtx.app, forceRefresh)
			if historyErr != nil {
				return historyErr
			}

			page := recarga.Paginate(recarga.FilterTransactions(transactions, filter), pageNumber, pageSize)
			for _, transaction := range page.Items {
				fmt.Fprintf(command.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\t%s\n",
					recarga.FormatDateShort(transaction.CreatedAt),
					recarga.FormatPhoneNumber(transaction.PhoneNumber),
					recarga.FormatCurrency(transaction.Amount),
					transaction.SupplierName,
					transaction.Status,
					transaction.Ticket,
				)
			}
			fmt.Fprintf(command.OutOrStdout(), "Página %d de %d (%d recargas)\n", page.Number, page.TotalPages, page.TotalItems)
			return nil
		},
	}
	command.Flags().String("phone", "", "Filter by phone number (substring)")
	command.Flags().String("status", "", "Filter by status (COMPLETED, PENDING, FAILED)")
	command.Flags().String("supplier", "", "Filter by carrier ID")
	command.Flags().String("from", "", "Filter from date (YYYY-MM-DD)")
	command.Flags().String("to", "", "Filter to date (YYYY-MM-DD)")
	command.Flags().Int("page", 1, "Page number")
	command.Flags().Int("page-size", recarga.DefaultPageSize, "Page size (5, 10, 20, or 50)")
	command.Flags().Bool("refresh", false, "Reload the history from the partner API")
	return command
}

func loadHistory(ctx context.Context, app *recarga.App, forceRefresh bool) ([]api.Transaction, error) {
	if forceRefresh {
		return app.RefreshTransactions(ctx)
	}
	return app.Transactions(ctx)
}
