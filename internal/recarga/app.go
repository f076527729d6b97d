// Package recarga wires the session store, the partner-API client, and the
// resource caches into one explicit application context. Nothing here is a
// package-level singleton; tests construct a fresh App per case.
package recarga

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mprlab/recarga/internal/api"
	"github.com/mprlab/recarga/internal/cache"
	"github.com/mprlab/recarga/internal/session"
)

// DefaultSuppliersTTL bounds how long the carrier catalog is trusted.
const DefaultSuppliersTTL = 5 * time.Minute

// Config configures the App.
type Config struct {
	SuppliersTTL time.Duration
	Logger       *zap.Logger
	Clock        cache.Clock
}

// App is the per-process application context.
type App struct {
	sessions     *session.Store
	client       *api.Client
	suppliers    *cache.Cache[[]api.Supplier]
	transactions *cache.Cache[[]api.Transaction]
	logger       *zap.Logger
	unsubscribe  func()
}

// New builds the App and registers it as a session observer: signing in
// prefetches a partner token, signing out drops both caches so the next user
// never sees stale data.
func New(sessions *session.Store, client *api.Client, configuration Config) *App {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	suppliersTTL := configuration.SuppliersTTL
	if suppliersTTL <= 0 {
		suppliersTTL = DefaultSuppliersTTL
	}

	app := &App{
		sessions: sessions,
		client:   client,
		logger:   logger,
	}
	app.suppliers = cache.New(cache.Config{
		Name:   "suppliers",
		TTL:    suppliersTTL,
		Logger: logger,
		Clock:  configuration.Clock,
	}, client.Suppliers)
	app.transactions = cache.New(cache.Config{
		Name:   "transactions",
		Logger: logger,
		Clock:  configuration.Clock,
	}, client.Transactions)

	app.unsubscribe = sessions.Subscribe(app.onSessionEvent)
	return app
}

// Close detaches the App from session notifications.
func (app *App) Close() {
	if app.unsubscribe != nil {
		app.unsubscribe()
		app.unsubscribe = nil
	}
}

// Sessions exposes the session store for the UI layer.
func (app *App) Sessions() *session.Store {
	return app.sessions
}

// Suppliers returns the carrier catalog, cached for the configured TTL.
func (app *App) Suppliers(ctx context.Context) ([]api.Supplier, error) {
	return app.suppliers.Get(ctx)
}

// Transactions returns the top-up history, cached until explicitly
// invalidated.
func (app *App) Transactions(ctx context.Context) ([]api.Transaction, error) {
	return app.transactions.Get(ctx)
}

// RefreshTransactions forces a reload of the history (the "Actualizar"
// action). A failed reload keeps the previous history visible.
func (app *App) RefreshTransactions(ctx context.Context) ([]api.Transaction, error) {
	return app.transactions.Refresh(ctx)
}

// TransactionsByPhone queries the history for one number, bypassing the cache.
func (app *App) TransactionsByPhone(ctx context.Context, phoneNumber string) ([]api.Transaction, error) {
	return app.client.TransactionsByPhone(ctx, phoneNumber)
}

// Recharge validates and submits a top-up. A successful top-up invalidates
// the transaction cache so the next history view reloads.
func (app *App) Recharge(ctx context.Context, input RechargeInput) (*api.RechargeResponse, error) {
	if validationErr := ValidateRecharge(input); validationErr != nil {
		return nil, validationErr
	}
	response, rechargeErr := app.client.CreateRecharge(ctx, api.RechargeRequest{
		PhoneNumber: input.PhoneNumber,
		Amount:      input.Amount,
		SupplierID:  input.SupplierID,
	})
	if rechargeErr != nil {
		return nil, rechargeErr
	}
	app.transactions.Clear()
	app.logger.Info("top-up accepted",
		zap.String("code", "recarga.topup_accepted"),
		zap.String("ticket", response.Ticket),
		zap.String("status", response.Status),
	)
	return response, nil
}

func (app *App) onSessionEvent(event session.Event, current *session.Session) {
	switch event {
	case session.EventSignedIn:
		if current != nil && current.PartnerToken == "" {
			app.prefetchPartnerToken()
		}
	case session.EventSignedOut:
		app.suppliers.Clear()
		app.transactions.Clear()
	}
}

// prefetchPartnerToken mirrors the sign-in hook of the web client: exchange
// the fresh identity for a partner token so the first catalog request does
// not pay the round trip. Best-effort; the client retries lazily on demand.
func (app *App) prefetchPartnerToken() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, exchangeErr := app.client.AuthToken(ctx)
	if exchangeErr != nil {
		app.logger.Warn("partner token prefetch failed",
			zap.String("code", "recarga.partner_prefetch_failed"),
			zap.Error(exchangeErr),
		)
		return
	}
	if setErr := app.sessions.SetPartnerToken(ctx, token); setErr != nil {
		app.logger.Warn("partner token persist failed",
			zap.String("code", "recarga.partner_persist_failed"),
			zap.Error(setErr),
		)
	}
}
