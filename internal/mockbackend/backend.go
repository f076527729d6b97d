// Package mockbackend emulates the two external collaborators of the client
// on one gin engine: a GoTrue-style identity provider under /auth/v1 and the
// partner top-up API under /api. It backs local development (cmd/mockapi)
// and the integration tests.
package mockbackend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Defaults for issued credentials.
const (
	DefaultSessionTTL = 15 * time.Minute
	DefaultRefreshTTL = 60 * 24 * time.Hour
	DefaultPartnerTTL = time.Hour
	DefaultIssuer     = "recarga-mock"
)

// Config configures the backend.
type Config struct {
	JWTSigningKey []byte
	JWTIssuer     string
	AnonKey       string
	SessionTTL    time.Duration
	RefreshTTL    time.Duration
	PartnerTTL    time.Duration
	Clock         Clock
	Logger        *zap.Logger
}

type partnerGrant struct {
	UserID    string
	ExpiresAt time.Time
}

// Backend holds the in-memory state behind both emulated services.
type Backend struct {
	configuration Config
	clock         Clock
	logger        *zap.Logger

	users         *UserStore
	refreshTokens *RefreshTokenStore
	suppliers     []supplierRecord

	mutex         sync.Mutex
	partnerTokens map[string]partnerGrant
	transactions  map[string][]transactionRecord
	sequence      int
}

type supplierRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type transactionRecord struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phoneNumber"`
	Amount       int       `json:"amount"`
	Status       string    `json:"status"`
	SupplierID   string    `json:"supplierId"`
	SupplierName string    `json:"supplierName"`
	CreatedAt    time.Time `json:"createdAt"`
	Ticket       string    `json:"ticket"`
}

// New validates the configuration and builds an empty backend seeded with
// the Colombian carrier catalog.
func New(configuration Config) (*Backend, error) {
	if len(configuration.JWTSigningKey) == 0 {
		return nil, errors.New("mockbackend.new: missing jwt signing key")
	}
	if strings.TrimSpace(configuration.AnonKey) == "" {
		return nil, errors.New("mockbackend.new: missing anon key")
	}
	if configuration.JWTIssuer == "" {
		configuration.JWTIssuer = DefaultIssuer
	}
	if configuration.SessionTTL <= 0 {
		configuration.SessionTTL = DefaultSessionTTL
	}
	if configuration.RefreshTTL <= 0 {
		configuration.RefreshTTL = DefaultRefreshTTL
	}
	if configuration.PartnerTTL <= 0 {
		configuration.PartnerTTL = DefaultPartnerTTL
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		configuration: configuration,
		clock:         clock,
		logger:        logger,
		users:         NewUserStore(),
		refreshTokens: NewRefreshTokenStore(clock),
		suppliers: []supplierRecord{
			{ID: "8753", Name: "Claro"},
			{ID: "9773", Name: "Movistar"},
			{ID: "3398", Name: "Tigo"},
			{ID: "4689", Name: "Wom"},
		},
		partnerTokens: make(map[string]partnerGrant),
		transactions:  make(map[string][]transactionRecord),
	}, nil
}

// Mount registers the identity and partner routes on the router.
func (backend *Backend) Mount(router gin.IRouter) {
	identityGroup := router.Group("/auth/v1")
	identityGroup.Use(backend.requireAnonKey())
	identityGroup.POST("/signup", backend.handleSignUp)
	identityGroup.POST("/token", backend.handleToken)
	identityGroup.POST("/logout", backend.handleLogout)

	partnerGroup := router.Group("/api")
	partnerGroup.POST("/auth", backend.requireSession(), backend.handlePartnerAuth)
	partnerGroup.GET("/suppliers", backend.handleSuppliers)
	partnerGroup.POST("/recharges", backend.requireSession(), backend.handleCreateRecharge)
	partnerGroup.GET("/transactions", backend.requireSession(), backend.handleTransactions)
	partnerGroup.GET("/transactions/phone/:phoneNumber", backend.requireSession(), backend.handleTransactionsByPhone)
}

func (backend *Backend) nextSequence() int {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.sequence++
	return backend.sequence
}

func (backend *Backend) supplierByID(supplierID string) (supplierRecord, bool) {
	for _, supplier := range backend.suppliers {
		if supplier.ID == supplierID {
			return supplier, true
		}
	}
	return supplierRecord{}, false
}

func (backend *Backend) issuePartnerToken(userID string) string {
	token := fmt.Sprintf("ptk-%d-%s", backend.nextSequence(), randomOpaque(12))
	backend.mutex.Lock()
	backend.partnerTokens[token] = partnerGrant{
		UserID:    userID,
		ExpiresAt: backend.clock.Now().Add(backend.configuration.PartnerTTL),
	}
	backend.mutex.Unlock()
	return token
}

func (backend *Backend) validPartnerToken(token string) bool {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	grant, found := backend.partnerTokens[token]
	if !found {
		return false
	}
	return backend.clock.Now().Before(grant.ExpiresAt)
}
