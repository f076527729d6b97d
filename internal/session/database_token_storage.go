package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("token_storage.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("token_storage.empty_database_url")
	errSQLiteEmptyPath     = errors.New("token_storage.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("token_storage.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("token_storage.unsupported_no_scheme")
)

// The persisted state lives in a single row under this fixed key, the
// local-storage analog for a command-line client.
const currentStateKey = "current"

// DatabaseTokenStorage persists the token state using GORM, selecting the
// driver from the URL scheme (sqlite:// or postgres://).
type DatabaseTokenStorage struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (storage *DatabaseTokenStorage) Driver() string {
	return storage.driverLabel
}

type tokenStateRecord struct {
	StateKey     string `gorm:"column:state_key;primaryKey"`
	UserID       string `gorm:"column:user_id;not null;default:''"`
	Email        string `gorm:"column:email;not null;default:''"`
	AccessToken  string `gorm:"column:access_token;not null;default:''"`
	RefreshToken string `gorm:"column:refresh_token;not null;default:''"`
	PartnerToken string `gorm:"column:partner_token;not null;default:''"`
	UpdatedUnix  int64  `gorm:"column:updated_unix;not null"`
}

func (tokenStateRecord) TableName() string {
	return "session_tokens"
}

// NewDatabaseTokenStorage constructs a GORM-backed storage.
func NewDatabaseTokenStorage(ctx context.Context, databaseURL string) (*DatabaseTokenStorage, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("token_storage.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("token_storage.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&tokenStateRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("token_storage.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseTokenStorage{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Load returns the stored state and whether any state was present.
func (storage *DatabaseTokenStorage) Load(ctx context.Context) (TokenState, bool, error) {
	var record tokenStateRecord
	err := storage.db.WithContext(ctx).Where("state_key = ?", currentStateKey).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenState{}, false, nil
		}
		return TokenState{}, false, fmt.Errorf("token_storage.load.%s: %w", storage.driverLabel, err)
	}
	return TokenState{
		UserID:       record.UserID,
		Email:        record.Email,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		PartnerToken: record.PartnerToken,
	}, true, nil
}

// Save replaces the stored state wholesale.
func (storage *DatabaseTokenStorage) Save(ctx context.Context, state TokenState) error {
	record := tokenStateRecord{
		StateKey:     currentStateKey,
		UserID:       state.UserID,
		Email:        state.Email,
		AccessToken:  state.AccessToken,
		RefreshToken: state.RefreshToken,
		PartnerToken: state.PartnerToken,
		UpdatedUnix:  time.Now().UTC().Unix(),
	}
	err := storage.db.WithContext(ctx).Save(&record).Error
	if err != nil {
		return fmt.Errorf("token_storage.save.%s: %w", storage.driverLabel, err)
	}
	return nil
}

// Clear removes the stored state. Clearing empty storage succeeds.
func (storage *DatabaseTokenStorage) Clear(ctx context.Context) error {
	err := storage.db.WithContext(ctx).Where("state_key = ?", currentStateKey).Delete(&tokenStateRecord{}).Error
	if err != nil {
		return fmt.Errorf("token_storage.clear.%s: %w", storage.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("token_storage.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("token_storage.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("token_storage.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("token_storage.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
