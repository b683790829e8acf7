// internal/lookup/postgres/postgres.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cadlive/livemap/pkg/core"
)

// Config holds Postgres connection settings for the CAD database.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// accountRow maps the CAD account view consumed by the live map.
// ActiveUnit is a JSON column so officer, deputy and combined-unit
// records share one shape.
type accountRow struct {
	AccountID      string         `gorm:"column:account_id"`
	DisplayName    string         `gorm:"column:display_name"`
	PermissionTier string         `gorm:"column:permission_tier"`
	SteamID        string         `gorm:"column:steam_id"`
	LicenseID      string         `gorm:"column:license_id"`
	DiscordID      string         `gorm:"column:discord_id"`
	ActiveUnit     datatypes.JSON `gorm:"column:active_unit"`
}

func (accountRow) TableName() string {
	return "map_accounts"
}

// Client performs read-only account lookups directly against the CAD
// database, for deployments where the engine runs next to it and no API
// endpoint is configured.
type Client struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New connects to the CAD database.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CAD database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return &Client{db: db, logger: log}, nil
}

// AccountByCanonicalID looks up an account by the canonical form of one
// identifier scheme. Returns (nil, nil) when no row matches.
func (c *Client) AccountByCanonicalID(ctx context.Context, scheme core.IdentifierScheme, canonicalID string) (*core.ResolvedIdentity, error) {
	var column string
	switch scheme {
	case core.SchemeSteam:
		column = "steam_id"
	case core.SchemeLicense:
		column = "license_id"
	case core.SchemeDiscord:
		column = "discord_id"
	default:
		return nil, fmt.Errorf("unsupported lookup scheme: %s", scheme)
	}

	var row accountRow
	err := c.db.WithContext(ctx).
		Where(column+" = ?", canonicalID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account query failed: %w", err)
	}

	ident := &core.ResolvedIdentity{
		AccountID:   row.AccountID,
		DisplayName: row.DisplayName,
		Tier:        core.PermissionTier(row.PermissionTier),
	}

	if len(row.ActiveUnit) > 0 && string(row.ActiveUnit) != "null" {
		var unit core.Unit
		if err := json.Unmarshal(row.ActiveUnit, &unit); err != nil {
			c.logger.Warn().Err(err).Str("account", row.AccountID).Msg("Malformed active_unit column, treating as off duty")
		} else if unit.ID != "" {
			ident.ActiveUnit = &unit
		}
	}

	return ident, nil
}

// Healthcheck pings the database.
func (c *Client) Healthcheck(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
