package local

import (
	"fmt"
	"time"

	"github.com/goliatone/go-session"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// Config configures the local identity provider.
type Config struct {
	// DB is the database holding the accounts table.
	DB *bun.DB

	// JWTSecret signs the HS256 access tokens.
	JWTSecret string

	// Issuer is stamped on minted tokens. Default: "go-session/local".
	Issuer string

	// TokenTTL is the access token lifetime. Default: 1 hour.
	TokenTTL time.Duration

	// AutoConfirm skips the email confirmation step on signup. Useful for
	// local development.
	AutoConfirm bool

	// SiteURL is printed in the emulated email notifications.
	SiteURL string
}

// ConfigFrom maps the application session configuration onto the local
// provider, backed by the given database.
func ConfigFrom(db *bun.DB, cfg session.Config) Config {
	return Config{
		DB:        db,
		JWTSecret: cfg.GetJWTSecret(),
		SiteURL:   cfg.GetSiteURL(),
		TokenTTL:  time.Duration(cfg.GetTokenExpiration()) * time.Hour,
	}
}

func (c Config) validate() error {
	if c.DB == nil {
		return fmt.Errorf("local: database is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("local: JWT secret is required")
	}
	return nil
}

func (c Config) issuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return "go-session/local"
}

func (c Config) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return time.Hour
}
