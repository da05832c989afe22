package session

import (
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// EnvConfig is the environment-backed Config implementation.
type EnvConfig struct {
	ProviderURL     string `env:"SESSION_PROVIDER_URL" envDefault:"http://localhost:9999"`
	APIKey          string `env:"SESSION_API_KEY"`
	SiteURL         string `env:"SESSION_SITE_URL" envDefault:"http://localhost:3000"`
	JWTSecret       string `env:"SESSION_JWT_SECRET"`
	TokenExpiration int    `env:"SESSION_TOKEN_EXPIRATION" envDefault:"24"`
	AutoRefresh     bool   `env:"SESSION_AUTO_REFRESH" envDefault:"true"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not parse environment config")
	}
	return cfg, nil
}

func (c *EnvConfig) GetProviderURL() string {
	return strings.TrimSuffix(c.ProviderURL, "/")
}

func (c *EnvConfig) GetAPIKey() string { return c.APIKey }

func (c *EnvConfig) GetSiteURL() string {
	return strings.TrimSuffix(c.SiteURL, "/")
}

func (c *EnvConfig) GetJWTSecret() string { return c.JWTSecret }

func (c *EnvConfig) GetTokenExpiration() int { return c.TokenExpiration }

func (c *EnvConfig) GetAutoRefresh() bool { return c.AutoRefresh }

// Redirect targets relative to the site URL. These match the routes the
// dashboard mounts for the email verification, OAuth callback, and password
// reset flows.
const (
	VerifyEmailPath   = "/auth/verify-email"
	OAuthCallbackPath = "/auth/callback"
	ResetPasswordPath = "/auth/reset-password"
)
