package gotrue

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-session"
)

// Config holds GoTrue connection settings.
type Config struct {
	// URL is the base URL of the GoTrue service
	// (e.g., "https://project.supabase.co/auth/v1").
	URL string

	// APIKey is sent on every request as the apikey header.
	APIKey string

	// SiteURL is the default redirect target for email links and OAuth
	// callbacks when the caller does not override it.
	SiteURL string

	// HTTPClient overrides the transport used for API calls.
	// Default: http.Client with a 10 second timeout.
	HTTPClient *http.Client

	// AutoRefreshToken schedules a background refresh shortly before the
	// access token expires. Refreshed sessions are announced through the
	// auth-change channel.
	AutoRefreshToken bool

	// RefreshMargin is how long before expiry the refresh fires.
	// Default: 30 seconds.
	RefreshMargin time.Duration
}

// ConfigFrom maps the application session configuration onto GoTrue
// connection settings.
func ConfigFrom(cfg session.Config) Config {
	return Config{
		URL:              cfg.GetProviderURL(),
		APIKey:           cfg.GetAPIKey(),
		SiteURL:          cfg.GetSiteURL(),
		AutoRefreshToken: cfg.GetAutoRefresh(),
		RefreshMargin:    30 * time.Second,
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url, apiKey string) Config {
	return Config{
		URL:              url,
		APIKey:           apiKey,
		AutoRefreshToken: true,
		RefreshMargin:    30 * time.Second,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
}

func (c Config) validate() error {
	if c.baseURL() == "" {
		return fmt.Errorf("gotrue: base URL is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("gotrue: API key is required")
	}
	return nil
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c Config) refreshMargin() time.Duration {
	if c.RefreshMargin > 0 {
		return c.RefreshMargin
	}
	return 30 * time.Second
}
