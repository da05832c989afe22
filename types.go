package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityClient is the gateway to the external identity provider. Every
// call suspends the caller for one network round-trip; errors are normalized
// provider failures. Session establishment that happens out of band (OAuth
// redirect completion, background token refresh) is observed through
// OnAuthStateChange, not through return values.
type IdentityClient interface {
	SignUp(ctx context.Context, payload SignupPayload) (*SignupResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*LoginResult, error)
	SignInWithOAuth(provider string, opts ...OAuthOption) (*OAuthRedirect, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	ResendVerificationEmail(ctx context.Context, email string) error
	OnAuthStateChange(handler AuthChangeHandler) Subscription
}

// Config holds session options
type Config interface {
	GetProviderURL() string
	GetAPIKey() string
	GetSiteURL() string
	GetJWTSecret() string
	GetTokenExpiration() int
	GetAutoRefresh() bool
}

// OAuthOption configures the OAuth redirect request.
type OAuthOption func(*oauthConfig)

// WithOAuthScopes sets additional scopes for the authorize request.
func WithOAuthScopes(scopes ...string) OAuthOption {
	return func(c *oauthConfig) {
		c.scopes = append(c.scopes, scopes...)
	}
}

// WithOAuthRedirectTo overrides the post-auth redirect target.
func WithOAuthRedirectTo(redirectTo string) OAuthOption {
	return func(c *oauthConfig) {
		c.redirectTo = redirectTo
	}
}

type oauthConfig struct {
	scopes     []string
	redirectTo string
}

// OAuthConfig represents applied OAuth options in a provider-friendly form.
type OAuthConfig struct {
	Scopes     []string
	RedirectTo string
}

// ApplyOAuthOptions applies OAuthOption values and returns a normalized config.
func ApplyOAuthOptions(opts ...OAuthOption) OAuthConfig {
	cfg := oauthConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return OAuthConfig{
		Scopes:     cfg.scopes,
		RedirectTo: cfg.redirectTo,
	}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
