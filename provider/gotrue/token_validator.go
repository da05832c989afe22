package gotrue

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Claims is the GoTrue access token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// ValidatorConfig configures access token verification.
type ValidatorConfig struct {
	// Secret verifies HS256 signed tokens. Used when JWKSURL is empty.
	Secret string

	// JWKSURL fetches the provider's signing keys for asymmetric tokens.
	JWKSURL string

	// Audience the token must carry. Default: "authenticated".
	Audience string

	// Issuer the token must carry (optional).
	Issuer string
}

// TokenValidator verifies GoTrue access tokens locally, without a round trip
// to the provider.
type TokenValidator struct {
	config  ValidatorConfig
	keyFunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
}

// NewTokenValidator builds a validator from either a shared secret or a JWKS
// endpoint.
func NewTokenValidator(cfg ValidatorConfig) (*TokenValidator, error) {
	if cfg.Audience == "" {
		cfg.Audience = "authenticated"
	}

	v := &TokenValidator{config: cfg}

	switch {
	case strings.TrimSpace(cfg.JWKSURL) != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				log.Printf("failed to do a background refresh of JWT set: %s", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, fmt.Errorf("gotrue: failed to create keyfunc from JWK Set URL: %w", err)
		}
		v.jwks = jwks
		v.keyFunc = jwks.Keyfunc
	case strings.TrimSpace(cfg.Secret) != "":
		secret := []byte(cfg.Secret)
		v.keyFunc = func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}
	default:
		return nil, fmt.Errorf("gotrue: validator requires a secret or a JWKS URL")
	}

	return v, nil
}

// Validate parses and verifies the token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithAudience(v.config.Audience),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid access token").
			WithTextCode("INVALID_ACCESS_TOKEN")
	}

	if !token.Valid {
		return nil, goerrors.New("invalid access token", goerrors.CategoryAuth).
			WithTextCode("INVALID_ACCESS_TOKEN")
	}

	return claims, nil
}

// Close releases the background JWKS refresh, if any.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
