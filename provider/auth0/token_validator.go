package auth0

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator verifies Auth0 issued JWTs against the tenant JWKS,
// without a round trip to the provider.
type TokenValidator struct {
	config       Config
	validator    *validator.Validator
	claimsMapper ClaimsMapper
}

// NewTokenValidator creates a validator for the configured tenant.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	issuer := cfg.issuerURL()
	if issuer == "" {
		return nil, fmt.Errorf("auth0: issuer or domain is required")
	}

	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %w", err)
	}
	if issuerURL.Scheme == "" || issuerURL.Host == "" {
		return nil, fmt.Errorf("auth0: invalid issuer URL: %s", issuer)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	provider := jwks.NewCachingProvider(issuerURL, cacheTTL)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		cfg.Audience,
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &tokenClaims{}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create validator: %w", err)
	}

	mapper := cfg.ClaimsMapper
	if mapper == nil {
		mapper = &DefaultClaimsMapper{}
	}

	return &TokenValidator{
		config:       cfg,
		validator:    jwtValidator,
		claimsMapper: mapper,
	}, nil
}

// Validate parses and verifies the token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	ctx := context.Background()
	if v.config.ContextFunc != nil {
		ctx = v.config.ContextFunc()
	}

	token, err := v.validator.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	validatedClaims, ok := token.(*validator.ValidatedClaims)
	if !ok || validatedClaims == nil {
		return nil, goerrors.New("invalid access token", goerrors.CategoryAuth).
			WithTextCode("INVALID_ACCESS_TOKEN")
	}

	return v.claimsMapper.Map(ctx, validatedClaims)
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	textCode := "INVALID_ACCESS_TOKEN"
	message := "invalid access token"
	// the middleware surfaces expiry either as a jwt sentinel or as go-jose
	// validation copy depending on where verification fails
	if stderrors.Is(err, jwt.ErrTokenExpired) || strings.Contains(err.Error(), "token is expired") {
		textCode = "TOKEN_EXPIRED"
		message = "access token expired"
	}

	return goerrors.Wrap(err, goerrors.CategoryAuth, message).
		WithTextCode(textCode).
		WithMetadata(map[string]any{
			"provider": "auth0",
			"cause":    err.Error(),
		})
}
