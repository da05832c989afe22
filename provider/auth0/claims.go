package auth0

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	goerrors "github.com/goliatone/go-errors"
)

// Claims is the verified access token payload normalized for session use.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string

	Email         string
	EmailVerified bool
	Name          string
	Nickname      string
	Picture       string
	Role          string
	Scope         string
	Permissions   []string

	Metadata map[string]any
}

// UserID returns the subject claim, the Auth0 user identifier.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// ClaimsMapper transforms validated Auth0 claims into Claims.
type ClaimsMapper interface {
	Map(ctx context.Context, validated *validator.ValidatedClaims) (*Claims, error)
}

// DefaultClaimsMapper maps the standard Auth0 token shape. Custom claims
// added through Auth0 actions usually live under a tenant namespace; set
// Namespace so role and tenant lookups find them.
type DefaultClaimsMapper struct {
	Namespace   string
	DefaultRole string
}

// Map implements ClaimsMapper.
func (m *DefaultClaimsMapper) Map(ctx context.Context, validated *validator.ValidatedClaims) (*Claims, error) {
	if validated == nil {
		return nil, goerrors.New("missing validated claims", goerrors.CategoryAuth).
			WithTextCode("INVALID_ACCESS_TOKEN")
	}

	custom, ok := validated.CustomClaims.(*tokenClaims)
	if !ok || custom == nil {
		custom = &tokenClaims{}
	}

	claims := &Claims{
		Subject:       validated.RegisteredClaims.Subject,
		Issuer:        validated.RegisteredClaims.Issuer,
		Audience:      validated.RegisteredClaims.Audience,
		Email:         custom.Email,
		EmailVerified: custom.EmailVerified,
		Name:          custom.Name,
		Nickname:      custom.Nickname,
		Picture:       custom.Picture,
		Scope:         custom.Scope,
		Permissions:   append([]string(nil), custom.Permissions...),
		Metadata:      map[string]any{},
	}

	claims.Role = m.extractRole(custom)

	if orgID := m.claimString(custom, m.namespacedKey("organization_id"), "organization_id", "org_id"); orgID != "" {
		claims.Metadata["organization_id"] = orgID
	}
	if tenantID := m.claimString(custom, m.namespacedKey("tenant_id"), "tenant_id"); tenantID != "" {
		claims.Metadata["tenant_id"] = tenantID
	}
	if custom.AppMetadata != nil {
		claims.Metadata["app_metadata"] = custom.AppMetadata
	}

	return claims, nil
}

func (m *DefaultClaimsMapper) extractRole(claims *tokenClaims) string {
	if role := m.claimString(claims, m.namespacedKey("role"), "role"); role != "" {
		return role
	}
	return m.DefaultRole
}

func (m *DefaultClaimsMapper) claimString(claims *tokenClaims, keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := claimValue(claims, key); ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

func (m *DefaultClaimsMapper) namespacedKey(key string) string {
	namespace := strings.TrimSpace(m.Namespace)
	if namespace == "" || key == "" {
		return ""
	}
	if !strings.HasSuffix(namespace, "/") && !strings.HasSuffix(namespace, ":") {
		namespace += "/"
	}
	return namespace + key
}

func claimValue(claims *tokenClaims, key string) (any, bool) {
	if claims == nil || key == "" {
		return nil, false
	}
	if claims.Raw != nil {
		if val, ok := claims.Raw[key]; ok {
			return val, true
		}
	}
	if claims.AppMetadata != nil {
		if val, ok := claims.AppMetadata[key]; ok {
			return val, true
		}
	}
	return nil, false
}

// tokenClaims captures the Auth0 custom claim surface plus the raw payload
// so namespaced claims stay reachable.
type tokenClaims struct {
	Scope         string         `json:"scope"`
	Permissions   []string       `json:"permissions"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Name          string         `json:"name"`
	Nickname      string         `json:"nickname"`
	Picture       string         `json:"picture"`
	AppMetadata   map[string]any `json:"app_metadata"`
	Raw           map[string]any `json:"-"`
}

// Validate satisfies validator.CustomClaims.
func (c *tokenClaims) Validate(ctx context.Context) error {
	return nil
}

// UnmarshalJSON captures both known and raw claims for custom mapping.
func (c *tokenClaims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias tokenClaims
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*c = tokenClaims(decoded)
	c.Raw = raw
	return nil
}
