package session

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity-provider record. It is immutable from the client's
// perspective except through provider-issued updates.
type User struct {
	ID                 string         `json:"id,omitempty"`
	Aud                string         `json:"aud,omitempty"`
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Role               string         `json:"role,omitempty"`
	EmailConfirmedAt   *time.Time     `json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time     `json:"confirmation_sent_at,omitempty"`
	LastSignInAt       *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata        map[string]any `json:"app_metadata,omitempty"`
	UserMetadata       map[string]any `json:"user_metadata,omitempty"`
	CreatedAt          *time.Time     `json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `json:"updated_at,omitempty"`
}

// Confirmed reports whether the signup confirmation email was acknowledged.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session is the provider-issued credential bundle. It is replaced wholesale
// on every auth event and cleared on sign-out.
type Session struct {
	AccessToken   string `json:"access_token,omitempty"`
	TokenType     string `json:"token_type,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	ExpiresIn     int64  `json:"expires_in,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	ProviderToken string `json:"provider_token,omitempty"`
	User          *User  `json:"user,omitempty"`
}

// GetUserID returns the id of the user the session was issued for.
func (s *Session) GetUserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// ExpiresAtTime returns the expiry as a time.Time, zero when unknown.
func (s *Session) ExpiresAtTime() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Expired reports whether the session expires within the given leeway.
func (s *Session) Expired(leeway time.Duration) bool {
	exp := s.ExpiresAtTime()
	if exp.IsZero() {
		return false
	}
	return time.Now().Add(leeway).After(exp)
}

// TODO: enable only in development!
func (s Session) String() string {
	exp := "<nil>"
	if t := s.ExpiresAtTime(); !t.IsZero() {
		exp = t.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s type=%s exp=%s",
		s.GetUserID(),
		s.TokenType,
		exp,
	)
}

// Profile is the application-owned record of user-supplied attributes,
// distinct from the provider's user record. Keyed 1:1 by user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	CompanyName   string     `bun:"company_name" json:"company_name,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// ProfileUpdates carries the mutable profile fields. Empty fields are left
// untouched by UpdateFields.
type ProfileUpdates struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone_number,omitempty"`
}

// IsZero reports whether no field carries an update.
func (u ProfileUpdates) IsZero() bool {
	return u == ProfileUpdates{}
}

// ProfileStatus tags the outcome of the store's profile fetch so "no profile
// yet" and "lookup failed but was ignored" stay distinguishable.
type ProfileStatus string

const (
	// ProfileNone means no fetch has been attempted (anonymous state).
	ProfileNone ProfileStatus = "none"
	// ProfileLoaded means the profile row was found and stored.
	ProfileLoaded ProfileStatus = "loaded"
	// ProfileAbsent means the fetch succeeded but no row exists.
	ProfileAbsent ProfileStatus = "absent"
	// ProfileUnavailable means the fetch failed and the error was swallowed.
	ProfileUnavailable ProfileStatus = "unavailable"
)

// SignupPayload carries the registration fields. Profile metadata travels as
// identity traits and seeds the best-effort profile row.
type SignupPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone_number"`
}

// Validate will run validation rules
func (p SignupPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.CompanyName, validation.Length(0, 200)),
	)
}

// FullName joins the payload name parts.
func (p SignupPayload) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Traits returns the payload's profile metadata as identity traits.
func (p SignupPayload) Traits() map[string]any {
	return map[string]any{
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"company_name": p.CompanyName,
		"full_name":    p.FullName(),
	}
}

// SignupResult is the raw provider result of a registration. Session is nil
// when the provider requires email confirmation before issuing credentials.
type SignupResult struct {
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// LoginResult pairs the authenticated user with the issued session.
type LoginResult struct {
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// OAuthRedirect is the provider handle for a redirect-based OAuth flow. The
// actual session is established asynchronously after the redirect completes
// and is observed via the auth-change channel.
type OAuthRedirect struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
	State    string `json:"state,omitempty"`
}
