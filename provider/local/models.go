package local

import (
	"time"

	"github.com/goliatone/go-session"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is a locally stored identity. It plays the role the remote
// provider's user table plays in production.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                 uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Email              string         `bun:"email,notnull,unique" json:"email"`
	PasswordHash       string         `bun:"password_hash,notnull" json:"-"`
	Metadata           map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	EmailConfirmedAt   *time.Time     `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time     `bun:"confirmation_sent_at,nullzero" json:"confirmation_sent_at,omitempty"`
	LoginAttempts      int            `bun:"login_attempts,nullzero" json:"-"`
	LoginAttemptAt     *time.Time     `bun:"login_attempt_at,nullzero" json:"-"`
	LastSignInAt       *time.Time     `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	CreatedAt          *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Confirmed reports whether the signup email was acknowledged.
func (a *Account) Confirmed() bool {
	return a != nil && a.EmailConfirmedAt != nil
}

func (a *Account) toUser() *session.User {
	if a == nil {
		return nil
	}
	return &session.User{
		ID:                 a.ID.String(),
		Aud:                "authenticated",
		Email:              a.Email,
		Role:               "authenticated",
		EmailConfirmedAt:   a.EmailConfirmedAt,
		ConfirmationSentAt: a.ConfirmationSentAt,
		LastSignInAt:       a.LastSignInAt,
		UserMetadata:       a.Metadata,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}
