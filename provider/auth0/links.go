package auth0

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderName is the provider key used for Auth0 identity links.
const ProviderName = "auth0"

// LinkStore maps external identity subjects (auth0|..., google-oauth2|...)
// to local profile ids.
type LinkStore interface {
	FindProfileID(ctx context.Context, provider, subject string) (string, error)
	Upsert(ctx context.Context, profileID, provider, subject string) error
}

// IdentityLink is the Bun model for the link table.
type IdentityLink struct {
	bun.BaseModel `bun:"table:identity_links"`

	ID        uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	ProfileID uuid.UUID      `bun:"profile_id,notnull,type:uuid"`
	Provider  string         `bun:"provider,notnull"`
	Subject   string         `bun:"subject,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,default:current_timestamp"`
}

// BunLinkStore implements LinkStore on the application database.
type BunLinkStore struct {
	db *bun.DB
}

// NewLinkStore creates a Bun backed link store.
func NewLinkStore(db *bun.DB) *BunLinkStore {
	return &BunLinkStore{db: db}
}

// FindProfileID implements LinkStore.
func (s *BunLinkStore) FindProfileID(ctx context.Context, provider, subject string) (string, error) {
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return "", repository.ErrRecordNotFound
	}

	var model IdentityLink
	err := s.db.NewSelect().
		Model(&model).
		Where("provider = ? AND subject = ?", provider, subject).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return "", fmt.Errorf("identity link %s/%s: %w", provider, subject, repository.ErrRecordNotFound)
		}
		return "", err
	}

	return model.ProfileID.String(), nil
}

// Upsert implements LinkStore.
func (s *BunLinkStore) Upsert(ctx context.Context, profileID, provider, subject string) error {
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return fmt.Errorf("link store: provider and subject are required")
	}

	parsedID, err := uuid.Parse(strings.TrimSpace(profileID))
	if err != nil {
		return fmt.Errorf("link store: invalid profile ID: %w", err)
	}

	model := &IdentityLink{
		ID:        uuid.New(),
		ProfileID: parsedID,
		Provider:  provider,
		Subject:   subject,
		Metadata:  map[string]any{},
		UpdatedAt: time.Now(),
	}

	_, err = s.db.NewInsert().
		Model(model).
		On("CONFLICT (provider, subject) DO UPDATE").
		Set("profile_id = EXCLUDED.profile_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

var _ LinkStore = (*BunLinkStore)(nil)
