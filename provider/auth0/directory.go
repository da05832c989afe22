package auth0

import (
	"context"
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/management"
	"github.com/goliatone/go-session"
)

// DirectoryConfig configures the management API backed user directory.
type DirectoryConfig struct {
	// Domain is the Auth0 management API domain.
	Domain string

	// ClientID is the M2M application client ID.
	ClientID string

	// ClientSecret is the M2M application client secret.
	ClientSecret string

	// Syncer mirrors fetched users into the local profile store (optional).
	Syncer *Syncer

	// SyncOnFetch syncs the profile whenever a user is fetched.
	SyncOnFetch bool
}

// Directory reads users from the Auth0 management API and optionally mirrors
// them into the local profile store.
type Directory struct {
	config DirectoryConfig
	mgmt   *management.Management
	syncer *Syncer
}

// NewDirectory creates an Auth0 backed user directory.
func NewDirectory(ctx context.Context, cfg DirectoryConfig) (*Directory, error) {
	if strings.TrimSpace(cfg.Domain) == "" {
		return nil, fmt.Errorf("auth0: management domain is required")
	}

	mgmt, err := management.New(
		cfg.Domain,
		management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0: failed to create management client: %w", err)
	}

	return &Directory{
		config: cfg,
		mgmt:   mgmt,
		syncer: cfg.Syncer,
	}, nil
}

// GetUser fetches the Auth0 user for the given subject.
func (d *Directory) GetUser(ctx context.Context, subject string) (*session.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("auth0: subject is required")
	}

	auth0User, err := d.mgmt.User.Read(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("auth0: user not found: %w", err)
	}

	if d.config.SyncOnFetch && d.syncer != nil {
		if _, err := d.syncer.SyncUser(ctx, auth0User); err != nil {
			return nil, fmt.Errorf("auth0: failed to sync profile: %w", err)
		}
	}

	return mapManagementUser(auth0User), nil
}

// SyncBySubject fetches an Auth0 user and mirrors it into the profile store.
func (d *Directory) SyncBySubject(ctx context.Context, subject string) (*session.Profile, error) {
	if d.syncer == nil {
		return nil, fmt.Errorf("auth0: directory has no syncer")
	}

	auth0User, err := d.mgmt.User.Read(ctx, strings.TrimSpace(subject))
	if err != nil {
		return nil, fmt.Errorf("auth0: user not found: %w", err)
	}

	return d.syncer.SyncUser(ctx, auth0User)
}

func mapManagementUser(u *management.User) *session.User {
	if u == nil {
		return nil
	}

	metadata := map[string]any{
		"name":     u.GetName(),
		"nickname": u.GetNickname(),
		"picture":  u.GetPicture(),
	}

	var appMetadata map[string]any
	if u.AppMetadata != nil {
		appMetadata = map[string]any{}
		for k, v := range *u.AppMetadata {
			appMetadata[k] = v
		}
	}
	if u.UserMetadata != nil {
		for k, v := range *u.UserMetadata {
			metadata[k] = v
		}
	}

	user := &session.User{
		ID:           u.GetID(),
		Aud:          "authenticated",
		Email:        u.GetEmail(),
		Role:         "authenticated",
		AppMetadata:  appMetadata,
		UserMetadata: metadata,
	}

	// the management API exposes verification as a flag, not a timestamp
	if u.GetEmailVerified() {
		createdAt := u.GetCreatedAt()
		user.EmailConfirmedAt = &createdAt
	}

	return user
}
