package auth0

import (
	"context"
	"fmt"
	"strings"

	"github.com/auth0/go-auth0/management"
	"github.com/goliatone/go-session"
	"github.com/google/uuid"
)

// ProfileMapper maps an Auth0 management user into a local profile.
type ProfileMapper func(ctx context.Context, user *management.User) (*session.Profile, error)

// SyncerConfig configures the profile syncer.
type SyncerConfig struct {
	Profiles session.ProfileManager
	Links    LinkStore
	Provider string
	Mapper   ProfileMapper
}

// Syncer upserts Auth0 users into the local profile table and records the
// subject to profile mapping in the link store.
type Syncer struct {
	profiles session.ProfileManager
	links    LinkStore
	provider string
	mapper   ProfileMapper
}

// NewSyncer creates a profile syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		provider = ProviderName
	}

	mapper := cfg.Mapper
	if mapper == nil {
		mapper = DefaultProfileMapper
	}

	return &Syncer{
		profiles: cfg.Profiles,
		links:    cfg.Links,
		provider: provider,
		mapper:   mapper,
	}
}

// SyncUser upserts the Auth0 user into the local profile store.
func (s *Syncer) SyncUser(ctx context.Context, user *management.User) (*session.Profile, error) {
	if s == nil || s.profiles == nil {
		return nil, fmt.Errorf("auth0 sync: profile manager is required")
	}
	if user == nil {
		return nil, fmt.Errorf("auth0 sync: user is required")
	}

	subject := user.GetID()
	if subject == "" {
		return nil, fmt.Errorf("auth0 sync: user has no identifier")
	}

	repo := s.profiles.Profiles()

	existing, err := repo.GetByUserID(ctx, subject)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		mapped, err := s.mapper(ctx, user)
		if err != nil {
			return nil, err
		}
		if mapped == nil {
			return nil, fmt.Errorf("auth0 sync: profile mapper returned nil")
		}

		if mapped.ID == uuid.Nil {
			id, err := session.ProfileIDForUser(subject)
			if err != nil {
				return nil, err
			}
			mapped.ID = id
		}

		created, err := repo.CreateProfile(ctx, mapped)
		if err != nil {
			return nil, err
		}

		s.recordLink(ctx, created, subject)
		return created, nil
	}

	mapped, err := s.mapper(ctx, user)
	if err != nil {
		return nil, err
	}

	updates := session.ProfileUpdates{
		FirstName:   mapped.FirstName,
		LastName:    mapped.LastName,
		CompanyName: mapped.CompanyName,
		Phone:       mapped.Phone,
	}
	if updates.IsZero() {
		s.recordLink(ctx, existing, subject)
		return existing, nil
	}

	updated, err := repo.UpdateFields(ctx, subject, updates)
	if err != nil {
		return nil, err
	}

	s.recordLink(ctx, updated, subject)
	return updated, nil
}

func (s *Syncer) recordLink(ctx context.Context, profile *session.Profile, subject string) {
	if s.links == nil || profile == nil {
		return
	}
	_ = s.links.Upsert(ctx, profile.ID.String(), s.provider, subject)
}

// DefaultProfileMapper provides a baseline Auth0 to profile mapping.
func DefaultProfileMapper(ctx context.Context, user *management.User) (*session.Profile, error) {
	if user == nil {
		return nil, fmt.Errorf("auth0 sync: user is required")
	}

	firstName, lastName := splitName(user.GetName())
	if firstName == "" && user.GetNickname() != "" {
		firstName = user.GetNickname()
	}

	profile := &session.Profile{
		Email:     user.GetEmail(),
		FirstName: firstName,
		LastName:  lastName,
	}

	if user.AppMetadata != nil {
		if company, ok := (*user.AppMetadata)["company_name"].(string); ok {
			profile.CompanyName = company
		}
	}

	return profile, nil
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
