package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is the region used to parse phone numbers that carry no
// international prefix.
var DefaultPhoneRegion = "US"

// Profiles is the application-owned profile table keyed 1:1 by user id.
// GetByUserID distinguishes "no matching row" (nil, nil) from every other
// backend failure.
type Profiles interface {
	repository.Repository[*Profile]

	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, record *Profile) (*Profile, error)
	CreateProfileTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	UpdateFields(ctx context.Context, userID string, updates ProfileUpdates) (*Profile, error)
	UpdateFieldsTx(ctx context.Context, tx bun.IDB, userID string, updates ProfileUpdates) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *profiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID string) (*Profile, error) {
	id, err := ProfileIDForUser(userID)
	if err != nil {
		return nil, err
	}

	record := &Profile{}
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		// a missing row is a documented non-error outcome
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) CreateProfile(ctx context.Context, record *Profile) (*Profile, error) {
	return r.CreateProfileTx(ctx, r.db, record)
}

func (r *profiles) CreateProfileTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	prepareProfileDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *profiles) UpdateFields(ctx context.Context, userID string, updates ProfileUpdates) (*Profile, error) {
	return r.UpdateFieldsTx(ctx, r.db, userID, updates)
}

func (r *profiles) UpdateFieldsTx(ctx context.Context, tx bun.IDB, userID string, updates ProfileUpdates) (*Profile, error) {
	id, err := ProfileIDForUser(userID)
	if err != nil {
		return nil, err
	}

	if updates.Phone != "" {
		phone, err := NormalizePhone(updates.Phone)
		if err != nil {
			return nil, err
		}
		updates.Phone = phone
	}

	q := tx.NewUpdate().
		Model((*Profile)(nil)).
		Where("?TableAlias.id = ?", id).
		Set("updated_at = ?", time.Now())

	if updates.FirstName != "" {
		q = q.Set("first_name = ?", updates.FirstName)
	}
	if updates.LastName != "" {
		q = q.Set("last_name = ?", updates.LastName)
	}
	if updates.CompanyName != "" {
		q = q.Set("company_name = ?", updates.CompanyName)
	}
	if updates.Phone != "" {
		q = q.Set("phone_number = ?", updates.Phone)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, ErrProfileNotFound.WithMetadata(map[string]any{
			"user_id": userID,
		})
	}

	return r.GetByUserIDTx(ctx, tx, userID)
}

func prepareProfileDefaults(record *Profile) {
	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

// ProfileIDForUser maps a provider user id to the profile primary key.
// Provider ids are UUIDs in the common case; anything else gets a
// deterministic hash-derived UUID so the same identifier always lands on the
// same row.
func ProfileIDForUser(userID string) (uuid.UUID, error) {
	if id, err := uuid.Parse(userID); err == nil {
		return id, nil
	}

	id, err := hashid.NewUUID(userID)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not derive profile id")
	}

	return id, nil
}

// NormalizePhone parses and formats a phone number as E.164.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"phone": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
