package session_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteCreateProfiles = `CREATE TABLE profiles (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    company_name TEXT,
    phone_number TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`

func setupProfilesRepo(t *testing.T) (session.Profiles, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateProfiles)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return session.NewProfilesRepository(bunDB), bunDB
}

func TestProfilesGetByUserIDAbsentRowIsNotAnError(t *testing.T) {
	repo, _ := setupProfilesRepo(t)

	profile, err := repo.GetByUserID(context.Background(), uuid.New().String())
	assert.NoError(t, err)
	assert.Nil(t, profile)
}

func TestProfilesCreateAndGetRoundTrip(t *testing.T) {
	repo, _ := setupProfilesRepo(t)
	ctx := context.Background()

	userID := uuid.New()
	created, err := repo.CreateProfile(ctx, &session.Profile{
		ID:          userID,
		Email:       "person@example.com",
		FirstName:   "First",
		LastName:    "Last",
		CompanyName: "Acme",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotNil(t, created.CreatedAt)

	found, err := repo.GetByUserID(ctx, userID.String())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "person@example.com", found.Email)
	assert.Equal(t, "First Last", found.FullName())
}

func TestProfilesNonUUIDUserIDMapsDeterministically(t *testing.T) {
	repo, _ := setupProfilesRepo(t)
	ctx := context.Background()

	providerID := "auth0|abc123"

	id, err := session.ProfileIDForUser(providerID)
	require.NoError(t, err)

	again, err := session.ProfileIDForUser(providerID)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = repo.CreateProfile(ctx, &session.Profile{
		ID:    id,
		Email: "person@example.com",
	})
	require.NoError(t, err)

	found, err := repo.GetByUserID(ctx, providerID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
}

func TestProfilesUpdateFieldsPartialUpdate(t *testing.T) {
	repo, _ := setupProfilesRepo(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := repo.CreateProfile(ctx, &session.Profile{
		ID:          userID,
		Email:       "person@example.com",
		FirstName:   "Old",
		LastName:    "Name",
		CompanyName: "Acme",
	})
	require.NoError(t, err)

	updated, err := repo.UpdateFields(ctx, userID.String(), session.ProfileUpdates{
		FirstName: "New",
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	// only the supplied field changes
	assert.Equal(t, "New", updated.FirstName)
	assert.Equal(t, "Name", updated.LastName)
	assert.Equal(t, "Acme", updated.CompanyName)
}

func TestProfilesUpdateFieldsNormalizesPhone(t *testing.T) {
	repo, _ := setupProfilesRepo(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := repo.CreateProfile(ctx, &session.Profile{
		ID:    userID,
		Email: "person@example.com",
	})
	require.NoError(t, err)

	updated, err := repo.UpdateFields(ctx, userID.String(), session.ProfileUpdates{
		Phone: "(212) 555-0123",
	})
	require.NoError(t, err)
	assert.Equal(t, "+12125550123", updated.Phone)
}

func TestProfilesUpdateFieldsRejectsInvalidPhone(t *testing.T) {
	repo, _ := setupProfilesRepo(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := repo.CreateProfile(ctx, &session.Profile{
		ID:    userID,
		Email: "person@example.com",
	})
	require.NoError(t, err)

	_, err = repo.UpdateFields(ctx, userID.String(), session.ProfileUpdates{
		Phone: "not-a-phone",
	})
	require.Error(t, err)
}

func TestProfilesUpdateFieldsMissingRow(t *testing.T) {
	repo, _ := setupProfilesRepo(t)

	_, err := repo.UpdateFields(context.Background(), uuid.New().String(), session.ProfileUpdates{
		FirstName: "New",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile not found")
}

func TestNormalizePhone(t *testing.T) {
	normalized, err := session.NormalizePhone("212-555-0123")
	require.NoError(t, err)
	assert.Equal(t, "+12125550123", normalized)

	normalized, err = session.NormalizePhone("+442071838750")
	require.NoError(t, err)
	assert.Equal(t, "+442071838750", normalized)

	_, err = session.NormalizePhone("123")
	assert.Error(t, err)
}

func TestProfileIDForUserUUIDPassThrough(t *testing.T) {
	id := uuid.New()
	got, err := session.ProfileIDForUser(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
