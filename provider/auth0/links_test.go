package auth0

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteCreateIdentityLinks = `CREATE TABLE identity_links (
    id TEXT NOT NULL PRIMARY KEY,
    profile_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    subject TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    CONSTRAINT uq_identity_links_provider_subject UNIQUE (provider, subject)
);`

func setupLinkStore(t *testing.T) (*BunLinkStore, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	_, err = bunDB.Exec(sqliteCreateIdentityLinks)
	require.NoError(t, err)

	return NewLinkStore(bunDB), bunDB
}

func TestLinkStoreUpsertAndFind(t *testing.T) {
	store, _ := setupLinkStore(t)
	ctx := context.Background()

	profileID := uuid.New().String()
	profileID2 := uuid.New().String()

	err := store.Upsert(ctx, profileID, ProviderName, "auth0|user-123")
	require.NoError(t, err)

	found, err := store.FindProfileID(ctx, ProviderName, "auth0|user-123")
	require.NoError(t, err)
	assert.Equal(t, profileID, found)

	// re-linking the same subject moves it to the new profile
	err = store.Upsert(ctx, profileID2, ProviderName, "auth0|user-123")
	require.NoError(t, err)

	found, err = store.FindProfileID(ctx, ProviderName, "auth0|user-123")
	require.NoError(t, err)
	assert.Equal(t, profileID2, found)
}

func TestLinkStoreFindProfileIDNotFound(t *testing.T) {
	store, _ := setupLinkStore(t)

	_, err := store.FindProfileID(context.Background(), ProviderName, "auth0|missing")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

func TestLinkStoreFindProfileIDBlankArgs(t *testing.T) {
	store, _ := setupLinkStore(t)

	_, err := store.FindProfileID(context.Background(), "", "auth0|user-123")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestLinkStoreUpsertRejectsBadProfileID(t *testing.T) {
	store, _ := setupLinkStore(t)

	err := store.Upsert(context.Background(), "not-a-uuid", ProviderName, "auth0|user-123")
	require.Error(t, err)
}
