//go:build integration

package access

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/storage"
)

// setupPostgres starts a PostgreSQL container and applies every migration
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("trialsite_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.Driver = storage.DriverPostgres
	cfg.DSN = dsn
	db, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = storage.Migrate(ctx, db, storage.DialectPostgres, hierarchy.Migrations(), grants.Migrations())
	require.NoError(t, err)
	return db
}

func TestPostgres_ResolutionAndFiltering(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	index := hierarchy.NewSQLIndex(db, storage.DialectPostgres)
	store := grants.NewSQLStore(db)
	authz := NewAuthorizer(store, hierarchy.NewCachedIndex(index, hierarchy.DefaultCacheConfig()))
	catalog := NewCatalog(index, authz)

	site, err := catalog.CreateFolder(ctx, admin, hierarchy.Folder{Name: "Site"})
	require.NoError(t, err)
	amendments, err := catalog.CreateFolder(ctx, admin, hierarchy.Folder{Name: "Amendments", ParentID: &site.ID})
	require.NoError(t, err)

	protocol, err := catalog.CreateDocument(ctx, doctor, hierarchy.Document{Title: "Protocol", Type: hierarchy.TypeContract, FolderID: &site.ID})
	require.NoError(t, err)
	amendment, err := catalog.CreateDocument(ctx, doctor, hierarchy.Document{Title: "Amendment 1", Type: hierarchy.TypeReport, FolderID: &amendments.ID})
	require.NoError(t, err)

	_, err = authz.GrantPermission(ctx, admin, grants.New(grants.OnFolder(site.ID), grants.ForRole(auth.RoleAuditor), domain.LevelRead))
	require.NoError(t, err)
	g, err := authz.GrantPermission(ctx, admin, grants.New(grants.OnDocument(amendment.ID), grants.ForUser(user7.ID), domain.LevelWrite))
	require.NoError(t, err)

	ok, err := authz.CanRead(ctx, auditor, protocol.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// folder grants reach only the documents directly inside the folder
	ok, err = authz.CanRead(ctx, auditor, amendment.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = authz.CanWrite(ctx, user7, amendment.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	docs, err := catalog.ListDocuments(ctx, user7, hierarchy.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{amendment.ID}, docIDs(docs))

	require.NoError(t, authz.RevokePermission(ctx, admin, g.ID))
	ok, err = authz.CanRead(ctx, user7, amendment.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	err = authz.RevokePermission(ctx, admin, g.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPostgres_FolderCycleRejected(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	index := hierarchy.NewSQLIndex(db, storage.DialectPostgres)

	a, err := index.CreateFolder(ctx, hierarchy.Folder{Name: "A"})
	require.NoError(t, err)
	b, err := index.CreateFolder(ctx, hierarchy.Folder{Name: "B", ParentID: &a.ID})
	require.NoError(t, err)

	err = index.MoveFolder(ctx, a.ID, &b.ID)
	assert.True(t, errors.Is(err, domain.ErrInvariant))
}

func TestPostgres_DeleteFolderRemovesItsGrants(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	index := hierarchy.NewSQLIndex(db, storage.DialectPostgres)
	store := grants.NewSQLStore(db)
	catalog := NewCatalog(index, NewAuthorizer(store, index))

	f, err := catalog.CreateFolder(ctx, admin, hierarchy.Folder{Name: "Scratch"})
	require.NoError(t, err)
	_, err = store.Create(ctx, grants.New(grants.OnFolder(f.ID), grants.ForRole(auth.RoleUser), domain.LevelRead))
	require.NoError(t, err)

	require.NoError(t, catalog.DeleteFolder(ctx, admin, f.ID))
	left, err := store.FindByFolder(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}
