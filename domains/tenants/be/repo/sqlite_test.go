package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/persistence"
)

func newTestSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.EnsureSQLiteSchema(context.Background(), db))
	return NewSQLiteRepository(db)
}

func TestSQLiteRepositoryUpsertIsIdempotentPerIdentity(t *testing.T) {
	t.Parallel()

	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, service.Tenant{
		ScopeType: service.ScopeOrganization,
		ScopeName: "acme",
		Token:     "ghp_one",
		IsActive:  true,
	})
	require.NoError(t, err)
	require.NotEqual(t, "", first.ID.String())

	second, err := repo.Upsert(ctx, service.Tenant{
		ScopeType: service.ScopeOrganization,
		ScopeName: "acme",
		Token:     "ghp_two",
		IsActive:  true,
	})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "replacing the token keeps the original row")
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, "ghp_two", second.Token)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSQLiteRepositoryTeamRowsAreSeparate(t *testing.T) {
	t.Parallel()

	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, service.Tenant{ScopeType: service.ScopeOrganization, ScopeName: "acme", Token: "a", IsActive: true})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, service.Tenant{ScopeType: service.ScopeOrganization, ScopeName: "acme", TeamSlug: "platform", Token: "b", IsActive: true})
	require.NoError(t, err)

	footprint, err := repo.ListByScope(ctx, service.ScopeOrganization, "acme")
	require.NoError(t, err)
	require.Len(t, footprint, 2)

	got, err := repo.Get(ctx, service.Identity{ScopeType: service.ScopeOrganization, ScopeName: "acme", TeamSlug: "platform"})
	require.NoError(t, err)
	require.Equal(t, "platform", got.TeamSlug)
}

func TestSQLiteRepositoryDeactivate(t *testing.T) {
	t.Parallel()

	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, service.Tenant{ScopeType: service.ScopeEnterprise, ScopeName: "initech", Token: "x", IsActive: true})
	require.NoError(t, err)

	id := service.Identity{ScopeType: service.ScopeEnterprise, ScopeName: "initech"}
	require.NoError(t, repo.Deactivate(ctx, id))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "deactivation keeps the row")

	err = repo.Deactivate(ctx, service.Identity{ScopeType: service.ScopeOrganization, ScopeName: "ghost"})
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestSQLiteRepositoryGetUnknown(t *testing.T) {
	t.Parallel()

	repo := newTestSQLiteRepo(t)

	_, err := repo.Get(context.Background(), service.Identity{ScopeType: service.ScopeOrganization, ScopeName: "ghost"})
	require.ErrorIs(t, err, service.ErrNotFound)
}
