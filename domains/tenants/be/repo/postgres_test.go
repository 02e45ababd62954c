package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/persistence"
)

func TestPostgresRepositoryIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("copilot"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() {
		persistence.ClosePool(pool)
	})

	require.NoError(t, persistence.EnsurePostgresSchema(ctx, pool))

	repo := NewPostgresRepository(pool)

	first, err := repo.Upsert(ctx, service.Tenant{
		ScopeType: service.ScopeOrganization,
		ScopeName: "acme",
		Token:     "ghp_one",
		IsActive:  true,
	})
	require.NoError(t, err)
	require.True(t, first.IsActive)

	// Same identity with a new token replaces, never duplicates.
	second, err := repo.Upsert(ctx, service.Tenant{
		ScopeType: service.ScopeOrganization,
		ScopeName: "acme",
		Token:     "ghp_two",
		IsActive:  true,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "ghp_two", second.Token)

	// Team-scoped registration is its own row.
	_, err = repo.Upsert(ctx, service.Tenant{
		ScopeType: service.ScopeOrganization,
		ScopeName: "acme",
		TeamSlug:  "platform",
		Token:     "ghp_team",
		IsActive:  true,
	})
	require.NoError(t, err)

	footprint, err := repo.ListByScope(ctx, service.ScopeOrganization, "acme")
	require.NoError(t, err)
	require.Len(t, footprint, 2)

	id := service.Identity{ScopeType: service.ScopeOrganization, ScopeName: "acme", TeamSlug: "platform"}
	require.NoError(t, repo.Deactivate(ctx, id))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Empty(t, active[0].TeamSlug)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "deactivation keeps the row")

	_, err = repo.Get(ctx, service.Identity{ScopeType: service.ScopeEnterprise, ScopeName: "ghost"})
	require.ErrorIs(t, err, service.ErrNotFound)

	err = repo.Deactivate(ctx, service.Identity{ScopeType: service.ScopeEnterprise, ScopeName: "ghost"})
	require.ErrorIs(t, err, service.ErrNotFound)
}
