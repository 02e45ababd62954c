package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/persistence"
)

func TestPostgresStoreIntegration(t *testing.T) {
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

	store := NewPostgresStore(pool)
	const tenantKey = "organization/acme"

	// Usage: overlapping days overwrite in place.
	err = store.ReplaceUsage(ctx, tenantKey, []service.UsageDay{
		{Day: "2024-06-01", TotalSuggestionsCount: 100, Breakdown: []service.UsageBreakdown{{Language: "go", Editor: "vscode"}}},
		{Day: "2024-06-02", TotalSuggestionsCount: 120},
	})
	require.NoError(t, err)
	err = store.ReplaceUsage(ctx, tenantKey, []service.UsageDay{
		{Day: "2024-06-02", TotalSuggestionsCount: 999},
	})
	require.NoError(t, err)

	days, err := store.QueryUsage(ctx, tenantKey, "", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "2024-06-02", days[0].Day)
	require.Equal(t, int64(999), days[0].TotalSuggestionsCount)
	require.Equal(t, "go", days[1].Breakdown[0].Language)

	// Half-open range filter.
	days, err = store.QueryUsage(ctx, tenantKey, "2024-06-01", "2024-06-02", 10, 0)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Equal(t, "2024-06-01", days[0].Day)

	// Seats: each save replaces the roster.
	err = store.ReplaceSeats(ctx, tenantKey, []service.SeatRecord{
		{Login: "alice", UserID: 1, PlanType: "business"},
		{Login: "bob", UserID: 2},
	})
	require.NoError(t, err)
	err = store.ReplaceSeats(ctx, tenantKey, []service.SeatRecord{
		{Login: "carol", UserID: 3},
	})
	require.NoError(t, err)

	seats, err := store.QuerySeats(ctx, tenantKey, 10, 0)
	require.NoError(t, err)
	require.Len(t, seats, 1)
	require.Equal(t, "carol", seats[0].Login)

	// Metrics: raw payload survives the round trip.
	payload := `{"date":"2024-06-01","total_active_users":12,"copilot_ide_chat":{"total_engaged_users":4}}`
	err = store.ReplaceMetrics(ctx, tenantKey, []service.MetricsDay{
		{Date: "2024-06-01", TotalActiveUsers: 12, TotalEngagedUsers: 7, Payload: []byte(payload)},
	})
	require.NoError(t, err)

	metricsDays, err := store.QueryMetrics(ctx, tenantKey, "", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, metricsDays, 1)
	require.JSONEq(t, payload, string(metricsDays[0].Payload))
}
