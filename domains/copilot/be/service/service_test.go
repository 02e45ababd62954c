package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/repo"
	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenants "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
)

type stubUpstream struct {
	usageFn   func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error)
	seatsFn   func(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error)
	metricsFn func(ctx context.Context, scopeType, scopeName, teamSlug, token, since, until string) ([]githubapi.MetricsDay, error)
}

func (u *stubUpstream) FetchUsage(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
	if u.usageFn == nil {
		return nil, nil
	}
	return u.usageFn(ctx, scopeType, scopeName, teamSlug, token)
}

func (u *stubUpstream) FetchSeats(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error) {
	if u.seatsFn == nil {
		return nil, nil
	}
	return u.seatsFn(ctx, scopeType, scopeName, token)
}

func (u *stubUpstream) FetchMetrics(ctx context.Context, scopeType, scopeName, teamSlug, token, since, until string) ([]githubapi.MetricsDay, error) {
	if u.metricsFn == nil {
		return nil, nil
	}
	return u.metricsFn(ctx, scopeType, scopeName, teamSlug, token, since, until)
}

func acme() tenants.Tenant {
	return tenants.Tenant{
		ScopeType: tenants.ScopeOrganization,
		ScopeName: "acme",
		Token:     "ghp_test",
		IsActive:  true,
	}
}

func usageDays(days ...string) []githubapi.UsageDay {
	out := make([]githubapi.UsageDay, 0, len(days))
	for i, day := range days {
		out = append(out, githubapi.UsageDay{
			Day:                   day,
			TotalSuggestionsCount: int64(100 + i),
			TotalAcceptancesCount: int64(40 + i),
			TotalActiveUsers:      int64(10 + i),
		})
	}
	return out
}

func seatFor(login string) githubapi.Seat {
	s := githubapi.Seat{PlanType: "business", CreatedAt: "2024-01-01T00:00:00Z"}
	s.Assignee.Login = login
	s.Assignee.ID = int64(len(login))
	return s
}

func TestUsageSaveOverwritesSameDay(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	upstream.usageFn = func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		require.Equal(t, "organization", scopeType)
		require.Equal(t, "acme", scopeName)
		return usageDays("2024-06-01", "2024-06-02"), nil
	}

	svc := factory.UsageService(acme())
	saved, err := svc.Save(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	// Second fetch covers an overlapping window with revised totals.
	upstream.usageFn = func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return []githubapi.UsageDay{
			{Day: "2024-06-02", TotalSuggestionsCount: 999},
			{Day: "2024-06-03", TotalSuggestionsCount: 300},
		}, nil
	}
	saved, err = svc.Save(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	days, err := svc.Query(ctx, service.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, days, 3, "overlapping days must overwrite, not duplicate")
	require.Equal(t, "2024-06-03", days[0].Day, "most recent day first")
	require.Equal(t, int64(999), days[1].TotalSuggestionsCount, "overlapping day carries the newer totals")
}

func TestUsageSaveEmptyUpstreamLeavesStore(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	upstream.usageFn = func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return usageDays("2024-06-01"), nil
	}
	svc := factory.UsageService(acme())
	_, err := svc.Save(ctx)
	require.NoError(t, err)

	upstream.usageFn = func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return nil, nil
	}
	saved, err := svc.Save(ctx)
	require.NoError(t, err)
	require.False(t, saved, "empty upstream is no-data, not an error")

	days, err := svc.Query(ctx, service.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, days, 1, "prior snapshot must survive an empty fetch")
}

func TestUsageSaveUpstreamError(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{usageFn: func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return nil, errors.New("502 bad gateway")
	}}
	factory := service.NewFactory(store, upstream)

	saved, err := factory.UsageService(acme()).Save(context.Background())
	require.Error(t, err)
	require.False(t, saved)
}

func TestUsageQueryHalfOpenRange(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{usageFn: func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return usageDays("2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04"), nil
	}}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	svc := factory.UsageService(acme())
	_, err := svc.Save(ctx)
	require.NoError(t, err)

	days, err := svc.Query(ctx, service.QueryOptions{Since: "2024-06-02", Until: "2024-06-04"})
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "2024-06-03", days[0].Day, "until day is excluded")
	require.Equal(t, "2024-06-02", days[1].Day, "since day is included")

	// since == until can never match.
	days, err = svc.Query(ctx, service.QueryOptions{Since: "2024-06-02", Until: "2024-06-02"})
	require.NoError(t, err)
	require.Empty(t, days)
	require.NotNil(t, days, "empty result is [], not null")
}

func TestUsageQueryPagination(t *testing.T) {
	t.Parallel()

	var fetched []githubapi.UsageDay
	for i := 1; i <= 7; i++ {
		fetched = append(fetched, githubapi.UsageDay{Day: fmt.Sprintf("2024-06-%02d", i)})
	}

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{usageFn: func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return fetched, nil
	}}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	svc := factory.UsageService(acme())
	_, err := svc.Save(ctx)
	require.NoError(t, err)

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		days, err := svc.Query(ctx, service.QueryOptions{Page: page, PerPage: 3})
		require.NoError(t, err)
		for _, d := range days {
			require.False(t, seen[d.Day], "day %s served twice", d.Day)
			seen[d.Day] = true
		}
	}
	require.Len(t, seen, 7, "pages together cover every day exactly once")

	days, err := svc.Query(ctx, service.QueryOptions{Page: 4, PerPage: 3})
	require.NoError(t, err)
	require.Empty(t, days, "page past the end is empty, not an error")
}

func TestSeatSaveReplacesRoster(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	upstream.seatsFn = func(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error) {
		return []githubapi.Seat{seatFor("alice"), seatFor("bob"), seatFor("carol")}, nil
	}
	svc := factory.SeatService(acme())
	saved, err := svc.Save(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	// bob's seat was revoked upstream.
	upstream.seatsFn = func(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error) {
		return []githubapi.Seat{seatFor("alice"), seatFor("carol")}, nil
	}
	_, err = svc.Save(ctx)
	require.NoError(t, err)

	seats, err := svc.GetSeatData(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, seats, 2, "a save replaces the roster wholesale")
	require.Equal(t, "alice", seats[0].Login)
	require.Equal(t, "carol", seats[1].Login)
}

func TestSeatSaveSkipsSeatsWithoutAssignee(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{seatsFn: func(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error) {
		return []githubapi.Seat{seatFor("alice"), {PlanType: "business"}}, nil
	}}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	svc := factory.SeatService(acme())
	saved, err := svc.Save(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	seats, err := svc.GetSeatData(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, seats, 1)
}

func TestMetricsSaveKeepsRawPayload(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	payload := []byte(`{"date":"2024-06-01","total_active_users":12,"copilot_ide_code_completions":{"languages":[{"name":"go"}]}}`)
	upstream := &stubUpstream{metricsFn: func(ctx context.Context, scopeType, scopeName, teamSlug, token, since, until string) ([]githubapi.MetricsDay, error) {
		return []githubapi.MetricsDay{{Date: "2024-06-01", TotalActiveUsers: 12, Payload: payload}}, nil
	}}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	svc := factory.MetricsService(acme())
	saved, err := svc.Save(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	days, err := svc.Query(ctx, service.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.JSONEq(t, string(payload), string(days[0].Payload))
}

func TestTenantsAreIsolated(t *testing.T) {
	t.Parallel()

	store := repo.NewMemoryStore()
	upstream := &stubUpstream{usageFn: func(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error) {
		return usageDays("2024-06-01"), nil
	}}
	factory := service.NewFactory(store, upstream)
	ctx := context.Background()

	_, err := factory.UsageService(acme()).Save(ctx)
	require.NoError(t, err)

	other := acme()
	other.ScopeName = "globex"
	days, err := factory.UsageService(other).Query(ctx, service.QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, days, "one tenant's snapshot must not leak into another's")
}
