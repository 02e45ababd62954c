package service

import (
	"context"
	"fmt"
	"sync"

	tenants "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
)

// QueryOptions restrict a snapshot query. Since/until are day strings
// (YYYY-MM-DD) forming a half-open range [since, until); pages are 1-indexed.
type QueryOptions struct {
	Since   string
	Until   string
	Page    int
	PerPage int
}

const defaultPerPage = 60

func (o QueryOptions) normalize() QueryOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage <= 0 {
		o.PerPage = defaultPerPage
	}
	return o
}

func (o QueryOptions) offset() int {
	return (o.Page - 1) * o.PerPage
}

// emptyRange reports whether the filter can never match: a defensive query
// treats since >= until as "no results" rather than an error.
func (o QueryOptions) emptyRange() bool {
	return o.Since != "" && o.Until != "" && o.Since >= o.Until
}

// UsageStore persists daily usage snapshots. ReplaceUsage must be atomic per
// tenant: a concurrent query sees either the prior or the new snapshot.
type UsageStore interface {
	ReplaceUsage(ctx context.Context, tenantKey string, days []UsageDay) error
	QueryUsage(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]UsageDay, error)
}

// SeatStore persists the seat roster; ReplaceSeats swaps the whole roster.
type SeatStore interface {
	ReplaceSeats(ctx context.Context, tenantKey string, seats []SeatRecord) error
	QuerySeats(ctx context.Context, tenantKey string, limit, offset int) ([]SeatRecord, error)
}

// MetricsStore persists daily metrics snapshots.
type MetricsStore interface {
	ReplaceMetrics(ctx context.Context, tenantKey string, days []MetricsDay) error
	QueryMetrics(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]MetricsDay, error)
}

// SnapshotStore is the full storage contract a backend must satisfy.
type SnapshotStore interface {
	UsageStore
	SeatStore
	MetricsStore
}

// Upstream is the provider surface the data services consume. Implemented by
// githubapi.Client.
type Upstream interface {
	FetchUsage(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]githubapi.UsageDay, error)
	FetchSeats(ctx context.Context, scopeType, scopeName, token string) ([]githubapi.Seat, error)
	FetchMetrics(ctx context.Context, scopeType, scopeName, teamSlug, token, since, until string) ([]githubapi.MetricsDay, error)
}

// Factory produces per-tenant data services. Construction is I/O-free; only
// the service operations touch the network or storage. The factory also owns
// the per-tenant-per-kind save locks so no two saves for the same tenant and
// kind interleave.
type Factory struct {
	store    SnapshotStore
	upstream Upstream

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFactory constructs a Factory with required dependencies.
func NewFactory(store SnapshotStore, upstream Upstream) *Factory {
	if store == nil {
		panic("snapshot store is required")
	}
	if upstream == nil {
		panic("upstream client is required")
	}
	return &Factory{store: store, upstream: upstream, locks: make(map[string]*sync.Mutex)}
}

func (f *Factory) lockFor(tenantKey, kind string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tenantKey + "#" + kind
	lock, ok := f.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[key] = lock
	}
	return lock
}

// UsageService returns the usage data service bound to the tenant's scope.
func (f *Factory) UsageService(t tenants.Tenant) *UsageService {
	return &UsageService{tenant: t, store: f.store, upstream: f.upstream, lock: f.lockFor(t.Key(), KindUsage)}
}

// SeatService returns the seat data service bound to the tenant's scope.
func (f *Factory) SeatService(t tenants.Tenant) *SeatService {
	return &SeatService{tenant: t, store: f.store, upstream: f.upstream, lock: f.lockFor(t.Key(), KindSeats)}
}

// MetricsService returns the metrics data service bound to the tenant's scope.
func (f *Factory) MetricsService(t tenants.Tenant) *MetricsService {
	return &MetricsService{tenant: t, store: f.store, upstream: f.upstream, lock: f.lockFor(t.Key(), KindMetrics)}
}

// UsageService fetches, persists and queries daily usage for one tenant.
type UsageService struct {
	tenant   tenants.Tenant
	store    UsageStore
	upstream Upstream
	lock     *sync.Mutex
}

// Save fetches the current usage series and overwrites the stored snapshot
// for each covered day. Returns false without error when upstream has no
// usable data.
func (s *UsageService) Save(ctx context.Context) (bool, error) {
	days, err := s.upstream.FetchUsage(ctx, string(s.tenant.ScopeType), s.tenant.ScopeName, s.tenant.TeamSlug, s.tenant.Token)
	if err != nil {
		return false, fmt.Errorf("fetch usage: %w", err)
	}
	if len(days) == 0 {
		return false, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.store.ReplaceUsage(ctx, s.tenant.Key(), usageFromUpstream(days)); err != nil {
		return false, fmt.Errorf("persist usage: %w", err)
	}
	return true, nil
}

// Query returns the persisted usage days for the tenant, most recent first.
func (s *UsageService) Query(ctx context.Context, opts QueryOptions) ([]UsageDay, error) {
	opts = opts.normalize()
	if opts.emptyRange() {
		return []UsageDay{}, nil
	}
	days, err := s.store.QueryUsage(ctx, s.tenant.Key(), opts.Since, opts.Until, opts.PerPage, opts.offset())
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []UsageDay{}
	}
	return days, nil
}

// SeatService fetches, persists and queries the seat roster for one tenant.
type SeatService struct {
	tenant   tenants.Tenant
	store    SeatStore
	upstream Upstream
	lock     *sync.Mutex
}

// Save fetches the full roster and replaces the stored one. An empty roster
// is reported as "no data" and leaves the prior roster in place.
func (s *SeatService) Save(ctx context.Context) (bool, error) {
	seats, err := s.upstream.FetchSeats(ctx, string(s.tenant.ScopeType), s.tenant.ScopeName, s.tenant.Token)
	if err != nil {
		return false, fmt.Errorf("fetch seats: %w", err)
	}
	records := seatsFromUpstream(seats)
	if len(records) == 0 {
		return false, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.store.ReplaceSeats(ctx, s.tenant.Key(), records); err != nil {
		return false, fmt.Errorf("persist seats: %w", err)
	}
	return true, nil
}

// GetSeatData returns one page of the current roster. Seat assignment is a
// point-in-time total, so there is no time filter.
func (s *SeatService) GetSeatData(ctx context.Context, page, perPage int) ([]SeatRecord, error) {
	opts := QueryOptions{Page: page, PerPage: perPage}.normalize()
	seats, err := s.store.QuerySeats(ctx, s.tenant.Key(), opts.PerPage, opts.offset())
	if err != nil {
		return nil, err
	}
	if seats == nil {
		seats = []SeatRecord{}
	}
	return seats, nil
}

// MetricsService fetches, persists and queries daily metrics for one tenant.
type MetricsService struct {
	tenant   tenants.Tenant
	store    MetricsStore
	upstream Upstream
	lock     *sync.Mutex
}

// Save fetches the full metrics series and overwrites the stored snapshot
// per day. Returns false without error when upstream has no usable data.
func (s *MetricsService) Save(ctx context.Context) (bool, error) {
	days, err := s.upstream.FetchMetrics(ctx, string(s.tenant.ScopeType), s.tenant.ScopeName, s.tenant.TeamSlug, s.tenant.Token, "", "")
	if err != nil {
		return false, fmt.Errorf("fetch metrics: %w", err)
	}
	if len(days) == 0 {
		return false, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.store.ReplaceMetrics(ctx, s.tenant.Key(), metricsFromUpstream(days)); err != nil {
		return false, fmt.Errorf("persist metrics: %w", err)
	}
	return true, nil
}

// Query returns the persisted metrics days for the tenant, most recent first.
func (s *MetricsService) Query(ctx context.Context, opts QueryOptions) ([]MetricsDay, error) {
	opts = opts.normalize()
	if opts.emptyRange() {
		return []MetricsDay{}, nil
	}
	days, err := s.store.QueryMetrics(ctx, s.tenant.Key(), opts.Since, opts.Until, opts.PerPage, opts.offset())
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []MetricsDay{}
	}
	return days, nil
}
