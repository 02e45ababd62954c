package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
)

// MemoryStore keeps snapshots in process memory. Used by tests and the
// memory storage backend.
type MemoryStore struct {
	mu      sync.RWMutex
	usage   map[string]map[string]service.UsageDay
	seats   map[string][]service.SeatRecord
	metrics map[string]map[string]service.MetricsDay
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage:   make(map[string]map[string]service.UsageDay),
		seats:   make(map[string][]service.SeatRecord),
		metrics: make(map[string]map[string]service.MetricsDay),
	}
}

func (s *MemoryStore) ReplaceUsage(ctx context.Context, tenantKey string, days []service.UsageDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.usage[tenantKey]
	if !ok {
		bucket = make(map[string]service.UsageDay, len(days))
		s.usage[tenantKey] = bucket
	}
	for _, d := range days {
		bucket[d.Day] = d
	}
	return nil
}

func (s *MemoryStore) QueryUsage(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.UsageDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var days []service.UsageDay
	for day, d := range s.usage[tenantKey] {
		if inRange(day, since, until) {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day > days[j].Day })
	return pageUsage(days, limit, offset), nil
}

func (s *MemoryStore) ReplaceSeats(ctx context.Context, tenantKey string, seats []service.SeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster := make([]service.SeatRecord, len(seats))
	copy(roster, seats)
	sort.Slice(roster, func(i, j int) bool { return roster[i].Login < roster[j].Login })
	s.seats[tenantKey] = roster
	return nil
}

func (s *MemoryStore) QuerySeats(ctx context.Context, tenantKey string, limit, offset int) ([]service.SeatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roster := s.seats[tenantKey]
	if offset >= len(roster) {
		return nil, nil
	}
	end := offset + limit
	if end > len(roster) {
		end = len(roster)
	}
	out := make([]service.SeatRecord, end-offset)
	copy(out, roster[offset:end])
	return out, nil
}

func (s *MemoryStore) ReplaceMetrics(ctx context.Context, tenantKey string, days []service.MetricsDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.metrics[tenantKey]
	if !ok {
		bucket = make(map[string]service.MetricsDay, len(days))
		s.metrics[tenantKey] = bucket
	}
	for _, d := range days {
		bucket[d.Date] = d
	}
	return nil
}

func (s *MemoryStore) QueryMetrics(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.MetricsDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var days []service.MetricsDay
	for day, d := range s.metrics[tenantKey] {
		if inRange(day, since, until) {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	return pageMetrics(days, limit, offset), nil
}

// inRange applies the half-open [since, until) day filter; ISO day strings
// compare correctly as plain strings.
func inRange(day, since, until string) bool {
	if since != "" && day < since {
		return false
	}
	if until != "" && day >= until {
		return false
	}
	return true
}

func pageUsage(days []service.UsageDay, limit, offset int) []service.UsageDay {
	if offset >= len(days) {
		return nil
	}
	end := offset + limit
	if end > len(days) {
		end = len(days)
	}
	return days[offset:end]
}

func pageMetrics(days []service.MetricsDay, limit, offset int) []service.MetricsDay {
	if offset >= len(days) {
		return nil
	}
	end := offset + limit
	if end > len(days) {
		end = len(days)
	}
	return days[offset:end]
}

// Ensure interface compliance.
var _ service.SnapshotStore = (*MemoryStore)(nil)
