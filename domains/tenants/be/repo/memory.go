package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory registry suitable for tests and the
// memory storage backend.
type MemoryRepository struct {
	mu    sync.RWMutex
	byKey map[string]service.Tenant
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byKey: make(map[string]service.Tenant)}
}

func (r *MemoryRepository) ListAll(ctx context.Context) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(service.Tenant) bool { return true }), nil
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(t service.Tenant) bool { return t.IsActive }), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id service.Identity) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byKey[id.Key()]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) ListByScope(ctx context.Context, scopeType service.ScopeType, scopeName string) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(t service.Tenant) bool {
		return t.ScopeType == scopeType && t.ScopeName == scopeName
	}), nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := t.Key()
	if existing, ok := r.byKey[key]; ok {
		existing.Token = t.Token
		existing.IsActive = t.IsActive
		existing.UpdatedAt = now
		r.byKey[key] = existing
		return existing, nil
	}

	t.ID = uuid.New()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.byKey[key] = t
	return t, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, id service.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byKey[id.Key()]
	if !ok {
		return service.ErrNotFound
	}
	t.IsActive = false
	t.UpdatedAt = time.Now().UTC()
	r.byKey[id.Key()] = t
	return nil
}

func (r *MemoryRepository) collect(keep func(service.Tenant) bool) []service.Tenant {
	items := make([]service.Tenant, 0, len(r.byKey))
	for _, t := range r.byKey {
		if keep(t) {
			items = append(items, t)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Key() < items[j].Key()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
