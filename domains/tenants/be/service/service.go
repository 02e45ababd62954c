package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the registry layer.
var (
	ErrNotFound          = errors.New("tenant not found")
	ErrInvalidScope      = errors.New("invalid tenant scope")
	ErrInvalidCredential = errors.New("invalid credential")
)

// ScopeType identifies the upstream entity a tenant's data belongs to.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeEnterprise   ScopeType = "enterprise"
)

// ParseScopeType validates and normalizes a scope type string.
func ParseScopeType(s string) (ScopeType, error) {
	switch ScopeType(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeOrganization:
		return ScopeOrganization, nil
	case ScopeEnterprise:
		return ScopeEnterprise, nil
	default:
		return "", fmt.Errorf("%w: unknown scope type %q", ErrInvalidScope, s)
	}
}

// Identity is the unique key of a tenant registration. The token is mutable
// metadata and deliberately not part of it.
type Identity struct {
	ScopeType ScopeType
	ScopeName string
	TeamSlug  string
}

// Key renders the identity as the stable string the snapshot stores use to
// partition data per tenant.
func (id Identity) Key() string {
	key := string(id.ScopeType) + "/" + id.ScopeName
	if id.TeamSlug != "" {
		key += "/team/" + id.TeamSlug
	}
	return key
}

// Tenant represents one registered scope plus its upstream credential.
type Tenant struct {
	ID        uuid.UUID
	ScopeType ScopeType
	ScopeName string
	TeamSlug  string
	Token     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the tenant's registry key.
func (t Tenant) Identity() Identity {
	return Identity{ScopeType: t.ScopeType, ScopeName: t.ScopeName, TeamSlug: t.TeamSlug}
}

// Key is shorthand for Identity().Key().
func (t Tenant) Key() string {
	return t.Identity().Key()
}

// Verifier probes the upstream provider to confirm a scope/token pair is
// usable. Implemented by the GitHub API client.
type Verifier interface {
	CheckScope(ctx context.Context, scopeType, scopeName, teamSlug, token string) error
}

// Repository abstracts the durable tenant registry. Implementations must keep
// individual Upsert/Deactivate calls serializable.
type Repository interface {
	ListAll(ctx context.Context) ([]Tenant, error)
	ListActive(ctx context.Context) ([]Tenant, error)
	Get(ctx context.Context, id Identity) (Tenant, error)
	ListByScope(ctx context.Context, scopeType ScopeType, scopeName string) ([]Tenant, error)
	Upsert(ctx context.Context, t Tenant) (Tenant, error)
	Deactivate(ctx context.Context, id Identity) error
}

// Registry owns tenant registration, validation and removal.
type Registry struct {
	repo     Repository
	verifier Verifier
}

// NewRegistry constructs a Registry with required dependencies.
func NewRegistry(repo Repository, verifier Verifier) *Registry {
	if repo == nil {
		panic("tenant repository is required")
	}
	if verifier == nil {
		panic("verifier is required")
	}
	return &Registry{repo: repo, verifier: verifier}
}

// Validate performs the read-only upstream liveness probe for the tenant.
// All provider-side failures collapse into ErrInvalidCredential: callers get
// no distinction between a bad token and a transient network failure.
func (r *Registry) Validate(ctx context.Context, t Tenant) error {
	if err := validateFields(t); err != nil {
		return err
	}
	if err := r.verifier.CheckScope(ctx, string(t.ScopeType), t.ScopeName, t.TeamSlug, t.Token); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return nil
}

// Register validates the tenant upstream and upserts it. A registration for
// an existing identity replaces the token/active flag, never duplicates.
func (r *Registry) Register(ctx context.Context, t Tenant) (Tenant, error) {
	t = normalize(t)
	if err := r.Validate(ctx, t); err != nil {
		return Tenant{}, err
	}
	return r.repo.Upsert(ctx, t)
}

// Upsert persists an already-validated tenant. The read path uses it for
// auto-persistence after its own Validate call.
func (r *Registry) Upsert(ctx context.Context, t Tenant) (Tenant, error) {
	t = normalize(t)
	if err := validateFields(t); err != nil {
		return Tenant{}, err
	}
	return r.repo.Upsert(ctx, t)
}

// Remove deactivates registrations. With a team slug the removal is scoped to
// that team's record, leaving sibling teams and the scope-wide registration
// untouched; without one the whole footprint of the scope is deactivated.
// The caller's token is probed upstream first so an unauthenticated caller
// cannot deactivate someone else's tenant.
func (r *Registry) Remove(ctx context.Context, id Identity, token string) error {
	probe := Tenant{ScopeType: id.ScopeType, ScopeName: id.ScopeName, TeamSlug: id.TeamSlug, Token: token}
	if err := r.Validate(ctx, normalize(probe)); err != nil {
		return err
	}

	if id.TeamSlug != "" {
		if _, err := r.repo.Get(ctx, id); err != nil {
			return err
		}
		return r.repo.Deactivate(ctx, id)
	}

	footprint, err := r.repo.ListByScope(ctx, id.ScopeType, id.ScopeName)
	if err != nil {
		return err
	}
	if len(footprint) == 0 {
		return ErrNotFound
	}
	for _, t := range footprint {
		if err := r.repo.Deactivate(ctx, t.Identity()); err != nil {
			return err
		}
	}
	return nil
}

// ListActive returns tenants eligible for syncing.
func (r *Registry) ListActive(ctx context.Context) ([]Tenant, error) {
	return r.repo.ListActive(ctx)
}

// ListAll returns every registration including deactivated ones.
func (r *Registry) ListAll(ctx context.Context) ([]Tenant, error) {
	return r.repo.ListAll(ctx)
}

func normalize(t Tenant) Tenant {
	t.ScopeName = strings.TrimSpace(t.ScopeName)
	t.TeamSlug = strings.TrimSpace(t.TeamSlug)
	t.Token = strings.TrimSpace(t.Token)
	return t
}

func validateFields(t Tenant) error {
	if t.ScopeType != ScopeOrganization && t.ScopeType != ScopeEnterprise {
		return fmt.Errorf("%w: scope type must be organization or enterprise", ErrInvalidScope)
	}
	if t.ScopeName == "" {
		return fmt.Errorf("%w: scope name is required", ErrInvalidScope)
	}
	if t.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidCredential)
	}
	return nil
}
