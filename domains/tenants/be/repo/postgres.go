package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
)

const tenantColumns = `id, scope_type, scope_name, team_slug, token, is_active, created_at, updated_at`

// PostgresRepository implements the registry over pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository; assumes the schema has been
// bootstrapped.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at, scope_name`
	return r.queryTenants(ctx, query)
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE is_active = TRUE ORDER BY created_at, scope_name`
	return r.queryTenants(ctx, query)
}

func (r *PostgresRepository) Get(ctx context.Context, id service.Identity) (service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants
        WHERE scope_type = $1 AND scope_name = $2 AND team_slug = $3`
	return scanTenant(r.pool.QueryRow(ctx, query, string(id.ScopeType), id.ScopeName, id.TeamSlug))
}

func (r *PostgresRepository) ListByScope(ctx context.Context, scopeType service.ScopeType, scopeName string) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants
        WHERE scope_type = $1 AND scope_name = $2 ORDER BY team_slug`
	return r.queryTenants(ctx, query, string(scopeType), scopeName)
}

func (r *PostgresRepository) Upsert(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	now := time.Now().UTC()
	query := `INSERT INTO tenants (` + tenantColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (scope_type, scope_name, team_slug)
        DO UPDATE SET token = EXCLUDED.token, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
        RETURNING ` + tenantColumns

	row := r.pool.QueryRow(ctx, query,
		uuid.New(), string(t.ScopeType), t.ScopeName, t.TeamSlug, t.Token, t.IsActive, now,
	)
	return scanTenant(row)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id service.Identity) error {
	query := `UPDATE tenants SET is_active = FALSE, updated_at = $4
        WHERE scope_type = $1 AND scope_name = $2 AND team_slug = $3`
	tag, err := r.pool.Exec(ctx, query, string(id.ScopeType), id.ScopeName, id.TeamSlug, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) queryTenants(ctx context.Context, query string, args ...any) ([]service.Tenant, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []service.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(row pgx.Row) (service.Tenant, error) {
	var t service.Tenant
	var scopeType string
	if err := row.Scan(&t.ID, &scopeType, &t.ScopeName, &t.TeamSlug, &t.Token, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Tenant{}, service.ErrNotFound
		}
		return service.Tenant{}, err
	}
	t.ScopeType = service.ScopeType(scopeType)
	return t, nil
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
