package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
)

// SQLiteRepository implements the registry over the file-backed sqlite store.
// Timestamps are stored as RFC3339 text.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository constructs a repository; assumes the schema has been
// bootstrapped.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	if db == nil {
		panic("sqlite db is required")
	}
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at, scope_name`
	return r.queryTenants(ctx, query)
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE is_active = 1 ORDER BY created_at, scope_name`
	return r.queryTenants(ctx, query)
}

func (r *SQLiteRepository) Get(ctx context.Context, id service.Identity) (service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants
        WHERE scope_type = ? AND scope_name = ? AND team_slug = ?`
	return scanSQLiteTenant(r.db.QueryRowContext(ctx, query, string(id.ScopeType), id.ScopeName, id.TeamSlug))
}

func (r *SQLiteRepository) ListByScope(ctx context.Context, scopeType service.ScopeType, scopeName string) ([]service.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants
        WHERE scope_type = ? AND scope_name = ? ORDER BY team_slug`
	return r.queryTenants(ctx, query, string(scopeType), scopeName)
}

func (r *SQLiteRepository) Upsert(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `INSERT INTO tenants (` + tenantColumns + `)
        VALUES (?,?,?,?,?,?,?,?)
        ON CONFLICT (scope_type, scope_name, team_slug)
        DO UPDATE SET token = excluded.token, is_active = excluded.is_active, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), string(t.ScopeType), t.ScopeName, t.TeamSlug, t.Token, boolToInt(t.IsActive), now, now,
	); err != nil {
		return service.Tenant{}, err
	}
	return r.Get(ctx, t.Identity())
}

func (r *SQLiteRepository) Deactivate(ctx context.Context, id service.Identity) error {
	query := `UPDATE tenants SET is_active = 0, updated_at = ?
        WHERE scope_type = ? AND scope_name = ? AND team_slug = ?`
	res, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), string(id.ScopeType), id.ScopeName, id.TeamSlug)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryTenants(ctx context.Context, query string, args ...any) ([]service.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []service.Tenant
	for rows.Next() {
		t, err := scanSQLiteTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteTenant(row sqlRow) (service.Tenant, error) {
	var t service.Tenant
	var id, scopeType, createdAt, updatedAt string
	var active int
	if err := row.Scan(&id, &scopeType, &t.ScopeName, &t.TeamSlug, &t.Token, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return service.Tenant{}, service.ErrNotFound
		}
		return service.Tenant{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return service.Tenant{}, err
	}
	t.ID = parsed
	t.ScopeType = service.ScopeType(scopeType)
	t.IsActive = active != 0
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return service.Tenant{}, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return service.Tenant{}, err
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance.
var _ service.Repository = (*SQLiteRepository)(nil)
