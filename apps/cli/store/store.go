// Package store opens the configured storage backend for CLI commands.
package store

import (
	"context"
	"fmt"

	copilotrepo "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/repo"
	copilotservice "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenantsrepo "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/repo"
	tenantsservice "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/persistence"
)

// Options select and locate the storage backend.
type Options struct {
	Backend     string // sqlite | postgres
	DatabaseURL string
	SQLitePath  string
}

// Stores bundles the opened repositories with their cleanup function.
type Stores struct {
	Tenants   tenantsservice.Repository
	Snapshots copilotservice.SnapshotStore
	Close     func()
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, opts Options) (*Stores, error) {
	switch opts.Backend {
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("database url is required for the postgres backend")
		}
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: opts.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("init postgres pool: %w", err)
		}
		if err := persistence.EnsurePostgresSchema(ctx, pool); err != nil {
			persistence.ClosePool(pool)
			return nil, err
		}
		return &Stores{
			Tenants:   tenantsrepo.NewPostgresRepository(pool),
			Snapshots: copilotrepo.NewPostgresStore(pool),
			Close:     func() { persistence.ClosePool(pool) },
		}, nil
	case "sqlite":
		db, err := persistence.OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := persistence.EnsureSQLiteSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Stores{
			Tenants:   tenantsrepo.NewSQLiteRepository(db),
			Snapshots: copilotrepo.NewSQLiteStore(db),
			Close:     func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("invalid backend %q (use sqlite or postgres)", opts.Backend)
	}
}
