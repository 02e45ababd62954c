package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema DDL for both supported engines. Unique keys on the identity triple
// and on (tenant_key, day) / (tenant_key, login) are what make repeated saves
// an overwrite instead of an append.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tenants (
    id UUID PRIMARY KEY,
    scope_type TEXT NOT NULL,
    scope_name TEXT NOT NULL,
    team_slug TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (scope_type, scope_name, team_slug)
);

CREATE TABLE IF NOT EXISTS usage_days (
    tenant_key TEXT NOT NULL,
    day TEXT NOT NULL,
    total_suggestions_count BIGINT NOT NULL DEFAULT 0,
    total_acceptances_count BIGINT NOT NULL DEFAULT 0,
    total_lines_suggested BIGINT NOT NULL DEFAULT 0,
    total_lines_accepted BIGINT NOT NULL DEFAULT 0,
    total_active_users BIGINT NOT NULL DEFAULT 0,
    total_chat_acceptances BIGINT NOT NULL DEFAULT 0,
    total_chat_turns BIGINT NOT NULL DEFAULT 0,
    total_active_chat_users BIGINT NOT NULL DEFAULT 0,
    breakdown JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (tenant_key, day)
);

CREATE TABLE IF NOT EXISTS seats (
    tenant_key TEXT NOT NULL,
    login TEXT NOT NULL,
    user_id BIGINT NOT NULL DEFAULT 0,
    assigning_team TEXT NOT NULL DEFAULT '',
    plan_type TEXT NOT NULL DEFAULT '',
    pending_cancellation_date TEXT NOT NULL DEFAULT '',
    last_activity_at TEXT NOT NULL DEFAULT '',
    last_activity_editor TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (tenant_key, login)
);

CREATE TABLE IF NOT EXISTS metrics_days (
    tenant_key TEXT NOT NULL,
    day TEXT NOT NULL,
    total_active_users BIGINT NOT NULL DEFAULT 0,
    total_engaged_users BIGINT NOT NULL DEFAULT 0,
    payload JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (tenant_key, day)
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    scope_type TEXT NOT NULL,
    scope_name TEXT NOT NULL,
    team_slug TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (scope_type, scope_name, team_slug)
);

CREATE TABLE IF NOT EXISTS usage_days (
    tenant_key TEXT NOT NULL,
    day TEXT NOT NULL,
    total_suggestions_count INTEGER NOT NULL DEFAULT 0,
    total_acceptances_count INTEGER NOT NULL DEFAULT 0,
    total_lines_suggested INTEGER NOT NULL DEFAULT 0,
    total_lines_accepted INTEGER NOT NULL DEFAULT 0,
    total_active_users INTEGER NOT NULL DEFAULT 0,
    total_chat_acceptances INTEGER NOT NULL DEFAULT 0,
    total_chat_turns INTEGER NOT NULL DEFAULT 0,
    total_active_chat_users INTEGER NOT NULL DEFAULT 0,
    breakdown TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (tenant_key, day)
);

CREATE TABLE IF NOT EXISTS seats (
    tenant_key TEXT NOT NULL,
    login TEXT NOT NULL,
    user_id INTEGER NOT NULL DEFAULT 0,
    assigning_team TEXT NOT NULL DEFAULT '',
    plan_type TEXT NOT NULL DEFAULT '',
    pending_cancellation_date TEXT NOT NULL DEFAULT '',
    last_activity_at TEXT NOT NULL DEFAULT '',
    last_activity_editor TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (tenant_key, login)
);

CREATE TABLE IF NOT EXISTS metrics_days (
    tenant_key TEXT NOT NULL,
    day TEXT NOT NULL,
    total_active_users INTEGER NOT NULL DEFAULT 0,
    total_engaged_users INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (tenant_key, day)
);
`

// EnsurePostgresSchema applies the schema DDL, statement by statement.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range splitStatements(postgresSchema) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// EnsureSQLiteSchema applies the schema DDL to the sqlite database.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(sqliteSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

func splitStatements(schema string) []string {
	raw := strings.Split(schema, ";")
	statements := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		statements = append(statements, s)
	}
	return statements
}
