package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
)

// SQLiteStore implements the snapshot store over the file-backed sqlite
// database. Replace* operations run in a transaction for atomic swaps.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a store; assumes the schema has been
// bootstrapped.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	if db == nil {
		panic("sqlite db is required")
	}
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ReplaceUsage(ctx context.Context, tenantKey string, days []service.UsageDay) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO usage_days (
            tenant_key, day, total_suggestions_count, total_acceptances_count,
            total_lines_suggested, total_lines_accepted, total_active_users,
            total_chat_acceptances, total_chat_turns, total_active_chat_users, breakdown
        ) VALUES (?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (tenant_key, day) DO UPDATE SET
            total_suggestions_count = excluded.total_suggestions_count,
            total_acceptances_count = excluded.total_acceptances_count,
            total_lines_suggested = excluded.total_lines_suggested,
            total_lines_accepted = excluded.total_lines_accepted,
            total_active_users = excluded.total_active_users,
            total_chat_acceptances = excluded.total_chat_acceptances,
            total_chat_turns = excluded.total_chat_turns,
            total_active_chat_users = excluded.total_active_chat_users,
            breakdown = excluded.breakdown`

		for _, d := range days {
			breakdown, err := json.Marshal(d.Breakdown)
			if err != nil {
				return fmt.Errorf("marshal breakdown: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query,
				tenantKey, d.Day, d.TotalSuggestionsCount, d.TotalAcceptancesCount,
				d.TotalLinesSuggested, d.TotalLinesAccepted, d.TotalActiveUsers,
				d.TotalChatAcceptances, d.TotalChatTurns, d.TotalActiveChatUsers, string(breakdown),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) QueryUsage(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.UsageDay, error) {
	query, args := sqliteRangeQuery(`SELECT day, total_suggestions_count, total_acceptances_count,
        total_lines_suggested, total_lines_accepted, total_active_users,
        total_chat_acceptances, total_chat_turns, total_active_chat_users, breakdown
        FROM usage_days`, tenantKey, since, until, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []service.UsageDay
	for rows.Next() {
		var d service.UsageDay
		var breakdown string
		if err := rows.Scan(&d.Day, &d.TotalSuggestionsCount, &d.TotalAcceptancesCount,
			&d.TotalLinesSuggested, &d.TotalLinesAccepted, &d.TotalActiveUsers,
			&d.TotalChatAcceptances, &d.TotalChatTurns, &d.TotalActiveChatUsers, &breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(breakdown), &d.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLiteStore) ReplaceSeats(ctx context.Context, tenantKey string, seats []service.SeatRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM seats WHERE tenant_key = ?`, tenantKey); err != nil {
			return err
		}
		query := `INSERT INTO seats (
            tenant_key, login, user_id, assigning_team, plan_type,
            pending_cancellation_date, last_activity_at, last_activity_editor, created_at, updated_at
        ) VALUES (?,?,?,?,?,?,?,?,?,?)`
		for _, seat := range seats {
			if _, err := tx.ExecContext(ctx, query,
				tenantKey, seat.Login, seat.UserID, seat.AssigningTeam, seat.PlanType,
				seat.PendingCancellationDate, seat.LastActivityAt, seat.LastActivityEditor,
				seat.CreatedAt, seat.UpdatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) QuerySeats(ctx context.Context, tenantKey string, limit, offset int) ([]service.SeatRecord, error) {
	query := `SELECT login, user_id, assigning_team, plan_type, pending_cancellation_date,
        last_activity_at, last_activity_editor, created_at, updated_at
        FROM seats WHERE tenant_key = ?
        ORDER BY login
        LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, tenantKey, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []service.SeatRecord
	for rows.Next() {
		var seat service.SeatRecord
		if err := rows.Scan(&seat.Login, &seat.UserID, &seat.AssigningTeam, &seat.PlanType,
			&seat.PendingCancellationDate, &seat.LastActivityAt, &seat.LastActivityEditor,
			&seat.CreatedAt, &seat.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

func (s *SQLiteStore) ReplaceMetrics(ctx context.Context, tenantKey string, days []service.MetricsDay) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO metrics_days (tenant_key, day, total_active_users, total_engaged_users, payload)
        VALUES (?,?,?,?,?)
        ON CONFLICT (tenant_key, day) DO UPDATE SET
            total_active_users = excluded.total_active_users,
            total_engaged_users = excluded.total_engaged_users,
            payload = excluded.payload`
		for _, d := range days {
			payload := string(d.Payload)
			if payload == "" {
				payload = "{}"
			}
			if _, err := tx.ExecContext(ctx, query, tenantKey, d.Date, d.TotalActiveUsers, d.TotalEngagedUsers, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) QueryMetrics(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.MetricsDay, error) {
	query, args := sqliteRangeQuery(`SELECT day, total_active_users, total_engaged_users, payload
        FROM metrics_days`, tenantKey, since, until, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []service.MetricsDay
	for rows.Next() {
		var d service.MetricsDay
		var payload string
		if err := rows.Scan(&d.Date, &d.TotalActiveUsers, &d.TotalEngagedUsers, &payload); err != nil {
			return nil, err
		}
		d.Payload = []byte(payload)
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func sqliteRangeQuery(base, tenantKey, since, until string, limit, offset int) (string, []any) {
	query := base + ` WHERE tenant_key = ?`
	args := []any{tenantKey}
	if since != "" {
		query += " AND day >= ?"
		args = append(args, since)
	}
	if until != "" {
		query += " AND day < ?"
		args = append(args, until)
	}
	query += " ORDER BY day DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return query, args
}

// Ensure interface compliance.
var _ service.SnapshotStore = (*SQLiteStore)(nil)
