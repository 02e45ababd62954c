package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
)

// PostgresStore implements the snapshot store over pgxpool. Every Replace*
// runs in a single transaction so a concurrent query never observes a
// half-written snapshot.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store; assumes the schema has been
// bootstrapped.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ReplaceUsage(ctx context.Context, tenantKey string, days []service.UsageDay) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		query := `INSERT INTO usage_days (
            tenant_key, day, total_suggestions_count, total_acceptances_count,
            total_lines_suggested, total_lines_accepted, total_active_users,
            total_chat_acceptances, total_chat_turns, total_active_chat_users, breakdown
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (tenant_key, day) DO UPDATE SET
            total_suggestions_count = EXCLUDED.total_suggestions_count,
            total_acceptances_count = EXCLUDED.total_acceptances_count,
            total_lines_suggested = EXCLUDED.total_lines_suggested,
            total_lines_accepted = EXCLUDED.total_lines_accepted,
            total_active_users = EXCLUDED.total_active_users,
            total_chat_acceptances = EXCLUDED.total_chat_acceptances,
            total_chat_turns = EXCLUDED.total_chat_turns,
            total_active_chat_users = EXCLUDED.total_active_chat_users,
            breakdown = EXCLUDED.breakdown`

		for _, d := range days {
			breakdown, err := json.Marshal(d.Breakdown)
			if err != nil {
				return fmt.Errorf("marshal breakdown: %w", err)
			}
			if _, err := tx.Exec(ctx, query,
				tenantKey, d.Day, d.TotalSuggestionsCount, d.TotalAcceptancesCount,
				d.TotalLinesSuggested, d.TotalLinesAccepted, d.TotalActiveUsers,
				d.TotalChatAcceptances, d.TotalChatTurns, d.TotalActiveChatUsers, breakdown,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) QueryUsage(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.UsageDay, error) {
	query, args := rangeQuery(`SELECT day, total_suggestions_count, total_acceptances_count,
        total_lines_suggested, total_lines_accepted, total_active_users,
        total_chat_acceptances, total_chat_turns, total_active_chat_users, breakdown
        FROM usage_days`, tenantKey, since, until, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []service.UsageDay
	for rows.Next() {
		var d service.UsageDay
		var breakdown []byte
		if err := rows.Scan(&d.Day, &d.TotalSuggestionsCount, &d.TotalAcceptancesCount,
			&d.TotalLinesSuggested, &d.TotalLinesAccepted, &d.TotalActiveUsers,
			&d.TotalChatAcceptances, &d.TotalChatTurns, &d.TotalActiveChatUsers, &breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdown, &d.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *PostgresStore) ReplaceSeats(ctx context.Context, tenantKey string, seats []service.SeatRecord) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM seats WHERE tenant_key = $1`, tenantKey); err != nil {
			return err
		}
		query := `INSERT INTO seats (
            tenant_key, login, user_id, assigning_team, plan_type,
            pending_cancellation_date, last_activity_at, last_activity_editor, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (tenant_key, login) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            assigning_team = EXCLUDED.assigning_team,
            plan_type = EXCLUDED.plan_type,
            pending_cancellation_date = EXCLUDED.pending_cancellation_date,
            last_activity_at = EXCLUDED.last_activity_at,
            last_activity_editor = EXCLUDED.last_activity_editor,
            created_at = EXCLUDED.created_at,
            updated_at = EXCLUDED.updated_at`
		for _, seat := range seats {
			if _, err := tx.Exec(ctx, query,
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

func (s *PostgresStore) QuerySeats(ctx context.Context, tenantKey string, limit, offset int) ([]service.SeatRecord, error) {
	query := `SELECT login, user_id, assigning_team, plan_type, pending_cancellation_date,
        last_activity_at, last_activity_editor, created_at, updated_at
        FROM seats WHERE tenant_key = $1
        ORDER BY login
        LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, tenantKey, limit, offset)
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

func (s *PostgresStore) ReplaceMetrics(ctx context.Context, tenantKey string, days []service.MetricsDay) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		query := `INSERT INTO metrics_days (tenant_key, day, total_active_users, total_engaged_users, payload)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_key, day) DO UPDATE SET
            total_active_users = EXCLUDED.total_active_users,
            total_engaged_users = EXCLUDED.total_engaged_users,
            payload = EXCLUDED.payload`
		for _, d := range days {
			payload := []byte(d.Payload)
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			if _, err := tx.Exec(ctx, query, tenantKey, d.Date, d.TotalActiveUsers, d.TotalEngagedUsers, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) QueryMetrics(ctx context.Context, tenantKey, since, until string, limit, offset int) ([]service.MetricsDay, error) {
	query, args := rangeQuery(`SELECT day, total_active_users, total_engaged_users, payload
        FROM metrics_days`, tenantKey, since, until, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []service.MetricsDay
	for rows.Next() {
		var d service.MetricsDay
		var payload []byte
		if err := rows.Scan(&d.Date, &d.TotalActiveUsers, &d.TotalEngagedUsers, &payload); err != nil {
			return nil, err
		}
		d.Payload = payload
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// rangeQuery appends the day-range filter, descending order and pagination to
// a snapshot select. The day column compares lexically, which is correct for
// ISO dates.
func rangeQuery(base, tenantKey, since, until string, limit, offset int) (string, []any) {
	query := base + ` WHERE tenant_key = $1`
	args := []any{tenantKey}
	if since != "" {
		args = append(args, since)
		query += fmt.Sprintf(" AND day >= $%d", len(args))
	}
	if until != "" {
		args = append(args, until)
		query += fmt.Sprintf(" AND day < $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY day DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return query, args
}

// Ensure interface compliance.
var _ service.SnapshotStore = (*PostgresStore)(nil)
