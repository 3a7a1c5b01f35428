package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/juant72/sniperforge/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL. Hop detail,
// the mitigation record and the route snapshot are stored as JSONB so a
// PartiallyFailed attempt keeps its full reconciliation trail.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Create inserts the attempt record at commit time.
func (s *AttemptStore) Create(ctx context.Context, attempt domain.ExecutionAttempt) error {
	hops, route, mitigation, err := marshalDetail(attempt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_attempts (id, opportunity_id, route_key, base_asset, input_amount, expected_net, outcome, realized_profit, abort_reason, hops, mitigation, route, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		attempt.ID, attempt.OpportunityID, attempt.Route.Key(), string(attempt.Route.Base),
		attempt.InputAmount, attempt.ExpectedNet, string(attempt.Outcome),
		attempt.RealizedProfit, attempt.AbortReason, hops, mitigation, route,
		attempt.StartedAt, attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// Finish upserts the terminal attempt. Upsert, not update: aborts that
// happen before the commit-time insert still leave a journal row.
func (s *AttemptStore) Finish(ctx context.Context, attempt domain.ExecutionAttempt) error {
	hops, route, mitigation, err := marshalDetail(attempt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_attempts (id, opportunity_id, route_key, base_asset, input_amount, expected_net, outcome, realized_profit, abort_reason, hops, mitigation, route, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			realized_profit = EXCLUDED.realized_profit,
			abort_reason = EXCLUDED.abort_reason,
			hops = EXCLUDED.hops,
			mitigation = EXCLUDED.mitigation,
			finished_at = EXCLUDED.finished_at`,
		attempt.ID, attempt.OpportunityID, attempt.Route.Key(), string(attempt.Route.Base),
		attempt.InputAmount, attempt.ExpectedNet, string(attempt.Outcome),
		attempt.RealizedProfit, attempt.AbortReason, hops, mitigation, route,
		attempt.StartedAt, attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// GetByID returns one attempt with full hop detail.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM execution_attempts WHERE id = $1`, id)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionAttempt{}, domain.ErrNotFound
		}
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: get attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListRecent returns the newest attempts first.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		FROM execution_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent attempts: %w", err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListTerminalBefore returns terminal attempts finished before the cutoff,
// oldest first, for archival export.
func (s *AttemptStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, selectColumns+`
		FROM execution_attempts
		WHERE finished_at IS NOT NULL AND finished_at < $1
		ORDER BY finished_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal attempts: %w", err)
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// SumRealizedProfit sums realized profit over terminal attempts since the
// given time, in base units.
func (s *AttemptStore) SumRealizedProfit(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_profit), 0)
		FROM execution_attempts
		WHERE finished_at IS NOT NULL AND finished_at >= $1`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized profit: %w", err)
	}
	return total, nil
}

const selectColumns = `
	SELECT id, opportunity_id, input_amount, expected_net, outcome, realized_profit, abort_reason, hops, mitigation, route, started_at, finished_at`

func marshalDetail(attempt domain.ExecutionAttempt) (hops, route []byte, mitigation []byte, err error) {
	hops, err = json.Marshal(attempt.Hops)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: marshal hops for %s: %w", attempt.ID, err)
	}
	route, err = json.Marshal(attempt.Route)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: marshal route for %s: %w", attempt.ID, err)
	}
	if attempt.Mitigation != nil {
		mitigation, err = json.Marshal(attempt.Mitigation)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: marshal mitigation for %s: %w", attempt.ID, err)
		}
	}
	return hops, route, mitigation, nil
}

func scanAttempt(row pgx.Row) (domain.ExecutionAttempt, error) {
	var (
		attempt    domain.ExecutionAttempt
		outcome    string
		hops       []byte
		mitigation []byte
		route      []byte
	)
	err := row.Scan(&attempt.ID, &attempt.OpportunityID, &attempt.InputAmount,
		&attempt.ExpectedNet, &outcome, &attempt.RealizedProfit, &attempt.AbortReason,
		&hops, &mitigation, &route, &attempt.StartedAt, &attempt.FinishedAt)
	if err != nil {
		return domain.ExecutionAttempt{}, err
	}
	attempt.Outcome = domain.AttemptOutcome(outcome)
	if err := json.Unmarshal(hops, &attempt.Hops); err != nil {
		return domain.ExecutionAttempt{}, fmt.Errorf("unmarshal hops: %w", err)
	}
	if err := json.Unmarshal(route, &attempt.Route); err != nil {
		return domain.ExecutionAttempt{}, fmt.Errorf("unmarshal route: %w", err)
	}
	if len(mitigation) > 0 {
		attempt.Mitigation = &domain.HopResult{}
		if err := json.Unmarshal(mitigation, attempt.Mitigation); err != nil {
			return domain.ExecutionAttempt{}, fmt.Errorf("unmarshal mitigation: %w", err)
		}
	}
	return attempt, nil
}

func collectAttempts(rows pgx.Rows) ([]domain.ExecutionAttempt, error) {
	var attempts []domain.ExecutionAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate attempts: %w", err)
	}
	return attempts, nil
}

// Compile-time interface check.
var _ domain.AttemptStore = (*AttemptStore)(nil)
