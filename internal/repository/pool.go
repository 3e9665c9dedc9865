package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inhouse-queue/internal/domain"

	"github.com/rs/zerolog"
)

type PoolRepository struct {
	db     *sql.DB
	q      DBTX
	logger zerolog.Logger
}

func NewPoolRepository(sqlDB *sql.DB, logger zerolog.Logger) *PoolRepository {
	return &PoolRepository{db: sqlDB, q: sqlDB, logger: logger}
}

func (r *PoolRepository) WithTx(tx *sql.Tx) *PoolRepository {
	return &PoolRepository{db: r.db, q: tx, logger: r.logger}
}

func (r *PoolRepository) Create(ctx context.Context, pool *domain.Pool) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO pools (id, capacity, status, created_at) VALUES (?, ?, ?, ?)`,
		pool.ID, pool.Capacity, pool.Status, pool.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	return nil
}

// Get loads a pool together with its members in join order.
func (r *PoolRepository) Get(ctx context.Context, id string) (*domain.Pool, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, capacity, status, created_at, started_at, ended_at FROM pools WHERE id = ?`, id)

	pool, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+playerColumns+`
		 FROM players p JOIN pool_members pm ON pm.player_id = p.id
		 WHERE pm.pool_id = ?
		 ORDER BY pm.joined_at, p.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pool.Players, err = scanPlayers(rows)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// ActiveNonTerminal returns the single pool still in waiting or forming
// status, or nil when none exists.
func (r *PoolRepository) ActiveNonTerminal(ctx context.Context) (*domain.Pool, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, capacity, status, created_at, started_at, ended_at
		 FROM pools WHERE status IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		domain.PoolWaiting, domain.PoolForming)

	pool, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, pool.ID)
}

// CancelNonTerminal cancels every waiting or forming pool and reports how
// many were affected. Starting a new pool retires the old one; history is
// kept, never deleted.
func (r *PoolRepository) CancelNonTerminal(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE pools SET status = ?, ended_at = ? WHERE status IN (?, ?)`,
		domain.PoolCancelled, time.Now().UTC(), domain.PoolWaiting, domain.PoolForming)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pools: %w", err)
	}
	return res.RowsAffected()
}

// SetStatus transitions a pool, stamping started_at when it begins forming
// and ended_at when it terminates.
func (r *PoolRepository) SetStatus(ctx context.Context, id string, status domain.PoolStatus) error {
	query := `UPDATE pools SET status = ?, started_at = started_at WHERE id = ?`
	switch {
	case status == domain.PoolForming:
		query = `UPDATE pools SET status = ?, started_at = ? WHERE id = ?`
	case status.Terminal():
		query = `UPDATE pools SET status = ?, ended_at = ? WHERE id = ?`
	default:
		res, err := r.q.ExecContext(ctx, query, status, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrPoolNotFound
		}
		return nil
	}

	res, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set pool %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPoolNotFound
	}
	return nil
}

func (r *PoolRepository) AddMember(ctx context.Context, poolID, playerID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO pool_members (pool_id, player_id, joined_at) VALUES (?, ?, ?)`,
		poolID, playerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add member %s to pool %s: %w", playerID, poolID, err)
	}
	return nil
}

func (r *PoolRepository) RemoveMember(ctx context.Context, poolID, playerID string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM pool_members WHERE pool_id = ? AND player_id = ?`, poolID, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member %s from pool %s: %w", playerID, poolID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsPlayerWaiting reports whether the player is already a member of any
// waiting pool, anywhere.
func (r *PoolRepository) IsPlayerWaiting(ctx context.Context, playerID string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pool_members pm
		 JOIN pools p ON p.id = pm.pool_id
		 WHERE pm.player_id = ? AND p.status = ?`,
		playerID, domain.PoolWaiting).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPool(row rowScanner) (*domain.Pool, error) {
	var p domain.Pool
	var startedAt, endedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Capacity, &p.Status, &p.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		p.EndedAt = &endedAt.Time
	}
	return &p, nil
}
