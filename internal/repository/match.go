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

type MatchRepository struct {
	db     *sql.DB
	q      DBTX
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: sqlDB, q: sqlDB, logger: logger}
}

func (r *MatchRepository) WithTx(tx *sql.Tx) *MatchRepository {
	return &MatchRepository{db: r.db, q: tx, logger: r.logger}
}

// Create persists a new match and its roster snapshot. Run inside the
// formation transaction so the match row and the pool transition land
// together.
func (r *MatchRepository) Create(ctx context.Context, match *domain.Match, roster []domain.MatchPlayer) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO matches (id, pool_id, created_at) VALUES (?, ?, ?)`,
		match.ID, match.PoolID, match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	now := time.Now().UTC()
	for _, mp := range roster {
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO match_players (match_id, player_id, team, role, performance_score, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			match.ID, mp.PlayerID, mp.Team, mp.Role, mp.PerformanceScore, now, now)
		if err != nil {
			return fmt.Errorf("failed to create match player %s: %w", mp.PlayerID, err)
		}
	}

	return nil
}

func (r *MatchRepository) Get(ctx context.Context, id string) (*domain.Match, error) {
	var m domain.Match
	var endedAt sql.NullTime
	err := r.q.QueryRowContext(ctx,
		`SELECT id, pool_id, winner, team1_score, team2_score, duration_minutes, created_at, ended_at
		 FROM matches WHERE id = ?`, id).
		Scan(&m.ID, &m.PoolID, &m.Winner, &m.Team1Score, &m.Team2Score, &m.DurationMinutes, &m.CreatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		m.EndedAt = &endedAt.Time
	}
	return &m, nil
}

func (r *MatchRepository) GetRoster(ctx context.Context, matchID string) ([]domain.MatchPlayer, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT match_id, player_id, team, result, role, performance_score, rating_delta, created_at, updated_at
		 FROM match_players WHERE match_id = ? ORDER BY team, player_id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []domain.MatchPlayer
	for rows.Next() {
		var mp domain.MatchPlayer
		err := rows.Scan(&mp.MatchID, &mp.PlayerID, &mp.Team, &mp.Result, &mp.Role,
			&mp.PerformanceScore, &mp.RatingDelta, &mp.CreatedAt, &mp.UpdatedAt)
		if err != nil {
			return nil, err
		}
		roster = append(roster, mp)
	}
	return roster, rows.Err()
}

// Finalize stamps the match outcome. Run inside the ledger transaction.
func (r *MatchRepository) Finalize(ctx context.Context, match *domain.Match) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE matches
		 SET winner = ?, team1_score = ?, team2_score = ?, duration_minutes = ?, ended_at = ?
		 WHERE id = ? AND winner = ''`,
		match.Winner, match.Team1Score, match.Team2Score, match.DurationMinutes,
		time.Now().UTC(), match.ID)
	if err != nil {
		return fmt.Errorf("failed to finalize match %s: %w", match.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// The guard on winner makes double finalization a conflict, not a
	// silent overwrite.
	if n == 0 {
		return domain.ErrMatchAlreadyFinished
	}
	return nil
}

func (r *MatchRepository) SetPlayerResult(ctx context.Context, matchID, playerID string, result domain.MatchResult, ratingDelta int) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE match_players SET result = ?, rating_delta = ?, updated_at = ?
		 WHERE match_id = ? AND player_id = ?`,
		result, ratingDelta, time.Now().UTC(), matchID, playerID)
	if err != nil {
		return fmt.Errorf("failed to set result for player %s in match %s: %w", playerID, matchID, err)
	}
	return nil
}

func (r *MatchRepository) SetPerformanceScore(ctx context.Context, matchID, playerID string, score float64) error {
	if score < 0 || score > 1 {
		return domain.ErrInvalidPerformance
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE match_players SET performance_score = ?, updated_at = ?
		 WHERE match_id = ? AND player_id = ?`,
		score, time.Now().UTC(), matchID, playerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}
