package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inhouse-queue/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type RatingHistoryRepository struct {
	db     *sql.DB
	q      DBTX
	logger zerolog.Logger
}

func NewRatingHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *RatingHistoryRepository {
	return &RatingHistoryRepository{db: sqlDB, q: sqlDB, logger: logger}
}

func (r *RatingHistoryRepository) WithTx(tx *sql.Tx) *RatingHistoryRepository {
	return &RatingHistoryRepository{db: r.db, q: tx, logger: r.logger}
}

// Append writes one immutable history row. No update path exists.
func (r *RatingHistoryRepository) Append(ctx context.Context, entry *domain.RatingHistory) error {
	if entry.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO rating_history (id, player_id, old_rating, new_rating, delta, match_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.PlayerID, entry.OldRating, entry.NewRating, entry.Delta,
		entry.MatchID, entry.Reason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append rating history for %s: %w", entry.PlayerID, err)
	}
	return nil
}

func (r *RatingHistoryRepository) ByPlayer(ctx context.Context, playerID string, limit int) ([]domain.RatingHistory, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, player_id, old_rating, new_rating, delta, match_id, reason, created_at
		 FROM rating_history WHERE player_id = ?
		 ORDER BY created_at DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RatingHistory
	for rows.Next() {
		var e domain.RatingHistory
		err := rows.Scan(&e.ID, &e.PlayerID, &e.OldRating, &e.NewRating, &e.Delta,
			&e.MatchID, &e.Reason, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
