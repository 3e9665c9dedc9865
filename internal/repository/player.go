package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/rating"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	q      DBTX
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, q: sqlDB, logger: logger}
}

// WithTx returns a copy of the repository that runs its statements on tx.
func (r *PlayerRepository) WithTx(tx *sql.Tx) *PlayerRepository {
	return &PlayerRepository{db: r.db, q: tx, logger: r.logger}
}

const playerColumns = `id, display_name, rating, wins, losses, games_played,
	current_streak, best_streak, preferred_roles, last_match_at, created_at, updated_at`

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	player, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	return player, err
}

// GetOrCreate provisions a player row on first sight with the initial
// rating; admission is the only path that creates players.
func (r *PlayerRepository) GetOrCreate(ctx context.Context, id, displayName string) (*domain.Player, error) {
	player, err := r.Get(ctx, id)
	if err == nil {
		return player, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	player = &domain.Player{
		ID:          id,
		DisplayName: displayName,
		Rating:      rating.InitialRating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	roles, err := json.Marshal([]string{})
	if err != nil {
		return nil, err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO players (id, display_name, rating, preferred_roles, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		player.ID, player.DisplayName, player.Rating, string(roles), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create player %s: %w", id, err)
	}

	r.logger.Info().Str("player_id", id).Str("display_name", displayName).Msg("player created")
	return player, nil
}

// Update writes the mutable aggregate fields back.
func (r *PlayerRepository) Update(ctx context.Context, player *domain.Player) error {
	roles, err := json.Marshal(player.PreferredRoles)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`UPDATE players
		 SET display_name = ?, rating = ?, wins = ?, losses = ?, games_played = ?,
		     current_streak = ?, best_streak = ?, preferred_roles = ?,
		     last_match_at = ?, updated_at = ?
		 WHERE id = ?`,
		player.DisplayName, player.Rating, player.Wins, player.Losses, player.GamesPlayed,
		player.CurrentStreak, player.BestStreak, string(roles),
		nullTime(player.LastMatchAt), time.Now().UTC(), player.ID)
	if err != nil {
		return fmt.Errorf("failed to update player %s: %w", player.ID, err)
	}
	return nil
}

func (r *PlayerRepository) SetPreferredRoles(ctx context.Context, id string, roles []string) error {
	// Dedupe: role tags are a set, not a list.
	seen := make(map[string]bool, len(roles))
	unique := make([]string, 0, len(roles))
	for _, role := range roles {
		if !seen[role] {
			seen[role] = true
			unique = append(unique, role)
		}
	}

	encoded, err := json.Marshal(unique)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE players SET preferred_roles = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// Reset returns a player to first-admission defaults. Players are never
// deleted.
func (r *PlayerRepository) Reset(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE players
		 SET rating = ?, wins = 0, losses = 0, games_played = 0,
		     current_streak = 0, best_streak = 0, last_match_at = NULL, updated_at = ?
		 WHERE id = ?`,
		rating.InitialRating, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reset player %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlayerNotFound
	}
	r.logger.Info().Str("player_id", id).Msg("player stats reset")
	return nil
}

func (r *PlayerRepository) Top(ctx context.Context, limit int) ([]domain.Player, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players ORDER BY rating DESC, games_played DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlayers(rows)
}

func (r *PlayerRepository) Between(ctx context.Context, minRating, maxRating int) ([]domain.Player, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players
		 WHERE rating BETWEEN ? AND ? ORDER BY rating DESC`, minRating, maxRating)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlayers(rows)
}

func (r *PlayerRepository) All(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+playerColumns+` FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlayers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*domain.Player, error) {
	var p domain.Player
	var roles string
	var lastMatchAt sql.NullTime
	err := row.Scan(&p.ID, &p.DisplayName, &p.Rating, &p.Wins, &p.Losses, &p.GamesPlayed,
		&p.CurrentStreak, &p.BestStreak, &roles, &lastMatchAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &p.PreferredRoles); err != nil {
		return nil, fmt.Errorf("corrupt preferred_roles for player %s: %w", p.ID, err)
	}
	if lastMatchAt.Valid {
		p.LastMatchAt = lastMatchAt.Time
	}
	return &p, nil
}

func scanPlayers(rows *sql.Rows) ([]domain.Player, error) {
	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
