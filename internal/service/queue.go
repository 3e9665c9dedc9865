package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"inhouse-queue/internal/balance"
	"inhouse-queue/internal/config"
	"inhouse-queue/internal/constants"
	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/rating"
	"inhouse-queue/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// QueueService owns the lifecycle of the single active admission pool.
// All pool mutations are serialized behind mu: the capacity check and the
// member insert must act as one unit, otherwise concurrent joins could push
// a pool past capacity.
type QueueService struct {
	mu         sync.Mutex
	db         *sql.DB
	poolRepo   *repository.PoolRepository
	playerRepo *repository.PlayerRepository
	matchRepo  *repository.MatchRepository
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewQueueService(db *sql.DB, poolRepo *repository.PoolRepository, playerRepo *repository.PlayerRepository, matchRepo *repository.MatchRepository, cfg *config.Config, logger zerolog.Logger) *QueueService {
	return &QueueService{
		db:         db,
		poolRepo:   poolRepo,
		playerRepo: playerRepo,
		matchRepo:  matchRepo,
		cfg:        cfg,
		logger:     logger,
	}
}

// FormedMatch is the outcome of a successful team formation.
type FormedMatch struct {
	Match *domain.Match
	Team1 *domain.Team
	Team2 *domain.Team
	Stats balance.Stats
}

// FormOptions control administrative formation paths.
type FormOptions struct {
	Flexible      bool     // operator override: start an undersized but even pool
	RequiredRoles []string // when set, covers these roles on both teams first
}

// CreatePool opens a new admission pool. At most one pool is non-terminal
// system-wide, so any waiting or forming pool is cancelled first — an
// explicit replace transition, never an implicit side effect.
func (s *QueueService) CreatePool(ctx context.Context, capacity int) (*domain.Pool, error) {
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}
	if capacity < constants.MinPoolCapacity || capacity%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidCapacity, capacity)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled, err := s.poolRepo.CancelNonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	if cancelled > 0 {
		s.logger.Info().Int64("cancelled", cancelled).Msg("replaced active pool")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pool id: %w", err)
	}

	pool := &domain.Pool{
		ID:        id,
		Capacity:  capacity,
		Status:    domain.PoolWaiting,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.poolRepo.Create(ctx, pool); err != nil {
		return nil, err
	}

	s.logger.Info().Str("pool_id", pool.ID).Int("capacity", capacity).Msg("pool created")
	return pool, nil
}

// AddPlayer admits a player into a waiting pool, provisioning the player row
// on first sight. Join order is preserved.
func (s *QueueService) AddPlayer(ctx context.Context, poolID, playerID, displayName string) (*domain.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.poolRepo.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	switch pool.Status {
	case domain.PoolWaiting:
	case domain.PoolForming:
		return nil, domain.ErrMatchAlreadyForming
	default:
		return nil, domain.ErrPoolNotActive
	}
	if len(pool.Players) >= pool.Capacity {
		return nil, domain.ErrPoolFull
	}

	waiting, err := s.poolRepo.IsPlayerWaiting(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if waiting {
		return nil, domain.ErrAlreadyQueued
	}

	if _, err := s.playerRepo.GetOrCreate(ctx, playerID, displayName); err != nil {
		return nil, err
	}
	if err := s.poolRepo.AddMember(ctx, poolID, playerID); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pool_id", poolID).
		Str("player_id", playerID).
		Int("pool_size", len(pool.Players)+1).
		Int("capacity", pool.Capacity).
		Msg("player joined pool")

	return s.poolRepo.Get(ctx, poolID)
}

// RemovePlayer takes a player out of a waiting pool. Removing an absent
// player is a no-op. Once the pool is forming, only an administrator
// override can pull a player.
func (s *QueueService) RemovePlayer(ctx context.Context, poolID, playerID string, adminOverride bool) (*domain.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.poolRepo.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status == domain.PoolForming && !adminOverride {
		return nil, domain.ErrMatchAlreadyForming
	}
	if pool.Status.Terminal() {
		return nil, domain.ErrPoolNotActive
	}

	removed, err := s.poolRepo.RemoveMember(ctx, poolID, playerID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.logger.Info().Str("pool_id", poolID).Str("player_id", playerID).Msg("player left pool")
	}

	return s.poolRepo.Get(ctx, poolID)
}

// GetPool returns the pool with its members in join order.
func (s *QueueService) GetPool(ctx context.Context, poolID string) (*domain.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.poolRepo.Get(ctx, poolID)
}

// ActivePool returns the single non-terminal pool, or nil.
func (s *QueueService) ActivePool(ctx context.Context) (*domain.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.poolRepo.ActiveNonTerminal(ctx)
}

// IsReady is strict: the pool must be exactly at capacity. Partial pools
// only start through the flexible override.
func (s *QueueService) IsReady(pool *domain.Pool) bool {
	return len(pool.Players) == pool.Capacity
}

// CanFormFlexible allows an operator to force-start an undersized but
// balanced match: at least four players and an even count.
func (s *QueueService) CanFormFlexible(pool *domain.Pool) bool {
	n := len(pool.Players)
	return n >= constants.MinFlexiblePool && n%2 == 0
}

// FormTeams freezes the pool, splits it into two balanced teams, and records
// the pending match. The pool transitions waiting -> forming; membership is
// frozen before any rating computation happens.
func (s *QueueService) FormTeams(ctx context.Context, poolID string, opts FormOptions) (*FormedMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.poolRepo.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status != domain.PoolWaiting {
		if pool.Status == domain.PoolForming {
			return nil, domain.ErrMatchAlreadyForming
		}
		return nil, domain.ErrPoolNotActive
	}

	ready := s.IsReady(pool)
	if !ready && !(opts.Flexible && s.CanFormFlexible(pool)) {
		return nil, fmt.Errorf("%w: %d of %d players", domain.ErrNotReady, len(pool.Players), pool.Capacity)
	}

	teamSize := len(pool.Players) / 2
	if teamSize < rating.MinRatedTeamSize {
		return nil, domain.ErrUnsupportedTeamSize
	}

	var team1, team2 *domain.Team
	if len(opts.RequiredRoles) > 0 {
		team1, team2, err = balance.BalanceWithRequiredRoles(pool.Players, opts.RequiredRoles, teamSize)
	} else {
		team1, team2, err = balance.Balance(pool.Players, teamSize)
	}
	if err != nil {
		return nil, err
	}
	stats := balance.GetStats(team1, team2)

	matchID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate match id: %w", err)
	}
	match := &domain.Match{
		ID:        matchID,
		PoolID:    pool.ID,
		CreatedAt: time.Now().UTC(),
	}

	roster := make([]domain.MatchPlayer, 0, len(team1.Players)+len(team2.Players))
	for _, t := range []*domain.Team{team1, team2} {
		for i := range t.Players {
			p := &t.Players[i]
			role := ""
			if len(p.PreferredRoles) > 0 {
				role = p.PreferredRoles[0]
			}
			roster = append(roster, domain.MatchPlayer{
				MatchID:          matchID,
				PlayerID:         p.ID,
				Team:             t.ID,
				Role:             role,
				PerformanceScore: 0.5,
			})
		}
	}

	// The match row and the pool transition commit as one unit; a failure
	// between them would strand a pending match that could settle twice.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.matchRepo.WithTx(tx).Create(ctx, match, roster); err != nil {
		return nil, err
	}
	if err := s.poolRepo.WithTx(tx).SetStatus(ctx, pool.ID, domain.PoolForming); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("pool_id", pool.ID).
		Str("match_id", matchID).
		Int("team_size", teamSize).
		Float64("balance_score", stats.BalanceScore).
		Float64("rating_difference", stats.RatingDifference).
		Bool("flexible", !ready).
		Msg("teams formed")

	return &FormedMatch{Match: match, Team1: team1, Team2: team2, Stats: stats}, nil
}

// SetPreferredRoles replaces a player's role-preference set; the balancer
// reads it at formation time.
func (s *QueueService) SetPreferredRoles(ctx context.Context, playerID string, roles []string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.playerRepo.SetPreferredRoles(ctx, playerID, roles)
}

// CancelPool aborts a waiting or forming pool.
func (s *QueueService) CancelPool(ctx context.Context, poolID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.poolRepo.Get(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Status.Terminal() {
		return domain.ErrPoolNotActive
	}
	if err := s.poolRepo.SetStatus(ctx, poolID, domain.PoolCancelled); err != nil {
		return err
	}
	s.logger.Info().Str("pool_id", poolID).Msg("pool cancelled")
	return nil
}
