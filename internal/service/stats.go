package service

import (
	"context"

	"inhouse-queue/internal/constants"
	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/rating"
	"inhouse-queue/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StatsService is the read-only reporting surface. It never mutates ratings.
type StatsService struct {
	playerRepo  *repository.PlayerRepository
	historyRepo *repository.RatingHistoryRepository
	logger      zerolog.Logger
}

func NewStatsService(playerRepo *repository.PlayerRepository, historyRepo *repository.RatingHistoryRepository, logger zerolog.Logger) *StatsService {
	return &StatsService{playerRepo: playerRepo, historyRepo: historyRepo, logger: logger}
}

type PlayerStats struct {
	Player     *domain.Player
	WinRate    float64
	Percentile float64
	Confidence float64
	History    []domain.RatingHistory
}

type LeaderboardRow struct {
	Rank       int
	Player     domain.Player
	WinRate    float64
	Percentile float64
}

// PlayerStats assembles a player profile: the row itself, the full
// population for the percentile, and recent rating history, fetched
// concurrently.
func (s *StatsService) PlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	var (
		player  *domain.Player
		all     []domain.Player
		history []domain.RatingHistory
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		player, err = s.playerRepo.Get(gCtx, playerID)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.playerRepo.All(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.historyRepo.ByPlayer(gCtx, playerID, constants.LeaderboardLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &PlayerStats{
		Player:     player,
		WinRate:    player.WinRate(),
		Percentile: rating.Percentile(player, all),
		Confidence: rating.Confidence(player),
		History:    history,
	}, nil
}

// TopPlayers returns the leaderboard, highest rating first.
func (s *StatsService) TopPlayers(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 {
		limit = constants.LeaderboardLimit
	}

	var (
		top []domain.Player
		all []domain.Player
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		top, err = s.playerRepo.Top(gCtx, limit)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.playerRepo.All(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]LeaderboardRow, len(top))
	for i := range top {
		rows[i] = LeaderboardRow{
			Rank:       i + 1,
			Player:     top[i],
			WinRate:    top[i].WinRate(),
			Percentile: rating.Percentile(&top[i], all),
		}
	}
	return rows, nil
}

// PlayersBetween returns players inside a rating band, highest first.
func (s *StatsService) PlayersBetween(ctx context.Context, minRating, maxRating int) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if minRating > maxRating {
		minRating, maxRating = maxRating, minRating
	}
	return s.playerRepo.Between(ctx, minRating, maxRating)
}

// ResetPlayer is the administrative reset: rating and aggregates return to
// first-admission defaults, history rows stay.
func (s *StatsService) ResetPlayer(ctx context.Context, playerID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.playerRepo.Reset(ctx, playerID)
}
