package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inhouse-queue/internal/constants"
	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/rating"
	"inhouse-queue/internal/repository"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// LedgerService finalizes matches: it computes every player's rating change
// and persists the whole outcome as one transaction. Either the match stamp,
// all player updates, and all history rows land together, or none do.
type LedgerService struct {
	db          *sql.DB
	matchRepo   *repository.MatchRepository
	playerRepo  *repository.PlayerRepository
	poolRepo    *repository.PoolRepository
	historyRepo *repository.RatingHistoryRepository
	logger      zerolog.Logger
}

func NewLedgerService(db *sql.DB, matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, poolRepo *repository.PoolRepository, historyRepo *repository.RatingHistoryRepository, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		db:          db,
		matchRepo:   matchRepo,
		playerRepo:  playerRepo,
		poolRepo:    poolRepo,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// FinishMatch settles a pending match. The winner declaration is final: a
// second call on the same match is rejected, never reapplied. Transient
// storage contention is retried with backoff inside this boundary only; on
// exhaustion the match stays pending and the whole call is safe to repeat.
func (s *LedgerService) FinishMatch(ctx context.Context, matchID string, winner domain.TeamID, durationMinutes int) ([]rating.Change, error) {
	if winner != domain.Team1 && winner != domain.Team2 {
		return nil, fmt.Errorf("invalid winner %q: must be %s or %s", winner, domain.Team1, domain.Team2)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	match, err := s.matchRepo.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Finished() {
		return nil, domain.ErrMatchAlreadyFinished
	}

	roster, err := s.matchRepo.GetRoster(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("match %s has no roster", matchID)
	}

	// Team aggregates are rebuilt from current player ratings, not the
	// ratings at formation time.
	team1 := &domain.Team{ID: domain.Team1}
	team2 := &domain.Team{ID: domain.Team2}
	performance := make(map[string]float64, len(roster))
	for _, mp := range roster {
		player, err := s.playerRepo.Get(ctx, mp.PlayerID)
		if err != nil {
			return nil, err
		}
		performance[mp.PlayerID] = mp.PerformanceScore
		if mp.Team == domain.Team1 {
			team1.Players = append(team1.Players, *player)
		} else {
			team2.Players = append(team2.Players, *player)
		}
	}

	changes := rating.MatchResults(team1, team2, winner, performance)

	match.Winner = winner
	if winner == domain.Team1 {
		match.Team1Score = 1
	} else {
		match.Team2Score = 1
	}
	match.DurationMinutes = durationMinutes

	backoff := retry.WithMaxRetries(constants.FinishMatchRetries,
		retry.NewExponential(constants.FinishMatchRetryDelay))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.commitOutcome(ctx, match, changes); err != nil {
			if transientStorageError(err) {
				s.logger.Warn().Err(err).Str("match_id", matchID).Msg("transient storage error, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish match %s: %w", matchID, err)
	}

	s.logger.Info().
		Str("match_id", matchID).
		Str("winner", string(winner)).
		Int("players", len(changes)).
		Msg("match finished")

	return changes, nil
}

// SetPerformanceScore records a caller-supplied in-match quality signal for
// one player. Only pending matches accept scores; they feed the rating
// bonus at finalization.
func (s *LedgerService) SetPerformanceScore(ctx context.Context, matchID, playerID string, score float64) error {
	if score < 0 || score > 1 {
		return domain.ErrInvalidPerformance
	}
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	match, err := s.matchRepo.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Finished() {
		return domain.ErrMatchAlreadyFinished
	}
	return s.matchRepo.SetPerformanceScore(ctx, matchID, playerID, score)
}

func (s *LedgerService) commitOutcome(ctx context.Context, match *domain.Match, changes []rating.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	matchTx := s.matchRepo.WithTx(tx)
	playerTx := s.playerRepo.WithTx(tx)
	historyTx := s.historyRepo.WithTx(tx)
	poolTx := s.poolRepo.WithTx(tx)

	if err := matchTx.Finalize(ctx, match); err != nil {
		return err
	}

	winners := map[string]bool{}
	for _, c := range changes {
		winners[c.PlayerID] = c.ActualScore == 1
	}

	now := time.Now().UTC()
	for _, c := range changes {
		result := domain.ResultLoss
		if winners[c.PlayerID] {
			result = domain.ResultWin
		}

		if err := matchTx.SetPlayerResult(ctx, match.ID, c.PlayerID, result, c.Delta); err != nil {
			return err
		}

		player, err := playerTx.Get(ctx, c.PlayerID)
		if err != nil {
			return err
		}
		applyResult(player, result, c.NewRating, now)
		if err := playerTx.Update(ctx, player); err != nil {
			return err
		}

		if err := historyTx.Append(ctx, &domain.RatingHistory{
			PlayerID:  c.PlayerID,
			OldRating: c.OldRating,
			NewRating: c.NewRating,
			Delta:     c.Delta,
			MatchID:   match.ID,
			Reason:    string(result),
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}

	if err := poolTx.SetStatus(ctx, match.PoolID, domain.PoolCompleted); err != nil {
		return err
	}

	return tx.Commit()
}

// applyResult mutates the player aggregates for one finished match: a win
// extends the streak (raising best streak when exceeded), a loss resets it.
func applyResult(p *domain.Player, result domain.MatchResult, newRating int, now time.Time) {
	p.Rating = newRating
	p.GamesPlayed++
	p.LastMatchAt = now
	if result == domain.ResultWin {
		p.Wins++
		p.CurrentStreak++
		if p.CurrentStreak > p.BestStreak {
			p.BestStreak = p.CurrentStreak
		}
	} else {
		p.Losses++
		p.CurrentStreak = 0
	}
}

// transientStorageError reports whether the failure is sqlite contention
// worth retrying, as opposed to a constraint or logic error.
func transientStorageError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}
