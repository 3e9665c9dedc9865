package service

import (
	"context"
	"testing"

	"inhouse-queue/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formMatch(t *testing.T, f *fixture, players int) *FormedMatch {
	t.Helper()
	ctx := context.Background()

	pool, err := f.queue.CreatePool(ctx, players)
	require.NoError(t, err)
	f.fillPool(t, pool.ID, players)

	formed, err := f.queue.FormTeams(ctx, pool.ID, FormOptions{})
	require.NoError(t, err)
	return formed
}

func TestFinishMatchAppliesRatings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)

	changes, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team1, 35)
	require.NoError(t, err)
	require.Len(t, changes, 4)

	// All fresh players at 1000: k=40, expected 0.5, bonus +0.05, 2v2
	// multiplier 0.3 -> round(40*0.5*1.05*0.3) = 6.
	for _, p := range formed.Team1.Players {
		loaded, err := f.playerRepo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1006, loaded.Rating)
		assert.Equal(t, 1, loaded.Wins)
		assert.Equal(t, 0, loaded.Losses)
		assert.Equal(t, 1, loaded.GamesPlayed)
		assert.Equal(t, 1, loaded.CurrentStreak)
		assert.Equal(t, 1, loaded.BestStreak)
		assert.False(t, loaded.LastMatchAt.IsZero())
	}
	for _, p := range formed.Team2.Players {
		loaded, err := f.playerRepo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 994, loaded.Rating)
		assert.Equal(t, 1, loaded.Losses)
		assert.Equal(t, 0, loaded.CurrentStreak)
	}

	match, err := f.matchRepo.Get(ctx, formed.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Team1, match.Winner)
	assert.Equal(t, 1, match.Team1Score)
	assert.Equal(t, 35, match.DurationMinutes)
	assert.NotNil(t, match.EndedAt)

	pool, err := f.queue.GetPool(ctx, formed.Match.PoolID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolCompleted, pool.Status)
}

func TestFinishMatchWritesHistoryAndResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)
	_, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team2, 20)
	require.NoError(t, err)

	roster, err := f.matchRepo.GetRoster(ctx, formed.Match.ID)
	require.NoError(t, err)
	require.Len(t, roster, 4)
	for _, mp := range roster {
		if mp.Team == domain.Team2 {
			assert.Equal(t, domain.ResultWin, mp.Result)
			assert.Positive(t, mp.RatingDelta)
		} else {
			assert.Equal(t, domain.ResultLoss, mp.Result)
			assert.Negative(t, mp.RatingDelta)
		}
	}

	stats, err := f.stats.PlayerStats(ctx, roster[0].PlayerID)
	require.NoError(t, err)
	require.Len(t, stats.History, 1)
	assert.Equal(t, formed.Match.ID, stats.History[0].MatchID)
	assert.Equal(t, 1000, stats.History[0].OldRating)
}

func TestFinishMatchRejectsSecondCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)
	_, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team1, 30)
	require.NoError(t, err)

	ratingsAfterFirst := map[string]int{}
	for _, p := range append(formed.Team1.Players, formed.Team2.Players...) {
		loaded, err := f.playerRepo.Get(ctx, p.ID)
		require.NoError(t, err)
		ratingsAfterFirst[p.ID] = loaded.Rating
	}

	_, err = f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team2, 30)
	assert.ErrorIs(t, err, domain.ErrMatchAlreadyFinished)

	// Ratings unchanged by the rejected call.
	for id, want := range ratingsAfterFirst {
		loaded, err := f.playerRepo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, loaded.Rating)
	}
}

func TestFinishMatchValidatesWinner(t *testing.T) {
	f := newFixture(t)
	formed := formMatch(t, f, 4)

	_, err := f.ledger.FinishMatch(context.Background(), formed.Match.ID, "team3", 30)
	assert.Error(t, err)
}

func TestFinishMatchUnknownMatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.FinishMatch(context.Background(), "missing", domain.Team1, 30)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestSetPerformanceScoreFeedsRatingBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)
	star := formed.Team1.Players[0].ID
	require.NoError(t, f.ledger.SetPerformanceScore(ctx, formed.Match.ID, star, 0.9))

	changes, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team1, 25)
	require.NoError(t, err)

	var starDelta, teammateDelta int
	for _, c := range changes {
		switch c.PlayerID {
		case star:
			starDelta = c.Delta
		case formed.Team1.Players[1].ID:
			teammateDelta = c.Delta
		}
	}
	assert.Greater(t, starDelta, teammateDelta)
}

func TestSetPerformanceScoreRejectedAfterFinish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)
	_, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team1, 25)
	require.NoError(t, err)

	err = f.ledger.SetPerformanceScore(ctx, formed.Match.ID, formed.Team1.Players[0].ID, 0.8)
	assert.ErrorIs(t, err, domain.ErrMatchAlreadyFinished)
}

func TestSetPerformanceScoreValidatesRange(t *testing.T) {
	f := newFixture(t)
	formed := formMatch(t, f, 4)

	err := f.ledger.SetPerformanceScore(context.Background(), formed.Match.ID, formed.Team1.Players[0].ID, 1.2)
	assert.ErrorIs(t, err, domain.ErrInvalidPerformance)
}

func TestStreakBonusFeedsDeltaAndLossResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pool, err := f.queue.CreatePool(ctx, 4)
	require.NoError(t, err)
	for _, id := range []string{"hot", "b", "c", "d"} {
		_, err := f.queue.AddPlayer(ctx, pool.ID, id, id)
		require.NoError(t, err)
	}

	// Put one player on a three-win streak; everyone stays at 1000, so the
	// only difference between teammates at settlement is the streak bonus.
	hot, err := f.playerRepo.Get(ctx, "hot")
	require.NoError(t, err)
	hot.Wins = 3
	hot.GamesPlayed = 3
	hot.CurrentStreak = 3
	hot.BestStreak = 3
	require.NoError(t, f.playerRepo.Update(ctx, hot))

	formed, err := f.queue.FormTeams(ctx, pool.ID, FormOptions{})
	require.NoError(t, err)
	winner, mates := domain.Team1, formed.Team1.Players
	if teamHas(formed.Team2, "hot") {
		winner, mates = domain.Team2, formed.Team2.Players
	}

	changes, err := f.ledger.FinishMatch(ctx, formed.Match.ID, winner, 30)
	require.NoError(t, err)

	var hotDelta, mateDelta int
	for _, c := range changes {
		if c.PlayerID == "hot" {
			hotDelta = c.Delta
		}
		for _, m := range mates {
			if m.ID != "hot" && c.PlayerID == m.ID {
				mateDelta = c.Delta
			}
		}
	}
	// Same team, same expected score: k=40, expected 0.5, balance +0.05,
	// 2v2 multiplier 0.3. The streak adds +0.1 for hot only:
	// round(20*1.15*0.3) = 7 versus round(20*1.05*0.3) = 6.
	assert.Equal(t, 7, hotDelta)
	assert.Equal(t, 6, mateDelta)

	hot, err = f.playerRepo.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, 1007, hot.Rating)
	assert.Equal(t, 4, hot.CurrentStreak)
	assert.Equal(t, 4, hot.BestStreak)

	// A loss resets the streak; the best streak stays.
	pool, err = f.queue.CreatePool(ctx, 4)
	require.NoError(t, err)
	for _, id := range []string{"hot", "b", "c", "d"} {
		_, err := f.queue.AddPlayer(ctx, pool.ID, id, id)
		require.NoError(t, err)
	}
	formed, err = f.queue.FormTeams(ctx, pool.ID, FormOptions{})
	require.NoError(t, err)
	winner = domain.Team1
	if teamHas(formed.Team1, "hot") {
		winner = domain.Team2
	}
	_, err = f.ledger.FinishMatch(ctx, formed.Match.ID, winner, 30)
	require.NoError(t, err)

	hot, err = f.playerRepo.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, 0, hot.CurrentStreak)
	assert.Equal(t, 4, hot.BestStreak)
	assert.Equal(t, 1, hot.Losses)
	assert.Equal(t, 5, hot.GamesPlayed)
}

func teamHas(team *domain.Team, id string) bool {
	for i := range team.Players {
		if team.Players[i].ID == id {
			return true
		}
	}
	return false
}

func TestResetPlayerKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	formed := formMatch(t, f, 4)
	_, err := f.ledger.FinishMatch(ctx, formed.Match.ID, domain.Team1, 30)
	require.NoError(t, err)

	id := formed.Team1.Players[0].ID
	require.NoError(t, f.stats.ResetPlayer(ctx, id))

	stats, err := f.stats.PlayerStats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.Player.Rating)
	assert.Zero(t, stats.Player.GamesPlayed)
	assert.Len(t, stats.History, 1, "history survives the reset")
}
