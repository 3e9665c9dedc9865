package rating

import (
	"math"
	"testing"

	"inhouse-queue/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func team(id domain.TeamID, ratings ...int) *domain.Team {
	t := &domain.Team{ID: id}
	for i, r := range ratings {
		t.Players = append(t.Players, domain.Player{
			ID:     string(id) + "-" + string(rune('a'+i)),
			Rating: r,
		})
	}
	return t
}

func TestExpectedScoreEqualRatings(t *testing.T) {
	assert.Equal(t, 0.5, ExpectedScore(1000, 1000))
	assert.Equal(t, 0.5, ExpectedScore(0, 0))
	assert.Equal(t, 0.5, ExpectedScore(2400, 2400))
}

func TestExpectedScoreSidesSumToOne(t *testing.T) {
	pairs := [][2]float64{{1000, 1200}, {800, 2000}, {1500, 1499}, {0, 400}}
	for _, pair := range pairs {
		sum := ExpectedScore(pair[0], pair[1]) + ExpectedScore(pair[1], pair[0])
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestKFactor(t *testing.T) {
	tests := []struct {
		name        string
		gamesPlayed int
		rating      int
		want        float64
	}{
		{"new player", 0, 1000, 40},
		{"new player under 30 games", 29, 1000, 40},
		{"established player", 50, 1000, 32},
		{"veteran", 101, 1000, 16},
		{"high rated veteran scaled down but clamped", 101, 2100, 16},
		{"high rated established", 50, 2100, 25.6},
		{"low rated new player clamped to max", 0, 700, 40},
		{"low rated veteran scaled up", 150, 700, 19.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.Player{GamesPlayed: tt.gamesPlayed, Rating: tt.rating}
			assert.InDelta(t, tt.want, KFactor(p), 1e-9)
		})
	}
}

func TestStreakBonus(t *testing.T) {
	tests := []struct {
		streak int
		want   float64
	}{
		{0, 0},
		{2, 0},
		{3, 0.1},
		{4, 0.2},
		{5, 0.3},
		{10, 0.3}, // capped
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, StreakBonus(&domain.Player{CurrentStreak: tt.streak}), 1e-9)
	}
}

func TestPerformanceModifier(t *testing.T) {
	assert.Equal(t, 0.1, PerformanceModifier(0.8))
	assert.Equal(t, -0.1, PerformanceModifier(0.2))
	assert.Equal(t, 0.0, PerformanceModifier(0.5))
	assert.Equal(t, 0.0, PerformanceModifier(0.7))
	assert.Equal(t, 0.0, PerformanceModifier(0.3))
}

func TestTeamBalanceBonus(t *testing.T) {
	even := team(domain.Team1, 1000, 1000)
	alsoEven := team(domain.Team2, 1000, 1000)
	assert.Equal(t, 0.05, TeamBalanceBonus(even, alsoEven))

	strong := team(domain.Team1, 1500, 1500)
	weak := team(domain.Team2, 1000, 1000)
	// gap 500 -> penalty -0.05 * (500/200)
	assert.InDelta(t, -0.125, TeamBalanceBonus(strong, weak), 1e-9)
}

func TestMatchSizeMultiplier(t *testing.T) {
	tests := []struct {
		size int
		want float64
	}{
		{2, 0.3},
		{3, 0.5},
		{4, 0.7},
		{5, 1.0},
		{6, 1.0},
		{10, 1.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchSizeMultiplier(tt.size))
	}
}

func TestChangeForNewPlayerWinningEvenMatch(t *testing.T) {
	// 5v5 between equal-average teams, neutral performance: k=40,
	// expected=0.5, delta = 40*0.5*(1+0.05) = 21.
	playerTeam := team(domain.Team1, 1000, 1000, 1000, 1000, 1000)
	opponents := team(domain.Team2, 1000, 1000, 1000, 1000, 1000)
	p := &playerTeam.Players[0]

	change := ChangeFor(p, playerTeam, opponents, domain.ResultWin, 0.5)

	assert.Equal(t, 1000, change.OldRating)
	assert.Equal(t, 1021, change.NewRating)
	assert.Equal(t, 21, change.Delta)
	assert.Equal(t, 0.5, change.ExpectedScore)
	assert.Equal(t, 1.0, change.ActualScore)
	assert.Equal(t, 40.0, change.KFactor)
}

func TestChangeForRatingNeverNegative(t *testing.T) {
	playerTeam := team(domain.Team1, 5, 5)
	opponents := team(domain.Team2, 5, 5)
	p := &playerTeam.Players[0]

	change := ChangeFor(p, playerTeam, opponents, domain.ResultLoss, 0.5)

	assert.Equal(t, 0, change.NewRating)
	assert.Equal(t, -5, change.Delta)
}

func TestChangeForDeltaClamped(t *testing.T) {
	// Every delta stays within ±2k scaled by the match size multiplier.
	teams := []struct {
		player   *domain.Team
		opponent *domain.Team
	}{
		{team(domain.Team1, 2500, 2500, 2500), team(domain.Team2, 100, 100, 100)},
		{team(domain.Team1, 100, 100, 100), team(domain.Team2, 2500, 2500, 2500)},
	}
	for _, tc := range teams {
		for _, result := range []domain.MatchResult{domain.ResultWin, domain.ResultLoss} {
			p := &tc.player.Players[0]
			change := ChangeFor(p, tc.player, tc.opponent, result, 0.9)
			limit := 2 * change.KFactor * MatchSizeMultiplier(len(tc.player.Players))
			assert.LessOrEqual(t, math.Abs(float64(change.NewRating-change.OldRating)), limit+0.5)
		}
	}
}

func TestMatchResultsSplitsWinnersAndLosers(t *testing.T) {
	teamA := team(domain.Team1, 1100, 1000, 900)
	teamB := team(domain.Team2, 1050, 1000, 950)

	changes := MatchResults(teamA, teamB, domain.Team1, nil)
	require.Len(t, changes, 6)

	for i, c := range changes {
		if i < 3 {
			assert.Equal(t, 1.0, c.ActualScore, "team1 players won")
			assert.GreaterOrEqual(t, c.Delta, 0)
		} else {
			assert.Equal(t, 0.0, c.ActualScore, "team2 players lost")
			assert.LessOrEqual(t, c.Delta, 0)
		}
	}
}

func TestMatchResultsUsesPerformanceMap(t *testing.T) {
	teamA := team(domain.Team1, 1000, 1000)
	teamB := team(domain.Team2, 1000, 1000)

	perf := map[string]float64{
		teamA.Players[0].ID: 0.9, // high performer gets the bonus
	}
	changes := MatchResults(teamA, teamB, domain.Team1, perf)

	var boosted, neutral Change
	for _, c := range changes {
		switch c.PlayerID {
		case teamA.Players[0].ID:
			boosted = c
		case teamA.Players[1].ID:
			neutral = c
		}
	}
	assert.Greater(t, boosted.Delta, neutral.Delta)
}

func TestPercentile(t *testing.T) {
	all := []domain.Player{
		{ID: "a", Rating: 900},
		{ID: "b", Rating: 1000},
		{ID: "c", Rating: 1100},
		{ID: "d", Rating: 1200},
	}
	assert.Equal(t, 75.0, Percentile(&all[3], all))
	assert.Equal(t, 0.0, Percentile(&all[0], all))
	assert.Equal(t, 0.0, Percentile(&domain.Player{Rating: 1500}, nil))
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		games int
		want  float64
	}{
		{0, 0.3},
		{9, 0.3},
		{10, 0.6},
		{29, 0.6},
		{30, 0.8},
		{99, 0.8},
		{100, 0.95},
		{500, 0.95},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Confidence(&domain.Player{GamesPlayed: tt.games}))
	}
}
