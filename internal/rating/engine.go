package rating

import (
	"math"

	"inhouse-queue/internal/domain"
)

const (
	// K-factor tiers by games played
	KFactorBase    = 32
	KFactorNewbie  = 40 // < 30 games, converge faster
	KFactorVeteran = 16 // > 100 games, stable

	KFactorMin = 16.0
	KFactorMax = 40.0

	// Rating-based K scaling
	HighRatingThreshold = 2000
	LowRatingThreshold  = 800
	HighRatingScale     = 0.8
	LowRatingScale      = 1.2

	InitialRating = 1000
	RatingFloor   = 0

	// Streak bonus: kicks in at 3 consecutive wins, capped at +30%
	StreakThreshold = 3
	StreakStep      = 0.1
	StreakCap       = 0.3

	// Performance bonus thresholds on the [0,1] performance score
	PerformanceHigh  = 0.7
	PerformanceLow   = 0.3
	PerformanceBonus = 0.1

	// Team balance bonus relative to the max tolerated rating gap
	BalanceGapLimit = 200.0
	BalanceBonus    = 0.05

	// Team sizes below this carry too much outcome variance to rate
	MinRatedTeamSize = 2
)

// Change is the per-player outcome of a finalized match.
type Change struct {
	PlayerID      string
	OldRating     int
	NewRating     int
	Delta         int
	ExpectedScore float64
	ActualScore   float64
	KFactor       float64
}

// ExpectedScore returns the logistic win expectation for the (a, b) rating
// pairing: 1 / (1 + 10^((a-b)/400)). Evaluate once per side; the two sides
// always sum to 1.
func ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (a-b)/400.0))
}

// KFactor returns the rating sensitivity for a player: 40 while converging,
// 16 once established, scaled down at high rating and up at low rating,
// clamped to [16, 40].
func KFactor(p *domain.Player) float64 {
	k := float64(KFactorBase)
	switch {
	case p.GamesPlayed < 30:
		k = KFactorNewbie
	case p.GamesPlayed > 100:
		k = KFactorVeteran
	}

	if p.Rating > HighRatingThreshold {
		k *= HighRatingScale
	} else if p.Rating < LowRatingThreshold {
		k *= LowRatingScale
	}

	return clamp(k, KFactorMin, KFactorMax)
}

// StreakBonus rewards win streaks of three or more, capped at 30%.
func StreakBonus(p *domain.Player) float64 {
	if p.CurrentStreak < StreakThreshold {
		return 0
	}
	return math.Min(StreakCap, float64(p.CurrentStreak-2)*StreakStep)
}

// PerformanceModifier converts a caller-supplied in-match quality signal in
// [0,1] into a flat bonus or penalty.
func PerformanceModifier(score float64) float64 {
	switch {
	case score > PerformanceHigh:
		return PerformanceBonus
	case score < PerformanceLow:
		return -PerformanceBonus
	}
	return 0
}

// TeamBalanceBonus rewards playing a fair match and penalizes lopsided ones,
// independent of the individual player's own rating.
func TeamBalanceBonus(teamA, teamB *domain.Team) float64 {
	diff := math.Abs(teamA.AverageRating() - teamB.AverageRating())
	if diff > BalanceGapLimit {
		return -BalanceBonus * (diff / BalanceGapLimit)
	}
	return BalanceBonus
}

// MatchSizeMultiplier weights the rating movement by team size; smaller
// matches carry less weight because outcome variance is higher. Sizes above
// five are full weight. Sizes below two are rejected upstream at formation
// time, before any rating math runs.
func MatchSizeMultiplier(teamSize int) float64 {
	switch teamSize {
	case 2:
		return 0.3
	case 3:
		return 0.5
	case 4:
		return 0.7
	case 5:
		return 1.0
	}
	return 1.0
}

// ChangeFor computes one player's rating movement for a finished match.
// performance defaults to 0.5 (neutral) when the caller has no signal.
func ChangeFor(p *domain.Player, playerTeam, opponentTeam *domain.Team, result domain.MatchResult, performance float64) Change {
	actual := 0.0
	if result == domain.ResultWin {
		actual = 1.0
	}

	k := KFactor(p)
	expected := ExpectedScore(playerTeam.AverageRating(), opponentTeam.AverageRating())

	base := k * (actual - expected)
	modified := base * (1 + StreakBonus(p) + PerformanceModifier(performance) + TeamBalanceBonus(playerTeam, opponentTeam))
	modified = clamp(modified, -2*k, 2*k)
	modified *= MatchSizeMultiplier(len(playerTeam.Players))

	newRating := p.Rating + int(math.Round(modified))
	if newRating < RatingFloor {
		newRating = RatingFloor
	}

	return Change{
		PlayerID:      p.ID,
		OldRating:     p.Rating,
		NewRating:     newRating,
		Delta:         newRating - p.Rating,
		ExpectedScore: expected,
		ActualScore:   actual,
		KFactor:       k,
	}
}

// MatchResults applies ChangeFor to every player on both teams. This is the
// sole entry point the ledger uses. performanceByPlayer may be nil or
// partial; missing players get the neutral 0.5.
func MatchResults(teamA, teamB *domain.Team, winner domain.TeamID, performanceByPlayer map[string]float64) []Change {
	changes := make([]Change, 0, len(teamA.Players)+len(teamB.Players))

	resultFor := func(id domain.TeamID) domain.MatchResult {
		if id == winner {
			return domain.ResultWin
		}
		return domain.ResultLoss
	}

	for i := range teamA.Players {
		p := &teamA.Players[i]
		changes = append(changes, ChangeFor(p, teamA, teamB, resultFor(teamA.ID), performanceOf(performanceByPlayer, p.ID)))
	}
	for i := range teamB.Players {
		p := &teamB.Players[i]
		changes = append(changes, ChangeFor(p, teamB, teamA, resultFor(teamB.ID), performanceOf(performanceByPlayer, p.ID)))
	}

	return changes
}

func performanceOf(scores map[string]float64, playerID string) float64 {
	if s, ok := scores[playerID]; ok {
		return s
	}
	return 0.5
}

// Percentile reports the share of the population the player outranks.
func Percentile(p *domain.Player, all []domain.Player) float64 {
	if len(all) == 0 {
		return 0
	}
	below := 0
	for i := range all {
		if all[i].Rating < p.Rating {
			below++
		}
	}
	return float64(below) / float64(len(all)) * 100
}

// Confidence is a monotonic step function of games played; it reflects how
// settled the rating estimate is and never feeds back into the rating itself.
func Confidence(p *domain.Player) float64 {
	switch {
	case p.GamesPlayed < 10:
		return 0.3
	case p.GamesPlayed < 30:
		return 0.6
	case p.GamesPlayed < 100:
		return 0.8
	}
	return 0.95
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
