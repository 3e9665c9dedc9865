package balance

import (
	"fmt"
	"math"
	"sort"

	"inhouse-queue/internal/domain"
)

const (
	// Weighted objective: rating parity dominates, role parity refines.
	WeightRating = 0.7
	WeightRoles  = 0.3

	// MaxRatingDiff is the average-rating gap at which the rating component
	// of the score bottoms out, and the threshold for IsBalanced.
	MaxRatingDiff = 200.0

	roleSpreadScale = 5.0
)

// Stats captures how well-matched two formed teams are. Read-only
// diagnostics; no side effects on the teams.
type Stats struct {
	RatingDifference float64  `json:"ratingDifference"`
	BalanceScore     float64  `json:"balanceScore"`
	IsBalanced       bool     `json:"isBalanced"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// Balance partitions players into two equal teams of teamSize, minimizing
// rating and role imbalance. teamSize <= 0 defaults to len(players)/2.
// Deterministic given a stable input ordering: ties in the rating sort keep
// the callers' (join) order.
//
// Two phases: an alternating greedy seed over the rating-sorted pool, then
// pairwise-swap hill climbing until a full pass yields no improving swap.
// The objective is bounded above and strictly increases on every retained
// swap, so the climb terminates.
func Balance(players []domain.Player, teamSize int) (*domain.Team, *domain.Team, error) {
	if teamSize <= 0 {
		teamSize = len(players) / 2
	}
	if len(players) < teamSize*2 {
		return nil, nil, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientPlayers, len(players), teamSize*2)
	}

	pool := make([]domain.Player, len(players))
	copy(pool, players)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Rating > pool[j].Rating
	})
	pool = pool[:teamSize*2]

	team1 := &domain.Team{ID: domain.Team1}
	team2 := &domain.Team{ID: domain.Team2}
	for i, p := range pool {
		if i%2 == 0 {
			team1.Players = append(team1.Players, p)
		} else {
			team2.Players = append(team2.Players, p)
		}
	}

	refine(team1, team2)
	return team1, team2, nil
}

// BalanceWithRequiredRoles first covers each required role on both teams,
// alternating assignments and favoring higher-rated candidates, then
// distributes the remainder through the usual seed-and-refine procedure.
// Refinement only touches the remainder: seeded role holders stay on the
// team they were assigned to.
func BalanceWithRequiredRoles(players []domain.Player, requiredRoles []string, teamSize int) (*domain.Team, *domain.Team, error) {
	if teamSize <= 0 {
		teamSize = len(players) / 2
	}
	if len(players) < teamSize*2 {
		return nil, nil, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientPlayers, len(players), teamSize*2)
	}

	pool := make([]domain.Player, len(players))
	copy(pool, players)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Rating > pool[j].Rating
	})
	pool = pool[:teamSize*2]

	team1 := &domain.Team{ID: domain.Team1}
	team2 := &domain.Team{ID: domain.Team2}
	assigned := make(map[string]bool)

	pinned := 0
	firstToTeam1 := true
	for _, role := range requiredRoles {
		var picks []int
		for i := range pool {
			if assigned[pool[i].ID] || !pool[i].PrefersRole(role) {
				continue
			}
			picks = append(picks, i)
			if len(picks) == 2 {
				break
			}
		}
		// Both teams get a role holder or neither does; a lone candidate
		// would tilt the split.
		if len(picks) < 2 {
			continue
		}
		if len(team1.Players) >= teamSize || len(team2.Players) >= teamSize {
			break
		}
		a, b := picks[0], picks[1]
		if firstToTeam1 {
			team1.Players = append(team1.Players, pool[a])
			team2.Players = append(team2.Players, pool[b])
		} else {
			team2.Players = append(team2.Players, pool[a])
			team1.Players = append(team1.Players, pool[b])
		}
		firstToTeam1 = !firstToTeam1
		assigned[pool[a].ID] = true
		assigned[pool[b].ID] = true
		pinned++
	}

	for i := range pool {
		if assigned[pool[i].ID] {
			continue
		}
		if len(team1.Players) <= len(team2.Players) && len(team1.Players) < teamSize {
			team1.Players = append(team1.Players, pool[i])
		} else {
			team2.Players = append(team2.Players, pool[i])
		}
	}

	refineFrom(team1, team2, pinned)
	return team1, team2, nil
}

// refine runs pairwise-swap hill climbing: every cross-team pair is tried,
// a swap is kept only when it strictly improves the score, and passes repeat
// until one completes without improvement.
func refine(team1, team2 *domain.Team) {
	refineFrom(team1, team2, 0)
}

// refineFrom climbs over the players at position pin and beyond on both
// teams. Seeded role holders sit below pin and never move, so a rating-driven
// swap cannot undo role coverage.
func refineFrom(team1, team2 *domain.Team, pin int) {
	improved := true
	for improved {
		improved = false
		for i := pin; i < len(team1.Players); i++ {
			for j := pin; j < len(team2.Players); j++ {
				before := Score(team1, team2)
				team1.Players[i], team2.Players[j] = team2.Players[j], team1.Players[i]
				if Score(team1, team2) > before {
					improved = true
				} else {
					team1.Players[i], team2.Players[j] = team2.Players[j], team1.Players[i]
				}
			}
		}
	}
}

// Score is the weighted balance objective in [0,1]; higher is better.
func Score(team1, team2 *domain.Team) float64 {
	return WeightRating*ratingScore(team1, team2) + WeightRoles*roleScore(team1, team2)
}

func ratingScore(team1, team2 *domain.Team) float64 {
	diff := math.Abs(team1.AverageRating() - team2.AverageRating())
	return math.Max(0, 1-diff/MaxRatingDiff)
}

// roleScore compares, per role tag, how many players on each side prefer it.
// Pools with no role preferences at all score perfect parity.
func roleScore(team1, team2 *domain.Team) float64 {
	counts1 := roleCounts(team1)
	counts2 := roleCounts(team2)

	roles := make(map[string]bool)
	for r := range counts1 {
		roles[r] = true
	}
	for r := range counts2 {
		roles[r] = true
	}
	if len(roles) == 0 {
		return 1
	}

	totalDiff := 0.0
	for r := range roles {
		totalDiff += math.Abs(float64(counts1[r] - counts2[r]))
	}
	return math.Max(0, 1-totalDiff/(float64(len(roles))*roleSpreadScale))
}

func roleCounts(t *domain.Team) map[string]int {
	counts := make(map[string]int)
	for i := range t.Players {
		for _, r := range t.Players[i].PreferredRoles {
			counts[r]++
		}
	}
	return counts
}

// GetStats reports diagnostics for two formed teams.
func GetStats(team1, team2 *domain.Team) Stats {
	diff := math.Abs(team1.AverageRating() - team2.AverageRating())
	stats := Stats{
		RatingDifference: diff,
		BalanceScore:     Score(team1, team2),
		IsBalanced:       diff <= MaxRatingDiff,
	}
	if !stats.IsBalanced {
		stats.Recommendations = append(stats.Recommendations,
			fmt.Sprintf("average rating gap %.0f exceeds %.0f, consider waiting for more players", diff, MaxRatingDiff))
	}
	if roleScore(team1, team2) < 0.5 {
		stats.Recommendations = append(stats.Recommendations,
			"role preferences are unevenly split between teams")
	}
	return stats
}
