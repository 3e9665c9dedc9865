package domain

import (
	"time"
)

type PoolStatus string

const (
	PoolWaiting   PoolStatus = "waiting"
	PoolForming   PoolStatus = "forming"
	PoolCompleted PoolStatus = "completed"
	PoolCancelled PoolStatus = "cancelled"
)

// Terminal reports whether the pool can no longer change.
func (s PoolStatus) Terminal() bool {
	return s == PoolCompleted || s == PoolCancelled
}

type TeamID string

const (
	Team1 TeamID = "team1"
	Team2 TeamID = "team2"
)

type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLoss MatchResult = "loss"
)

type Player struct {
	ID             string
	DisplayName    string
	Rating         int
	Wins           int
	Losses         int
	GamesPlayed    int
	CurrentStreak  int
	BestStreak     int
	PreferredRoles []string
	LastMatchAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PrefersRole tests role membership; PreferredRoles is a set, order carries
// no meaning.
func (p *Player) PrefersRole(role string) bool {
	for _, r := range p.PreferredRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (p *Player) WinRate() float64 {
	if p.GamesPlayed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.GamesPlayed)
}

type Pool struct {
	ID        string
	Capacity  int
	Status    PoolStatus
	Players   []Player // join order preserved
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

func (p *Pool) HasPlayer(playerID string) bool {
	for _, m := range p.Players {
		if m.ID == playerID {
			return true
		}
	}
	return false
}

// Team is ephemeral balancer output; membership is snapshotted into
// match_players rows rather than persisted standalone.
type Team struct {
	ID      TeamID
	Players []Player
}

func (t *Team) TotalRating() int {
	total := 0
	for _, p := range t.Players {
		total += p.Rating
	}
	return total
}

func (t *Team) AverageRating() float64 {
	if len(t.Players) == 0 {
		return 0
	}
	return float64(t.TotalRating()) / float64(len(t.Players))
}

type Match struct {
	ID              string
	PoolID          string
	Winner          TeamID // empty until finalized
	Team1Score      int
	Team2Score      int
	DurationMinutes int
	CreatedAt       time.Time
	EndedAt         *time.Time
}

func (m *Match) Finished() bool {
	return m.Winner != ""
}

type MatchPlayer struct {
	MatchID          string
	PlayerID         string
	Team             TeamID
	Result           MatchResult // empty until finalized
	Role             string
	PerformanceScore float64 // [0,1], 0.5 when unreported
	RatingDelta      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RatingHistory rows are append-only; written once per player per finished
// match and never mutated.
type RatingHistory struct {
	ID        string // nanoid
	PlayerID  string
	OldRating int
	NewRating int
	Delta     int
	MatchID   string
	Reason    string
	CreatedAt time.Time
}
