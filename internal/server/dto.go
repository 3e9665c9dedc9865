package server

import (
	"time"

	"inhouse-queue/internal/balance"
	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/rating"
	"inhouse-queue/internal/service"
)

type playerResponse struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"displayName"`
	Rating         int      `json:"rating"`
	Wins           int      `json:"wins"`
	Losses         int      `json:"losses"`
	GamesPlayed    int      `json:"gamesPlayed"`
	CurrentStreak  int      `json:"currentStreak"`
	BestStreak     int      `json:"bestStreak"`
	PreferredRoles []string `json:"preferredRoles"`
	LastMatchAt    string   `json:"lastMatchAt,omitempty"`
}

type poolResponse struct {
	ID            string           `json:"id"`
	Capacity      int              `json:"capacity"`
	Status        string           `json:"status"`
	Players       []playerResponse `json:"players"`
	Ready         bool             `json:"ready"`
	FlexibleReady bool             `json:"flexibleReady"`
	CreatedAt     string           `json:"createdAt"`
	StartedAt     string           `json:"startedAt,omitempty"`
	EndedAt       string           `json:"endedAt,omitempty"`
}

type teamResponse struct {
	ID            string           `json:"id"`
	Players       []playerResponse `json:"players"`
	TotalRating   int              `json:"totalRating"`
	AverageRating float64          `json:"averageRating"`
}

type formedMatchResponse struct {
	MatchID string        `json:"matchId"`
	PoolID  string        `json:"poolId"`
	Team1   teamResponse  `json:"team1"`
	Team2   teamResponse  `json:"team2"`
	Stats   balance.Stats `json:"balanceStats"`
}

type ratingChangeResponse struct {
	PlayerID      string  `json:"playerId"`
	OldRating     int     `json:"oldRating"`
	NewRating     int     `json:"newRating"`
	Delta         int     `json:"delta"`
	ExpectedScore float64 `json:"expectedScore"`
	ActualScore   float64 `json:"actualScore"`
	KFactor       float64 `json:"kFactor"`
}

type historyResponse struct {
	OldRating int    `json:"oldRating"`
	NewRating int    `json:"newRating"`
	Delta     int    `json:"delta"`
	MatchID   string `json:"matchId"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"createdAt"`
}

type playerStatsResponse struct {
	playerResponse
	WinRate    float64           `json:"winRate"`
	Percentile float64           `json:"percentile"`
	Confidence float64           `json:"confidence"`
	History    []historyResponse `json:"history"`
}

type leaderboardRowResponse struct {
	Rank       int     `json:"rank"`
	Percentile float64 `json:"percentile"`
	WinRate    float64 `json:"winRate"`
	playerResponse
}

func toPlayerResponse(p *domain.Player) playerResponse {
	roles := p.PreferredRoles
	if roles == nil {
		roles = []string{}
	}
	resp := playerResponse{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Rating:         p.Rating,
		Wins:           p.Wins,
		Losses:         p.Losses,
		GamesPlayed:    p.GamesPlayed,
		CurrentStreak:  p.CurrentStreak,
		BestStreak:     p.BestStreak,
		PreferredRoles: roles,
	}
	if !p.LastMatchAt.IsZero() {
		resp.LastMatchAt = p.LastMatchAt.Format(time.RFC3339)
	}
	return resp
}

func toPoolResponse(pool *domain.Pool) poolResponse {
	players := make([]playerResponse, len(pool.Players))
	for i := range pool.Players {
		players[i] = toPlayerResponse(&pool.Players[i])
	}
	resp := poolResponse{
		ID:        pool.ID,
		Capacity:  pool.Capacity,
		Status:    string(pool.Status),
		Players:   players,
		CreatedAt: pool.CreatedAt.Format(time.RFC3339),
	}
	if pool.StartedAt != nil {
		resp.StartedAt = pool.StartedAt.Format(time.RFC3339)
	}
	if pool.EndedAt != nil {
		resp.EndedAt = pool.EndedAt.Format(time.RFC3339)
	}
	return resp
}

func toTeamResponse(t *domain.Team) teamResponse {
	players := make([]playerResponse, len(t.Players))
	for i := range t.Players {
		players[i] = toPlayerResponse(&t.Players[i])
	}
	return teamResponse{
		ID:            string(t.ID),
		Players:       players,
		TotalRating:   t.TotalRating(),
		AverageRating: t.AverageRating(),
	}
}

func toFormedMatchResponse(f *service.FormedMatch) formedMatchResponse {
	return formedMatchResponse{
		MatchID: f.Match.ID,
		PoolID:  f.Match.PoolID,
		Team1:   toTeamResponse(f.Team1),
		Team2:   toTeamResponse(f.Team2),
		Stats:   f.Stats,
	}
}

func toChangesResponse(changes []rating.Change) []ratingChangeResponse {
	out := make([]ratingChangeResponse, len(changes))
	for i, c := range changes {
		out[i] = ratingChangeResponse{
			PlayerID:      c.PlayerID,
			OldRating:     c.OldRating,
			NewRating:     c.NewRating,
			Delta:         c.Delta,
			ExpectedScore: c.ExpectedScore,
			ActualScore:   c.ActualScore,
			KFactor:       c.KFactor,
		}
	}
	return out
}

func toPlayerStatsResponse(stats *service.PlayerStats) playerStatsResponse {
	history := make([]historyResponse, len(stats.History))
	for i, h := range stats.History {
		history[i] = historyResponse{
			OldRating: h.OldRating,
			NewRating: h.NewRating,
			Delta:     h.Delta,
			MatchID:   h.MatchID,
			Reason:    h.Reason,
			CreatedAt: h.CreatedAt.Format(time.RFC3339),
		}
	}
	return playerStatsResponse{
		playerResponse: toPlayerResponse(stats.Player),
		WinRate:        stats.WinRate,
		Percentile:     stats.Percentile,
		Confidence:     stats.Confidence,
		History:        history,
	}
}

func toLeaderboardResponse(rows []service.LeaderboardRow) []leaderboardRowResponse {
	out := make([]leaderboardRowResponse, len(rows))
	for i, row := range rows {
		out[i] = leaderboardRowResponse{
			Rank:           row.Rank,
			Percentile:     row.Percentile,
			WinRate:        row.WinRate,
			playerResponse: toPlayerResponse(&row.Player),
		}
	}
	return out
}

func toPlayersResponse(players []domain.Player) []playerResponse {
	out := make([]playerResponse, len(players))
	for i := range players {
		out[i] = toPlayerResponse(&players[i])
	}
	return out
}
