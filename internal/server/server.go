package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"inhouse-queue/internal/domain"
	"inhouse-queue/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// QueueServer is the HTTP surface over the matchmaking core. Handlers are
// thin: decode, delegate, encode. All domain decisions live in the services.
type QueueServer struct {
	queueSvc  *service.QueueService
	ledgerSvc *service.LedgerService
	statsSvc  *service.StatsService
	logger    zerolog.Logger
}

func NewQueueServer(queueSvc *service.QueueService, ledgerSvc *service.LedgerService, statsSvc *service.StatsService, logger zerolog.Logger) *QueueServer {
	return &QueueServer{queueSvc: queueSvc, ledgerSvc: ledgerSvc, statsSvc: statsSvc, logger: logger}
}

func (s *QueueServer) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/pools", s.handleCreatePool).Methods(http.MethodPost)
	api.HandleFunc("/pools/active", s.handleActivePool).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}", s.handleGetPool).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}", s.handleCancelPool).Methods(http.MethodDelete)
	api.HandleFunc("/pools/{id}/players", s.handleAddPlayer).Methods(http.MethodPost)
	api.HandleFunc("/pools/{id}/players/{playerId}", s.handleRemovePlayer).Methods(http.MethodDelete)
	api.HandleFunc("/pools/{id}/teams", s.handleFormTeams).Methods(http.MethodPost)

	api.HandleFunc("/matches/{id}/finish", s.handleFinishMatch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/players/{playerId}/performance", s.handleSetPerformance).Methods(http.MethodPost)

	api.HandleFunc("/players", s.handlePlayersBetween).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", s.handlePlayerStats).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/reset", s.handleResetPlayer).Methods(http.MethodPost)
	api.HandleFunc("/players/{id}/roles", s.handleSetRoles).Methods(http.MethodPut)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)

	return r
}

type createPoolRequest struct {
	Capacity int `json:"capacity"`
}

func (s *QueueServer) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pool, err := s.queueSvc.CreatePool(r.Context(), req.Capacity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPoolResponse(pool))
}

func (s *QueueServer) handleActivePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.queueSvc.ActivePool(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pool == nil {
		writeError(w, r, domain.ErrPoolNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPoolResponse(pool))
}

func (s *QueueServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.queueSvc.GetPool(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := toPoolResponse(pool)
	resp.Ready = s.queueSvc.IsReady(pool)
	resp.FlexibleReady = s.queueSvc.CanFormFlexible(pool)
	writeJSON(w, http.StatusOK, resp)
}

func (s *QueueServer) handleCancelPool(w http.ResponseWriter, r *http.Request) {
	if err := s.queueSvc.CancelPool(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addPlayerRequest struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

func (s *QueueServer) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	var req addPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "playerId is required"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.PlayerID
	}
	pool, err := s.queueSvc.AddPlayer(r.Context(), mux.Vars(r)["id"], req.PlayerID, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolResponse(pool))
}

func (s *QueueServer) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	admin := r.URL.Query().Get("admin") == "true"
	pool, err := s.queueSvc.RemovePlayer(r.Context(), vars["id"], vars["playerId"], admin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolResponse(pool))
}

type formTeamsRequest struct {
	Flexible      bool     `json:"flexible"`
	RequiredRoles []string `json:"requiredRoles"`
}

func (s *QueueServer) handleFormTeams(w http.ResponseWriter, r *http.Request) {
	var req formTeamsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	formed, err := s.queueSvc.FormTeams(r.Context(), mux.Vars(r)["id"], service.FormOptions{
		Flexible:      req.Flexible,
		RequiredRoles: req.RequiredRoles,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFormedMatchResponse(formed))
}

type finishMatchRequest struct {
	Winner          string `json:"winner"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *QueueServer) handleFinishMatch(w http.ResponseWriter, r *http.Request) {
	var req finishMatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := s.ledgerSvc.FinishMatch(r.Context(), mux.Vars(r)["id"], domain.TeamID(req.Winner), req.DurationMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChangesResponse(changes))
}

type performanceRequest struct {
	Score float64 `json:"score"`
}

func (s *QueueServer) handleSetPerformance(w http.ResponseWriter, r *http.Request) {
	var req performanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	if err := s.ledgerSvc.SetPerformanceScore(r.Context(), vars["id"], vars["playerId"], req.Score); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *QueueServer) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsSvc.PlayerStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerStatsResponse(stats))
}

func (s *QueueServer) handleResetPlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.statsSvc.ResetPlayer(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRolesRequest struct {
	Roles []string `json:"roles"`
}

func (s *QueueServer) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.queueSvc.SetPreferredRoles(r.Context(), mux.Vars(r)["id"], req.Roles); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *QueueServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.statsSvc.TopPlayers(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardResponse(rows))
}

func (s *QueueServer) handlePlayersBetween(w http.ResponseWriter, r *http.Request) {
	minRating, err := strconv.Atoi(r.URL.Query().Get("min"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "min must be an integer"})
		return
	}
	maxRating, err := strconv.Atoi(r.URL.Query().Get("max"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "max must be an integer"})
		return
	}
	players, err := s.statsSvc.PlayersBetween(r.Context(), minRating, maxRating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayersResponse(players))
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the domain error taxonomy onto HTTP statuses: validation
// failures are 400, state conflicts 409, missing entities 404.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPoolNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidPerformance),
		errors.Is(err, domain.ErrUnsupportedTeamSize):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrPoolFull),
		errors.Is(err, domain.ErrMatchAlreadyForming),
		errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrMatchAlreadyFinished),
		errors.Is(err, domain.ErrPoolNotActive),
		errors.Is(err, domain.ErrInsufficientPlayers):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
