// Package api serves the local status surface of a session: health,
// metrics, stats, rewards, and a push endpoint for raw detection results.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider
	RewardsProvider
	ResultSink
}

// Server wires HTTP routes for the status surface.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	rewardsHandler *RewardsHandler
	resultsHandler *ResultsHandler
}

// NewServer creates a new API server with all handlers. maxRewards caps
// the ?limit of GET /rewards.
func NewServer(deps Dependencies, maxRewards int) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		rewardsHandler: NewRewardsHandler(deps, maxRewards),
		resultsHandler: NewResultsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/analytics", MetricsMiddleware(s.rewardsHandler.HandleGetAnalytics, "analytics"))
	mux.HandleFunc("/rewards", MetricsMiddleware(s.rewardsHandler.HandleGetRewards, "rewards"))
	mux.HandleFunc("/results", MetricsMiddleware(s.resultsHandler.HandlePostResult, "results"))
}

// RewardsProvider exposes the session's reward history.
type RewardsProvider interface {
	Rewards() []model.RewardEntry
	Analytics() types.Summary
}

// ResultSink accepts pushed detection outcomes.
type ResultSink interface {
	Deliver(ctx context.Context, d model.Delivery)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
