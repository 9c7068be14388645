package api

import (
	"net/http"
	"strconv"
)

// RewardsHandler handles reward history and analytics requests.
type RewardsHandler struct {
	deps     RewardsProvider
	maxLimit int
}

// NewRewardsHandler creates a new rewards handler.
func NewRewardsHandler(deps RewardsProvider, maxLimit int) *RewardsHandler {
	if maxLimit < 1 {
		maxLimit = 10
	}
	return &RewardsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetRewards handles GET /rewards[?limit=N], newest first.
func (h *RewardsHandler) HandleGetRewards(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rewards"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", newKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	entries := h.deps.Rewards()
	if len(entries) > n {
		entries = entries[:n]
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetAnalytics handles GET /analytics.
func (h *RewardsHandler) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Analytics())
}
