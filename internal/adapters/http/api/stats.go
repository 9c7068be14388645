package api

import (
	"fmt"
	"net/http"
)

// StatsProvider exposes the session's monitoring snapshot.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsProvider) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats handles GET /stats[?key=name]. With key set only that value
// is returned, as {"name": value}.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := h.deps.GetStats()
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusOK, stats)
		return
	}
	v, ok := stats[key]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_key", wrapKind(op, ErrBadRequest, fmt.Errorf("no stat named %q", key)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{key: v})
}
