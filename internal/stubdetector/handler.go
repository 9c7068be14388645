package stubdetector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/okian/smileboard/internal/adapters/repository"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
)

// Routes served by Handler.
const (
	DetectPath      = "/api/detect"
	HealthPath      = "/health"
	WSPath          = "/ws"
	LeaderboardPath = "/leaderboard"
)

// DefaultLeaderboardLimit is the row count when ?limit is absent.
const DefaultLeaderboardLimit = 10

// MaxUploadBytes caps multipart uploads.
const MaxUploadBytes = 10 << 20

type errorBody struct {
	Error string `json:"error"`
}

// wsRequest mirrors the frame sent by the websocket client.
type wsRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Image     string `json:"image"`
}

type leaderRow struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Points  int    `json:"points"`
	Total   int    `json:"total"`
	Rewards int    `json:"rewards"`
}

type leaderboardBody struct {
	Users   int         `json:"users"`
	Entries []leaderRow `json:"entries"`
}

func toRow(e repository.Entry) leaderRow {
	return leaderRow{Rank: e.Rank, UserID: e.UserID, Points: e.Points, Total: e.Total, Rewards: e.Rewards}
}

type wsResponse struct {
	RequestID string `json:"request_id"`
	model.DetectionResult
	Error string `json:"error,omitempty"`
}

// Handler serves the detection protocol backed by d.
type Handler struct {
	det      *Detector
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler for d.
func NewHandler(d *Detector, l logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{
		det: d,
		log: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register attaches the detection routes to mux.
func (h *Handler) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc(DetectPath, h.HandleDetect)
	mux.HandleFunc(HealthPath, h.HandleHealth)
	mux.HandleFunc(WSPath, h.HandleWS)
	mux.HandleFunc(LeaderboardPath, h.HandleLeaderboard)
}

// HandleLeaderboard handles GET /leaderboard?limit=N, or ?user=ID for one
// user's standing.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	if user := q.Get("user"); user != "" {
		e, err := h.det.Standing(ctx, user)
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, toRow(e))
		return
	}

	limit := DefaultLeaderboardLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: repository.ErrInvalidLimit.Error()})
			return
		}
		limit = n
	}
	entries, err := h.det.Leaderboard(ctx, limit)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	body := leaderboardBody{Users: h.det.Users(ctx), Entries: make([]leaderRow, 0, len(entries))}
	for _, e := range entries {
		body.Entries = append(body.Entries, toRow(e))
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDetect handles POST /api/detect with a multipart "image" file and
// an optional "user_id" field.
func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form: " + err.Error()})
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrNoImage.Error()})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	res, err := h.det.Evaluate(r.Context(), r.FormValue("user_id"), data)
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleWS upgrades to a websocket and answers one response per request
// frame, tagged with the frame's request id.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	ctx := context.WithoutCancel(r.Context())
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug(ctx, "websocket read ended", logger.Error(err))
			}
			return
		}
		resp := wsResponse{RequestID: req.RequestID}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err == nil {
			resp.DetectionResult, err = h.det.Evaluate(ctx, req.UserID, data)
		}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := conn.WriteJSON(resp); err != nil {
			h.log.Warn(ctx, "websocket write failed", logger.Error(err))
			return
		}
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrNoImage) || errors.Is(err, ErrBadImage) || errors.Is(err, repository.ErrInvalidLimit) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
