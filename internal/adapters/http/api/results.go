package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/smileboard/internal/domain/model"
)

// resultRequest is the body of POST /results: a detection result in the
// service wire format plus an optional request id for idempotency.
type resultRequest struct {
	RequestID string `json:"request_id"`
	model.DetectionResult
}

type ackResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// ResultsHandler accepts detection results pushed by an external detector.
type ResultsHandler struct {
	sink     ResultSink
	validate *validator.Validate
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(sink ResultSink) *ResultsHandler {
	return &ResultsHandler{
		sink:     sink,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HandlePostResult handles POST /results requests.
func (h *ResultsHandler) HandlePostResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_result"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req resultRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(req.DetectionResult); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if req.PointsAwarded > 0 && !req.SmileDetected {
		writeError(w, http.StatusBadRequest, "bad_request",
			wrapKind(op, ErrBadRequest, errors.New("points awarded without a smile")))
		return
	}

	now := time.Now()
	h.sink.Deliver(r.Context(), model.Delivery{
		RequestID: req.RequestID,
		Source:    model.SourceDirect,
		Result:    req.DetectionResult,
		Issued:    now,
		Delivered: now,
	})
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", RequestID: req.RequestID})
}
