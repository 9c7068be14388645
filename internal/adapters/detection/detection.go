// Package detection talks to the remote smile detection service.
//
// Two transports are provided: HTTPClient posts multipart uploads to
// /api/detect, WSClient multiplexes requests over one websocket keyed by
// request id. Both satisfy Detector.
package detection

import (
	"context"

	"github.com/okian/smileboard/internal/domain/model"
)

// Detector submits one image and returns the service verdict.
type Detector interface {
	Detect(ctx context.Context, req model.DetectionRequest) (model.DetectionResult, error)
}

// wireResult is the JSON body returned by the service.
type wireResult struct {
	model.DetectionResult
	Error string `json:"error,omitempty"`
}
