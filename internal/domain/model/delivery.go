package model

import "time"

// Source identifies what produced the image behind a detection request.
type Source string

const (
	SourceFrame  Source = "frame"
	SourceFile   Source = "file"
	SourceDirect Source = "direct"
)

// Image is an encoded image ready for submission.
type Image struct {
	Data        []byte
	ContentType string
	Name        string
}

// Delivery is one asynchronous outcome of a detection request. Exactly one
// of Result or Err is meaningful: a non-nil Err means the request failed.
// Epoch is the number of capture stops that preceded the request.
type Delivery struct {
	RequestID string
	Source    Source
	Epoch     uint64
	Result    DetectionResult
	Err       error
	Issued    time.Time
	Delivered time.Time
}

// Failed reports whether the request behind d failed.
func (d Delivery) Failed() bool { return d.Err != nil }

// DetectionRequest is one submission to the detection service.
type DetectionRequest struct {
	ID     string
	UserID string
	Image  Image
}
