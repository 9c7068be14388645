// Package model contains domain values passed between layers.
package model

import "time"

// DefaultUser is used when no user identifier is supplied at login.
const DefaultUser = "guest"

// DetectionResult is one outcome reported by the detection service.
// Field tags mirror the service's JSON payload.
type DetectionResult struct {
	SmileDetected bool    `json:"smile_detected"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
	PointsAwarded int     `json:"points_awarded" validate:"gte=0"`
	CurrentStreak int     `json:"current_streak" validate:"gte=0"`
}

// RewardEntry records points awarded for one detected smile. Immutable once created.
type RewardEntry struct {
	ID                string    `json:"id"`
	Points            int       `json:"points"`
	ConfidencePercent float64   `json:"confidence_percent"`
	Streak            int       `json:"streak"`
	Timestamp         time.Time `json:"timestamp"`
}

// ScoreState is the cumulative score and current streak of a session.
type ScoreState struct {
	TotalScore    int `json:"total_score"`
	CurrentStreak int `json:"current_streak"`
}
