// Package types contains read shapes shared by the session and its surfaces.
package types

import (
	"fmt"
	"time"
)

// Summary is the analytics view of a session.
type Summary struct {
	User           string  `json:"user"`
	TotalScore     int     `json:"total_score"`
	CurrentStreak  int     `json:"current_streak"`
	SessionTime    string  `json:"session_time"`
	Rewards        int     `json:"rewards"`
	Captures       int     `json:"captures"`
	Uploads        int     `json:"uploads"`
	Failures       int     `json:"failures"`
	LastConfidence float64 `json:"last_confidence"`
	CaptureState   string  `json:"capture_state"`
}

// FormatElapsed renders d as HH:MM:SS, truncating sub-second precision.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
