package replay

import (
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/smileboard/internal/domain/model"
)

// Point range for generated smiles.
const (
	minPoints = 1
	maxPoints = 10
)

// Generate builds n results with unique request ids. Streaks count
// consecutive smiles and reset on a miss, matching the detection service.
func Generate(n int, smileRatio, duplicateRate float64, rnd *rand.Rand) []Result {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // test data
	}
	out := make([]Result, n)
	streak := 0
	for i := range out {
		r := model.DetectionResult{}
		if rnd.Float64() < smileRatio {
			streak++
			r.SmileDetected = true
			r.Confidence = 0.5 + rnd.Float64()/2
			r.PointsAwarded = minPoints + rnd.IntN(maxPoints-minPoints+1)
		} else {
			streak = 0
			r.Confidence = rnd.Float64() / 2
		}
		r.CurrentStreak = streak
		out[i] = Result{
			RequestID:       uuid.NewString(),
			DetectionResult: r,
			Duplicate:       rnd.Float64() < duplicateRate,
		}
	}
	return out
}

// ExpectedDelta returns the score increase results should cause once each
// request id is applied exactly once.
func ExpectedDelta(results []Result) int {
	total := 0
	for _, r := range results {
		if r.SmileDetected {
			total += r.PointsAwarded
		}
	}
	return total
}
