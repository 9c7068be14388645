// Package stubdetector implements a stand-in for the remote smile detection
// service. It speaks the same wire protocol as the real service and awards
// points with the same rules, but decides "smile" with a seeded coin flip
// instead of looking at the image.
package stubdetector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math/rand/v2"
	"sync"
	"time"

	_ "golang.org/x/image/bmp" // register decoder

	"github.com/okian/smileboard/internal/adapters/repository"
	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
)

// Award rules of the detection service.
const (
	DefaultPointsPerSmile = 10
	DefaultDebounce       = 2 * time.Second
	DefaultProbability    = 0.5

	// DefaultRewardThreshold is the number of points that earns a reward.
	// Reaching it resets the user's points.
	DefaultRewardThreshold = 100
)

type userState struct {
	streak    int
	points    int
	total     int
	rewards   int
	lastSmile time.Time
}

// Detector holds per-user award state.
type Detector struct {
	pointsPerSmile  int
	rewardThreshold int
	debounce        time.Duration
	probability     float64
	rnd             func() float64
	now             func() time.Time
	log             logger.Logger
	board           repository.Store

	mu    sync.Mutex // guards users and orders board writes
	users map[string]*userState
}

// Option configures a Detector.
type Option func(*Detector)

// WithProbability sets the chance that an image counts as a smile.
// Values are clamped to [0, 1].
func WithProbability(p float64) Option {
	return func(d *Detector) {
		d.probability = min(max(p, 0), 1)
	}
}

// WithPointsPerSmile sets the points awarded per accepted smile.
func WithPointsPerSmile(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.pointsPerSmile = n
		}
	}
}

// WithRewardThreshold sets the points at which a user earns a reward.
func WithRewardThreshold(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.rewardThreshold = n
		}
	}
}

// WithBoard sets the store that ranks users.
func WithBoard(s repository.Store) Option {
	return func(d *Detector) {
		if s != nil {
			d.board = s
		}
	}
}

// WithDebounce sets the per-user window in which further smiles earn nothing.
func WithDebounce(window time.Duration) Option {
	return func(d *Detector) {
		if window >= 0 {
			d.debounce = window
		}
	}
}

// WithRand sets the source of uniform values in [0, 1).
func WithRand(f func() float64) Option {
	return func(d *Detector) {
		if f != nil {
			d.rnd = f
		}
	}
}

// WithClock sets the time source used for debouncing.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		pointsPerSmile:  DefaultPointsPerSmile,
		rewardThreshold: DefaultRewardThreshold,
		debounce:        DefaultDebounce,
		probability:     DefaultProbability,
		rnd:             rand.Float64,
		now:             time.Now,
		log:             logger.Nop(),
		users:           make(map[string]*userState),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.board == nil {
		d.board = repository.NewTreapStore()
	}
	return d
}

// Evaluate judges one image for userID and updates that user's streak.
//
// A smile outside the debounce window earns pointsPerSmile and extends the
// streak. A smile inside it is reported with zero points and an unchanged
// streak. A miss resets the streak. Points that reach the reward threshold
// earn a reward and start over from zero.
func (d *Detector) Evaluate(ctx context.Context, userID string, img []byte) (model.DetectionResult, error) {
	if len(img) == 0 {
		return model.DetectionResult{}, ErrNoImage
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		return model.DetectionResult{}, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if userID == "" {
		userID = model.DefaultUser
	}

	roll := d.rnd()
	smiling := roll < d.probability
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		u = &userState{}
		d.users[userID] = u
	}

	res := model.DetectionResult{SmileDetected: smiling, Confidence: d.confidence(roll, smiling)}
	switch {
	case !smiling:
		u.streak = 0
	case u.lastSmile.IsZero() || now.Sub(u.lastSmile) > d.debounce:
		u.streak++
		u.points += d.pointsPerSmile
		u.total += d.pointsPerSmile
		u.lastSmile = now
		res.PointsAwarded = d.pointsPerSmile
		if u.points >= d.rewardThreshold {
			u.rewards++
			d.log.Info(ctx, "user earned a reward",
				logger.String("user", userID),
				logger.Int("points", u.points),
				logger.Int("rewards", u.rewards),
			)
			u.points = 0
		}
	}
	res.CurrentStreak = u.streak

	standing := repository.Entry{UserID: userID, Points: u.points, Total: u.total, Rewards: u.rewards}
	if err := d.board.Put(ctx, standing); err != nil {
		return model.DetectionResult{}, fmt.Errorf("rank %s: %w", userID, err)
	}

	d.log.Debug(ctx, "evaluated image",
		logger.String("user", userID),
		logger.Bool("smile", res.SmileDetected),
		logger.Int("points", res.PointsAwarded),
		logger.Int("streak", res.CurrentStreak),
	)
	return res, nil
}

// Total returns the points userID has earned so far.
func (d *Detector) Total(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		return u.total
	}
	return 0
}

// Standing returns the rank and points of userID.
func (d *Detector) Standing(ctx context.Context, userID string) (repository.Entry, error) {
	return d.board.Rank(ctx, userID)
}

// Leaderboard returns the n best users by current points.
func (d *Detector) Leaderboard(ctx context.Context, n int) ([]repository.Entry, error) {
	return d.board.TopN(ctx, n)
}

// Users returns the number of users seen.
func (d *Detector) Users(ctx context.Context) int { return d.board.Count(ctx) }

// confidence maps roll onto [0.5, 1] for smiles and [0, 0.5) for misses.
func (d *Detector) confidence(roll float64, smiling bool) float64 {
	if smiling {
		return 0.5 + 0.5*(d.probability-roll)/d.probability
	}
	return 0.5 * (1 - roll) / (1 - d.probability)
}
