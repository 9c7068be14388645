// Package ledger keeps a bounded, most-recent-first history of rewards.
package ledger

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/okian/smileboard/internal/domain/model"
)

// DefaultCapacity is the number of rewards kept by default.
const DefaultCapacity = 10

// Option configures a Ledger.
type Option func(*Ledger)

// WithCapacity sets how many rewards are retained.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithIDFunc overrides reward id generation.
func WithIDFunc(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// Ledger is a fixed-capacity ring of reward entries. Insertion is O(1);
// once full, each insertion evicts exactly the oldest entry by insertion
// order, regardless of timestamps. Not safe for concurrent use.
type Ledger struct {
	buf      []model.RewardEntry
	capacity int
	next     int // slot the next insertion writes
	size     int
	newID    func() string
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		capacity: DefaultCapacity,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	l.buf = make([]model.RewardEntry, l.capacity)
	return l
}

// RecordIfEligible inserts a reward for result at the front when it is a
// smile. It returns the entry and true when one was recorded.
func (l *Ledger) RecordIfEligible(result model.DetectionResult, now time.Time) (model.RewardEntry, bool) {
	if !result.SmileDetected {
		return model.RewardEntry{}, false
	}
	entry := model.RewardEntry{
		ID:                l.newID(),
		Points:            result.PointsAwarded,
		ConfidencePercent: result.Confidence * 100,
		Streak:            result.CurrentStreak,
		Timestamp:         now,
	}
	l.buf[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	return entry, true
}

// at returns the i-th most recent entry (0 is the newest).
func (l *Ledger) at(i int) model.RewardEntry {
	idx := (l.next - 1 - i + 2*l.capacity) % l.capacity
	return l.buf[idx]
}

// Entries yields entries most-recent-first. The sequence reads the ledger
// as it is when iteration starts and may be ranged over repeatedly.
func (l *Ledger) Entries() iter.Seq[model.RewardEntry] {
	return func(yield func(model.RewardEntry) bool) {
		n := l.size
		for i := 0; i < n; i++ {
			if !yield(l.at(i)) {
				return
			}
		}
	}
}

// Snapshot copies the entries most-recent-first.
func (l *Ledger) Snapshot() []model.RewardEntry {
	out := make([]model.RewardEntry, 0, l.size)
	for e := range l.Entries() {
		out = append(out, e)
	}
	return out
}

// Latest returns the newest entry, if any.
func (l *Ledger) Latest() (model.RewardEntry, bool) {
	if l.size == 0 {
		return model.RewardEntry{}, false
	}
	return l.at(0), true
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int { return l.size }

// Cap returns the ledger capacity.
func (l *Ledger) Cap() int { return l.capacity }

// Reset drops every entry.
func (l *Ledger) Reset() {
	clear(l.buf)
	l.next = 0
	l.size = 0
}
