// Package repository ranks users of the detection service by their points.
package repository

import "context"

// Entry is one leaderboard row.
type Entry struct {
	Rank   int
	UserID string
	// Points is the progress toward the next reward; it drops to zero when
	// a reward is earned.
	Points  int
	Total   int
	Rewards int
}

// Store provides read/write access to the ranking state.
type Store interface {
	// Put replaces the standing of e.UserID. Rank is ignored.
	Put(ctx context.Context, e Entry) error

	// Rank returns the current standing of a user.
	// Returns ErrNotFound if the user is unknown.
	Rank(ctx context.Context, userID string) (Entry, error)

	// TopN returns the top-N entries ordered by points desc, then user id.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of users tracked.
	Count(ctx context.Context) int
}
