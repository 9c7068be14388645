package repository

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrEmptyUser    = errors.New("user id is empty")
)
