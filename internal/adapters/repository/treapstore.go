package repository

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: points DESC, then userID ASC. "less" means ranks earlier, so an
// in-order walk yields the leaderboard from best to worst. Subtree sizes
// make Rank O(log n) expected.

type node struct {
	id     string
	points int
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aPoints int, aID string, bPoints int, bID string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, points int, prio uint64) *node {
	if n == nil {
		return &node{id: id, points: points, prio: prio, size: 1}
	}
	if less(points, id, n.points, n.id) {
		n.left = insert(n.left, id, points, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, points, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, points int) *node {
	if n == nil {
		return nil
	}
	switch {
	case points == n.points && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, points)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, points)
		}
	case less(points, id, n.points, n.id):
		n.left = remove(n.left, id, points)
	default:
		n.right = remove(n.right, id, points)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes hold strictly more than points.
func countAbove(n *node, points int) int {
	count := 0
	for n != nil {
		if n.points > points {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, byID map[string]Entry, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		*out = append(*out, byID[n.id])
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

// TreapStore implements Store.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]Entry
	prio func() uint64
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]Entry),
		prio: rand.Uint64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements Store.Put in O(log n) expected time.
func (s *TreapStore) Put(_ context.Context, e Entry) error {
	if e.UserID == "" {
		return ErrEmptyUser
	}
	e.Rank = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[e.UserID]; ok {
		s.byID[e.UserID] = e
		if old.Points == e.Points {
			return nil
		}
		s.root = remove(s.root, e.UserID, old.Points)
	} else {
		s.byID[e.UserID] = e
	}
	s.root = insert(s.root, e.UserID, e.Points, s.prio())
	return nil
}

// Rank returns the standing of userID. Users with equal points share a
// rank and the next rank skips accordingly (1, 1, 3).
func (s *TreapStore) Rank(_ context.Context, userID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[userID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Rank = 1 + countAbove(s.root, e.Points)
	return e, nil
}

// TopN returns the top n entries with ranks assigned as in Rank.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	assignRanks(out)
	return out, nil
}

// Count returns the number of users.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// assignRanks numbers a prefix of the leaderboard.
func assignRanks(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
