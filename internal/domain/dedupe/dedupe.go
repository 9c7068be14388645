// Package dedupe tracks applied request ids so a redelivered detection
// result is applied at most once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 1024

// Deduper records seen request ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later delivery with it is applied again.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps at most maxSize ids, evicting the oldest first.
// A maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // ring of ids in insertion order, bounded mode only
	head    int      // oldest slot in order
	maxSize int
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.order = make([]string, 0, d.maxSize)
	}
	return d
}

// SeenAndRecord never records the empty id.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	if d.maxSize <= 0 {
		return false
	}

	if len(d.order) < d.maxSize {
		d.order = append(d.order, id)
		return false
	}
	// Full: the oldest slot is overwritten. It may hold an unrecorded id ("").
	delete(d.seen, d.order[d.head])
	d.order[d.head] = id
	d.head = (d.head + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	for i, v := range d.order {
		if v == id {
			d.order[i] = ""
			break
		}
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
