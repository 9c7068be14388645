package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithPriorities sets the source of treap node priorities. Any source
// gives the same rankings; only the tree shape changes.
func WithPriorities(next func() uint64) Option {
	return func(s *TreapStore) {
		if next != nil {
			s.prio = next
		}
	}
}
