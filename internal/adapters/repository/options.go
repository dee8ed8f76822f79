package repository

// Option applies a configuration option to the History.
type Option func(*History)

// WithCapacity sets how many decisions are retained.
func WithCapacity(capacity int) Option {
	return func(h *History) {
		if capacity > 0 {
			h.capacity = capacity
		}
	}
}
