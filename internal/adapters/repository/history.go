package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/bci/internal/domain/model"
	"github.com/okian/bci/pkg/metrics"
)

const defaultHistoryCapacity = 256

// History is a bounded in-memory ring of decisions. Once full the oldest
// decision is overwritten.
type History struct {
	mu       sync.RWMutex
	capacity int
	ring     []model.Decision
	next     int
	total    int
}

var _ Store = (*History)(nil)

// NewHistory creates an empty history.
func NewHistory(opts ...Option) *History {
	h := &History{capacity: defaultHistoryCapacity}
	for _, opt := range opts {
		opt(h)
	}
	h.ring = make([]model.Decision, 0, h.capacity)
	return h
}

// Record appends d, copying its path.
func (h *History) Record(_ context.Context, d model.Decision) error {
	d.Path = append([]string(nil), d.Path...)

	h.mu.Lock()
	if len(h.ring) < h.capacity {
		h.ring = append(h.ring, d)
	} else {
		h.ring[h.next] = d
	}
	h.next = (h.next + 1) % h.capacity
	h.total++
	h.mu.Unlock()

	metrics.RecordDecision()
	return nil
}

// Recent returns up to n decisions, newest first.
func (h *History) Recent(_ context.Context, n int) ([]model.Decision, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.ring) {
		n = len(h.ring)
	}
	out := make([]model.Decision, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out, nil
}

// Count returns the number of decisions ever recorded.
func (h *History) Count(context.Context) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Len returns the number of decisions retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ring)
}
