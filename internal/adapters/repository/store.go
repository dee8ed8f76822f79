// Package repository keeps the decisions made during a run.
package repository

import (
	"context"

	"github.com/okian/bci/internal/domain/model"
)

// Store records completed decisions.
type Store interface {
	// Record appends a decision.
	Record(ctx context.Context, d model.Decision) error

	// Recent returns up to n decisions, newest first.
	// Returns ErrInvalidLimit when n is not positive.
	Recent(ctx context.Context, n int) ([]model.Decision, error)

	// Count returns the number of decisions recorded since start, including
	// those no longer retained.
	Count(ctx context.Context) int
}
