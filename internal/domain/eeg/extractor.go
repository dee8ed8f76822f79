package eeg

import "github.com/okian/bci/pkg/metrics"

// Snapshotter is anything that can hand out its newest n samples.
type Snapshotter interface {
	LastN(n int) Epoch
}

// Extract takes the newest n samples from src. Paradigm code reaches the
// buffer only through this call.
func Extract(src Snapshotter, n int) Epoch {
	ep := src.LastN(n)
	metrics.RecordEpochCaptured(ep.Tag())
	return ep
}
