// Package eeg holds the acquisition primitives: samples, epochs, the ring
// buffer they live in and the contract every signal source satisfies.
package eeg

import (
	"context"
	"fmt"
	"time"
)

// Epoch tags.
const (
	TagComplete   = "complete"
	TagZeroPadded = "zero-padded"
)

// Sample is one simultaneous reading of every channel, in microvolts.
type Sample struct {
	Seq    uint64
	Values []float64
}

// Epoch is a channel-major window: Data[channel][time].
type Epoch struct {
	Data [][]float64
	// Padded is set when leading samples were filled with zeros because the
	// buffer did not hold enough history.
	Padded bool
	// FirstSeq is the sequence number of the first real sample in the window.
	FirstSeq uint64
}

// Channels returns the number of channels.
func (e Epoch) Channels() int { return len(e.Data) }

// Len returns the number of samples per channel.
func (e Epoch) Len() int {
	if len(e.Data) == 0 {
		return 0
	}
	return len(e.Data[0])
}

// Channel returns the series for channel i.
func (e Epoch) Channel(i int) ([]float64, error) {
	if i < 0 || i >= len(e.Data) {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrChannelOutOfRange, i, len(e.Data))
	}
	return e.Data[i], nil
}

// Tag reports whether the epoch is complete or zero-padded.
func (e Epoch) Tag() string {
	if e.Padded {
		return TagZeroPadded
	}
	return TagComplete
}

// SamplesFor converts a duration to a sample count at rateHz, truncating.
func SamplesFor(d time.Duration, rateHz float64) int {
	if d <= 0 || rateHz <= 0 {
		return 0
	}
	return int(d.Seconds() * rateHz)
}

// SignalSource is implemented by every acquisition backend.
type SignalSource interface {
	// Start begins acquisition. Calling it on a running source is a no-op.
	Start(ctx context.Context) error
	// Stop halts acquisition and returns once the producer has exited.
	Stop(ctx context.Context) error
	// GetEpoch returns the most recent n samples, zero-padded when short.
	GetEpoch(n int) Epoch
}
