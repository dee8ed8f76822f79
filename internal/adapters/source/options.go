package source

import (
	"time"

	"github.com/okian/bci/pkg/logger"
)

// Option configures a Stream.
type Option func(*Stream)

// WithName labels the stream in logs and metrics.
func WithName(name string) Option {
	return func(s *Stream) {
		if name != "" {
			s.name = name
		}
	}
}

// WithPacing makes the producer wait interval between reads. Readers that
// block on hardware should use zero.
func WithPacing(interval time.Duration) Option {
	return func(s *Stream) {
		if interval >= 0 {
			s.pacing = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}
