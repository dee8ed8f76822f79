package source

import "errors"

var (
	// ErrStopTimeout is returned when the producer goroutine does not exit
	// before the stop deadline.
	ErrStopTimeout = errors.New("producer did not stop in time")

	// ErrClosed is returned when a stopped stream is started again.
	ErrClosed = errors.New("stream closed")

	// ErrBadFrame marks a device frame that failed header or footer checks.
	ErrBadFrame = errors.New("malformed device frame")

	// ErrNoChannels is returned when a reader is configured without channels.
	ErrNoChannels = errors.New("no channels configured")
)
