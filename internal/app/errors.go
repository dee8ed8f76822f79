package service

import "errors"

var (
	// ErrNotStarted is returned by Run before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("service stopped")
	// ErrSpellerDisabled is returned when a speller item is chosen without a listener.
	ErrSpellerDisabled = errors.New("speller is not enabled")
	// ErrUnicornChannels is returned when the channel list does not match the headset.
	ErrUnicornChannels = errors.New("unicorn source needs exactly 8 channels")
)
