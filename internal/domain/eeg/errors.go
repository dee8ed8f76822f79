package eeg

import "errors"

var (
	ErrInvalidBuffer     = errors.New("invalid buffer dimensions")
	ErrChannelMismatch   = errors.New("sample channel count does not match buffer")
	ErrChannelOutOfRange = errors.New("channel out of range")
)
