package filter

import "errors"

var (
	// ErrInvalidSpec is returned for band edges outside (0, Nyquist), inverted edges or order < 1.
	ErrInvalidSpec = errors.New("invalid band-pass spec")
	// ErrSignalTooShort is returned when a signal cannot be edge-padded.
	ErrSignalTooShort = errors.New("signal too short for zero-phase filtering")
)
