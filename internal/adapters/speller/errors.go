package speller

import "errors"

var (
	// ErrNoCharacter is returned for packets that carry no usable character.
	ErrNoCharacter = errors.New("packet carries no speller character")

	// ErrClosed is returned when waiting on a listener that has shut down.
	ErrClosed = errors.New("speller listener closed")
)
