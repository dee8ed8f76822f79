package chat

import "errors"

var (
	ErrEmptyPrompt = errors.New("empty prompt")
	ErrNoChoices   = errors.New("completion returned no choices")
)
