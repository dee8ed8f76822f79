package menu

import "errors"

var (
	// ErrEmptyMenu is returned when a navigator is built from no options.
	ErrEmptyMenu = errors.New("menu has no options")

	// ErrInvalidSelection is returned when a choice does not name a current option.
	ErrInvalidSelection = errors.New("invalid menu selection")
)
