package paradigm

import "errors"

var (
	ErrNoOptions          = errors.New("session needs at least one option")
	ErrInvalidRepetitions = errors.New("repetitions must be at least 1")
	ErrSessionUsed        = errors.New("session already run")
	ErrStopped            = errors.New("paradigm stopped")
	ErrInvalidTiming      = errors.New("invalid paradigm timing")
)
