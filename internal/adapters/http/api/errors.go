package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrHubClosed  = errors.New("event hub closed")
)

// Kind ties an error to the operation that produced it.
type Kind struct {
	Op  string
	Err error
}

func (k *Kind) Error() string { return fmt.Sprintf("%s: %v", k.Op, k.Err) }

func (k *Kind) Unwrap() error { return k.Err }

// NewKind tags a sentinel error with an operation.
func NewKind(op string, err error) error { return &Kind{Op: op, Err: err} }

// Wrap tags an upstream error with an operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Kind{Op: op, Err: err}
}
