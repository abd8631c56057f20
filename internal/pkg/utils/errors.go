package utils

import "errors"

// ErrPermanent indicates an error that will not go away on retry,
// e.g. unauthorized, not found, bad request
type ErrPermanent struct {
	err error
}

// NewErrPermanent wraps err as permanent
func NewErrPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &ErrPermanent{err: err}
}

func (e *ErrPermanent) Error() string {
	return "permanent error: " + e.err.Error()
}

func (e *ErrPermanent) Unwrap() error {
	return e.err
}

// IsPermanent checks if any error in the chain is permanent.
// All other errors are treated as transient
func IsPermanent(err error) bool {
	var pErr *ErrPermanent
	return errors.As(err, &pErr)
}
