package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the conversation or document is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation means malformed input; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means the record already exists.
	ErrConflict = errors.New("already exists")
)

// NotFoundf wraps ErrNotFound with a message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Invalidf wraps ErrValidation with a message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// TransientError is a network, timeout or quota failure of an external capability.
type TransientError struct {
	Op  string // capability call that failed, e.g. "embed"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError unless it already is one.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DimensionMismatchError is returned when an embedding's width differs from the
// configured dimensionality. It indicates a configuration error.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}
