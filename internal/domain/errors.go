// Package domain holds the canonical types shared by the parsers, stores,
// classifiers and workers.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned by a conditional put when the key already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRule is returned for rules that fail validation.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrInvalidTransaction is returned for transactions that fail validation.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// HeaderNotFoundError is the structural failure raised by a statement parser
// when the expected header or anchor cannot be located.
type HeaderNotFoundError struct {
	Format string
	Reason string
}

func (e *HeaderNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: statement header not found", e.Format)
	}
	return fmt.Sprintf("%s: statement header not found: %s", e.Format, e.Reason)
}

// RetryableError wraps a transport or dependency failure that the
// at-least-once transport should retry.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is or wraps a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
