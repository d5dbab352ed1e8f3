package triage

import (
	"context"
	"errors"
	"fmt"
)

// TransientError marks a failure as retryable: timeouts, rate limits, and
// other conditions expected to clear on their own.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s", e.Err.Error())
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// FatalError marks a failure as a contract violation: malformed input, bad
// configuration, or anything retrying cannot fix.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s", e.Err.Error())
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError wraps err as non-retryable.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsTransient reports whether err is classified retryable. Context
// cancellation is never transient: the caller gave up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is classified as a contract violation.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
