// Package apperrors holds the sentinel errors shared across Riskline packages.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("resource already exists")
	ErrNoRecipients = errors.New("no recipients resolved")
	ErrUnknownRule  = errors.New("unknown rule")
	ErrFatal        = errors.New("fatal error")
)

// DuplicateNotificationError reports a dedup key collision at the storage layer.
type DuplicateNotificationError struct{ Key string }

func (e *DuplicateNotificationError) Error() string {
	return fmt.Sprintf("notification with dedup key '%s' already exists", e.Key)
}
func (e *DuplicateNotificationError) Is(target error) bool { return target == ErrDuplicate }

// FatalError marks a failure that must abort the whole run.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }
func (e *FatalError) Is(target error) bool { return target == ErrFatal }

// Fatal wraps err so the CLI exits non-zero.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
