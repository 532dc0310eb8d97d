package notify

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

var (
	ErrAlreadyExists       = errors.New("notify: channel already exists")
	ErrChannelNotFound     = errors.New("notify: channel not found")
	ErrChannelRequired     = errors.New("notify: target channel is required")
	ErrStorage             = errors.New("notify: storage failure")
	ErrConfiguration       = errors.New("notify: invalid configuration")
	ErrInvalidNotification = errors.New("notify: invalid notification")
	ErrNotEnriched         = errors.New("notify: notification missing channel or sequence")
	ErrDuplicateSequence   = errors.New("notify: sequence already stored")
)

// ValidationError lists every field path that failed validation.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidNotification, e.Errors.Error())
}

// Is matches ErrInvalidNotification.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidNotification
}

func (e *ValidationError) Unwrap() error {
	return e.Errors
}

// Fields returns the failing paths, e.g. "information.title".
func (e *ValidationError) Fields() []string {
	return e.Errors.Fields()
}

// StorageError wraps a backend failure so callers can match ErrStorage
// without knowing the driver.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
