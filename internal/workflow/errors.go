package workflow

import (
	"errors"
	"fmt"

	"github.com/david/recovery-match/internal/models"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrConcurrentModification = errors.New("match was modified concurrently")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrUnauthorized           = errors.New("not authorized")
)

// TransitionError carries the context of a rejected transition. It unwraps to
// one of the sentinel errors above.
type TransitionError struct {
	Kind   error
	From   models.Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s from %s", e.Kind, e.Event, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Kind }

func reject(kind error, from models.Status, ev Event, reason string) error {
	return &TransitionError{Kind: kind, From: from, Event: ev, Reason: reason}
}

// Retryable reports whether retrying the same request unchanged may succeed.
// Concurrent modifications need a refetch first, so they are not retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
