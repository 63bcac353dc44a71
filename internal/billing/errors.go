package billing

import (
	"errors"
	"fmt"

	"github.com/ldi/hourbook/pkg/models"
)

// Domain error kinds. Match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
)

// Error is a typed, non-retryable domain error. Anything returned by the
// engine that is not an *Error is an infrastructure failure.
type Error struct {
	Kind    error
	Message string
	// Period is the offending period for closed-period violations.
	Period *models.Period
	// Details carries counts for precondition failures, e.g. the pending
	// and zero-hour task counts that block a close.
	Details map[string]int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// IsDomainError reports whether err is a typed domain error, which may be
// shown to the caller verbatim.
func IsDomainError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func notFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func periodClosed(p models.Period) error {
	return &Error{
		Kind:    ErrValidation,
		Message: fmt.Sprintf("period %s is closed", p),
		Period:  &p,
	}
}
