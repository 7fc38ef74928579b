package core

import (
	"fmt"

	ierr "garments-erp/internal/errors"
)

// fail builds a business error whose message is also shown to API callers.
func fail(kind error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return ierr.NewError(msg).WithHint(msg).Mark(kind)
}

func invalidInput(format string, args ...any) error {
	return fail(ierr.ErrInvalidInput, format, args...)
}

func notFound(format string, args ...any) error {
	return fail(ierr.ErrNotFound, format, args...)
}

func badTransition(format string, args ...any) error {
	return fail(ierr.ErrInvalidStatusTransition, format, args...)
}

// dbError wraps an infrastructure failure and marks it as a database error.
// Errors that already carry a kind keep it and only gain the context.
func dbError(err error, format string, args ...any) error {
	b := ierr.WithError(err).WithMessage(fmt.Sprintf(format, args...))
	if ierr.KindOf(err) != ierr.KindSystem {
		return b.Error()
	}
	return b.Mark(ierr.ErrDatabase)
}
