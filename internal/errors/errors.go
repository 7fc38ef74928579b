package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kinds surfaced to API callers. They are stable identifiers, not messages.
const (
	KindInvalidInput            = "invalid_input"
	KindInvalidEntry            = "invalid_entry"
	KindNotFound                = "not_found"
	KindBookInactive            = "book_inactive"
	KindUnbalancedBatch         = "unbalanced_batch"
	KindAlreadyPosted           = "already_posted"
	KindInsufficientStock       = "insufficient_stock"
	KindInvalidStatusTransition = "invalid_status_transition"
	KindDatabase                = "database_error"
	KindSystem                  = "system_error"
)

var (
	ErrInvalidInput            = new(KindInvalidInput, "invalid input")
	ErrInvalidEntry            = new(KindInvalidEntry, "invalid ledger entry")
	ErrNotFound                = new(KindNotFound, "resource not found")
	ErrBookInactive            = new(KindBookInactive, "bill book is not active")
	ErrUnbalancedBatch         = new(KindUnbalancedBatch, "transaction batch is not balanced")
	ErrAlreadyPosted           = new(KindAlreadyPosted, "document already posted")
	ErrInsufficientStock       = new(KindInsufficientStock, "insufficient stock")
	ErrInvalidStatusTransition = new(KindInvalidStatusTransition, "invalid status transition")
	ErrDatabase                = new(KindDatabase, "database error")
	ErrSystem                  = new(KindSystem, "system error")

	// ordered: the first match wins when an error carries more than one mark
	sentinels = []*InternalError{
		ErrUnbalancedBatch,
		ErrInvalidEntry,
		ErrInvalidInput,
		ErrNotFound,
		ErrBookInactive,
		ErrAlreadyPosted,
		ErrInsufficientStock,
		ErrInvalidStatusTransition,
		ErrDatabase,
		ErrSystem,
	}

	statusCodeMap = map[string]int{
		KindInvalidInput:            http.StatusBadRequest,
		KindInvalidEntry:            http.StatusBadRequest,
		KindNotFound:                http.StatusNotFound,
		KindBookInactive:            http.StatusConflict,
		KindAlreadyPosted:           http.StatusConflict,
		KindInvalidStatusTransition: http.StatusConflict,
		KindInsufficientStock:       http.StatusUnprocessableEntity,
		KindUnbalancedBatch:         http.StatusInternalServerError,
		KindDatabase:                http.StatusInternalServerError,
		KindSystem:                  http.StatusInternalServerError,
	}
)

// InternalError is a sentinel for one error kind.
type InternalError struct {
	Code    string
	Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Is(target error) bool {
	t, ok := target.(*InternalError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func new(code, message string) *InternalError {
	return &InternalError{Code: code, Message: message}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsAlreadyPosted(err error) bool     { return errors.Is(err, ErrAlreadyPosted) }
func IsInsufficientStock(err error) bool { return errors.Is(err, ErrInsufficientStock) }
func IsUnbalanced(err error) bool        { return errors.Is(err, ErrUnbalancedBatch) }

// IsBusiness reports whether err is a domain rule violation rather than an
// infrastructure failure. Retrying a business error without changing inputs
// gives the same result.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindDatabase, KindSystem, "":
		return false
	}
	return true
}

// KindOf returns the kind string of the first sentinel err is marked with,
// or KindSystem for unmarked errors. A nil error has no kind.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Code
		}
	}
	return KindSystem
}

func HTTPStatusFromErr(err error) int {
	if status, ok := statusCodeMap[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DisplayMessage returns the user-facing hint attached to err, falling back to
// the sentinel message so that driver text never reaches the caller.
func DisplayMessage(err error) string {
	if hints := errors.FlattenHints(err); hints != "" {
		return hints
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Message
		}
	}
	return ErrSystem.Message
}
