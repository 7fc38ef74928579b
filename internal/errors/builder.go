package errors

import (
	"github.com/cockroachdb/errors"
)

// ErrorBuilder chains context onto an error. Mark must be the last call.
type ErrorBuilder struct {
	err error
}

// NewError starts a builder chain from a fresh message.
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// NewErrorf starts a builder chain from a formatted message.
func NewErrorf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError starts a builder chain with an existing error.
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithMessage prefixes the internal message.
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint sets the message shown to API callers.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches structured fields returned in the error body.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	if len(details) == 0 {
		return b
	}
	b.err = &detailedError{cause: b.err, details: details}
	return b
}

// Mark tags the error with a sentinel kind.
func (b *ErrorBuilder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}

func (b *ErrorBuilder) Error() error {
	return b.err
}

type detailedError struct {
	cause   error
	details map[string]any
}

func (e *detailedError) Error() string { return e.cause.Error() }
func (e *detailedError) Unwrap() error { return e.cause }

// ReportableDetails collects the details attached anywhere in err's chain.
// Outer values win over inner ones for the same key.
func ReportableDetails(err error) map[string]any {
	var out map[string]any
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		d, ok := e.(*detailedError)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(d.details))
		}
		for k, v := range d.details {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}
