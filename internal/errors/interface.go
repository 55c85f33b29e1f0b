// Package errors carries typed domain errors. Every failure that
// crosses a package boundary is tagged with an ErrorCode so the command
// surface can map it to an exit code without string matching.
package errors

// ErrorCode identifies a class of failure.
type ErrorCode string

// Error is a domain error: a code, an optional detail payload, and an
// optional wrapped cause.
type Error interface {
	error
	Code() ErrorCode
	WithData(data any) Error
	Unwrap() error
}

// Factory creates domain errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithData(code ErrorCode, data any) Error
}
