package failure

import (
	"errors"
	"fmt"
)

// Code is a stable, caller-facing error classification.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeOutOfStock          Code = "OUT_OF_STOCK"
	CodeNoBalance           Code = "NO_BALANCE"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
)

// Error carries a Code and a human readable message. Under errors.Is an
// Error matches itself and the errors derived from it with Derive; two
// distinct sentinels sharing a code never match each other. Use CodeOf to
// classify by code.
type Error struct {
	Code    Code
	Message string
	kind    *Error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.kind != nil && e.kind == t
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Derive returns an error with kind's code and a specific message that still
// matches kind under errors.Is.
func Derive(kind *Error, format string, args ...any) *Error {
	return &Error{Code: kind.Code, Message: fmt.Sprintf(format, args...), kind: kind}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// is not classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the message of the first *Error in err's chain, falling
// back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
