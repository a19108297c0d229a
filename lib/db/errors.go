package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps an error code and a message, and optionally the error that caused it.
// Errors compare equal under errors.Is when their codes match, so callers can write
// errors.Is(err, db.ErrCapacity) regardless of the message.
type Error struct {
	Code ErrCode // The error code
	Msg  string  // The error message
	Err  error   // wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planb (%s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("planb (%s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Msg == ""
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code that wraps err.
func WrapError(code ErrCode, err error, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type ErrCode uint64

const (
	ErrCodeInternal       ErrCode = iota + 1 // 1: Unexpected engine or programming error.
	ErrCodeSerde                             // 2: Malformed or truncated bytes during decode.
	ErrCodeCapacity                          // 3: The environment ran out of space, the batch was aborted.
	ErrCodeCollision                         // 4: A hash collision could not be resolved.
	ErrCodeWriterShutdown                    // 5: Submission to a writer that is shutting down.
	ErrCodeConfig                            // 6: Invalid configuration.
)

func (c ErrCode) String() string {
	switch c {
	case ErrCodeInternal:
		return "Internal"
	case ErrCodeSerde:
		return "Serde"
	case ErrCodeCapacity:
		return "Capacity"
	case ErrCodeCollision:
		return "CollisionResolution"
	case ErrCodeWriterShutdown:
		return "WriterShutdown"
	case ErrCodeConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. They carry no message so they match any error of their code.
var (
	ErrInternal       = &Error{Code: ErrCodeInternal}
	ErrSerde          = &Error{Code: ErrCodeSerde}
	ErrCapacity       = &Error{Code: ErrCodeCapacity}
	ErrCollision      = &Error{Code: ErrCodeCollision}
	ErrWriterShutdown = &Error{Code: ErrCodeWriterShutdown}
	ErrConfig         = &Error{Code: ErrCodeConfig}
)

// SerdeErrorf is a shorthand for decoding failures.
func SerdeErrorf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeSerde, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
