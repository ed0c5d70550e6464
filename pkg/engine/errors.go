package engine

import (
	"errors"
	"fmt"
)

// Code classifies expected business failures. Anything else that comes out
// of the engine is an unexpected error (storage down, corrupt state) and is
// wrapped rather than coded.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeConflict          Code = "state_conflict"
	CodeNotFound          Code = "not_found"
	CodeCapacity          Code = "capacity"
	CodeFunds             Code = "insufficient_funds"
	CodeAlreadyRegistered Code = "already_registered"
	CodeNotRegistered     Code = "not_registered"
)

// Error is a typed business error.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Errorf builds a typed error.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or empty when err is untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
