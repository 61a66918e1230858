// Package status defines the stable status codes surfaced by the stateful
// inference subsystem and an error type carrying them. Codes are part of the
// external contract and keep the same names on every protocol surface.
package status

import (
	"errors"
	"fmt"
)

// Code is a stable status name.
type Code string

const (
	OK Code = "OK"

	// Special-input validation.
	SpecialInputNoTensorShape   Code = "SPECIAL_INPUT_NO_TENSOR_SHAPE"
	InvalidNoOfShapeDimensions  Code = "INVALID_NO_OF_SHAPE_DIMENSIONS"
	InvalidShape                Code = "INVALID_SHAPE"
	SequenceIDBadType           Code = "SEQUENCE_ID_BAD_TYPE"
	SequenceControlInputBadType Code = "SEQUENCE_CONTROL_INPUT_BAD_TYPE"
	InvalidSequenceControlInput Code = "INVALID_SEQUENCE_CONTROL_INPUT"
	SequenceIDNotProvided       Code = "SEQUENCE_ID_NOT_PROVIDED"

	// Generic input validation.
	InvalidMissingInput    Code = "INVALID_MISSING_INPUT"
	InvalidUnexpectedInput Code = "INVALID_UNEXPECTED_INPUT"
	InvalidPrecision       Code = "INVALID_PRECISION"

	// Sequence lifecycle.
	SequenceMissing       Code = "SEQUENCE_MISSING"
	SequenceAlreadyExists Code = "SEQUENCE_ALREADY_EXISTS"
	MaxSequencesReached   Code = "MAX_SEQUENCES_REACHED"

	InternalError Code = "INTERNAL_ERROR"
)

// Error pairs a status code with a human-readable message.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

// New builds an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the status code from err. A nil error is OK; an error that
// carries no code is INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
