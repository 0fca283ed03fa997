package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is attempted out of lifecycle order.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when the ledger has no record of a transaction.
	ErrNotFound = errors.New("not found")
)

// Error is a validation failure raised synchronously by an operation.
type Error struct {
	Kind  error
	Op    string
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s: %s", e.Op, e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// InvalidState builds an ErrInvalidState failure for op.
func InvalidState(op string, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds an ErrInvalidArgument failure naming the offending field.
func InvalidArgument(op, field string, format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Field: field, Msg: fmt.Sprintf(format, args...)}
}
