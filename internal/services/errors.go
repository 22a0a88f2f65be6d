package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Kind classifies why an engine operation was rejected.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindMissingReference  Kind = "missing_reference"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindLimitExceeded     Kind = "limit_exceeded"
	KindValidation        Kind = "validation"
	KindOperational       Kind = "operational"
)

// Error is the structured error returned by every engine operation.
// Amount carries the shortfall or overrun for insufficient funds.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Amount decimal.Decimal
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrMissingReference  = &Error{Kind: KindMissingReference}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrLimitExceeded     = &Error{Kind: KindLimitExceeded}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrOperational       = &Error{Kind: KindOperational}
)

// KindOf returns the kind of err; unclassified errors are operational.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperational
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func notFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func invalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

func missingReference(op, format string, args ...any) *Error {
	return newError(KindMissingReference, op, format, args...)
}

func conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, format, args...)
}

func limitExceeded(op, format string, args ...any) *Error {
	return newError(KindLimitExceeded, op, format, args...)
}

func insufficientFunds(op string, amount decimal.Decimal, format string, args ...any) *Error {
	e := newError(KindInsufficientFunds, op, format, args...)
	e.Amount = amount
	return e
}

func invalidInput(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Reason: "invalid input", Fields: fields}
}

// classify turns store errors into engine errors. Engine errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Reason: "record not found", Err: err}
	}
	return &Error{Kind: KindOperational, Op: op, Reason: "store failure", Err: err}
}

// fetch loads one row by id, mapping a missing row to a not found error naming what.
func fetch[T any](tx *gorm.DB, op, what string, id uint) (*T, error) {
	var row T
	if err := tx.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(op, "%s %d does not exist", what, id)
		}
		return nil, fmt.Errorf("load %s %d: %w", what, id, err)
	}
	return &row, nil
}

// requireRef checks that a referenced row exists, reporting a missing reference otherwise.
func requireRef[T any](tx *gorm.DB, op, what string, id uint) error {
	_, err := fetch[T](tx, op, what, id)
	if errors.Is(err, ErrNotFound) {
		return missingReference(op, "%s %d does not exist", what, id)
	}
	return err
}
