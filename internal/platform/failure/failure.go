// Package failure classifies errors raised by the revenue-cycle engine.
//
// Expected business outcomes such as an invalid claim or a fraud hold are
// values on result types. An *Error is reserved for conditions the caller has
// to act on: malformed input, unreachable collaborators and storage failures.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindFraudHold   Kind = "fraud_hold"
	KindExternal    Kind = "external"
	KindPersistence Kind = "persistence"
	KindMalformed   Kind = "malformed"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
)

// Error is a classified failure. Op names the operation that failed,
// Detail is safe to show to an operator.
type Error struct {
	Kind   Kind   `json:"kind"`
	Op     string `json:"op"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the operation may succeed without
// changing its input. Only external I/O failures qualify.
func (e *Error) Retryable() bool { return e.Kind == KindExternal }

func newError(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func Malformed(op, detail string) *Error { return newError(KindMalformed, op, detail, nil) }

func Validation(op, detail string) *Error { return newError(KindValidation, op, detail, nil) }

func FraudHold(op, detail string) *Error { return newError(KindFraudHold, op, detail, nil) }

func NotFound(op, detail string) *Error { return newError(KindNotFound, op, detail, nil) }

func Conflict(op, detail string) *Error { return newError(KindConflict, op, detail, nil) }

// External wraps an I/O failure against a clearinghouse, bank feed or
// payment gateway.
func External(op string, err error) *Error {
	return newError(KindExternal, op, "external call failed", err)
}

// Persistence wraps a repository failure. Callers must not assume any
// partial write happened.
func Persistence(op string, err error) *Error {
	return newError(KindPersistence, op, "processing failure", err)
}

// KindOf returns the Kind of err, or "" when err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable()
}

// HTTPStatus maps err to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMalformed, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindFraudHold:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
