// Package errors provides the typed failures returned by the place core.
// Each kind carries the operation that failed, a human friendly message and
// an optional cause, plus a stable code the transport layer maps to a status.
package errors

import (
	"errors"
	"fmt"
)

// Stable codes exposed to clients.
const (
	CodeValidation  = "VALIDATION_FAILED"
	CodeGeocoding   = "GEOCODING_FAILED"
	CodeNotFound    = "NOT_FOUND"
	CodeForbidden   = "FORBIDDEN"
	CodeTransaction = "TRANSACTION_FAILED"
	CodeSideEffect  = "SIDE_EFFECT_FAILED"
	CodeStorage     = "STORAGE_FAILED"
	CodeInternal    = "INTERNAL"
)

// Coded is implemented by every error kind in this package.
type Coded interface {
	error
	Code() string
	Operation() string
	Message() string
}

type base struct {
	Op  string // where it happened (package.Function)
	Msg string // human friendly message (no PII)
	Err error  // underlying cause (optional)
}

func (b *base) format(kind string) string {
	if b.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", kind, b.Op, b.Msg, b.Err)
	}
	return fmt.Sprintf("%s: %s: %s", kind, b.Op, b.Msg)
}

func (b *base) Unwrap() error           { return b.Err }
func (b *base) Operation() string       { return b.Op }
func (b *base) Message() string         { return b.Msg }
func (b *base) Context() map[string]any { return map[string]any{"op": b.Op, "msg": b.Msg} }

// ValidationError indicates malformed input. Normally rejected before the core.
type ValidationError struct{ base }

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("validation")
}
func (e *ValidationError) Code() string { return CodeValidation }

func NewValidation(op, msg string, err error) error {
	return &ValidationError{base{Op: op, Msg: msg, Err: err}}
}

// GeocodingError means an address could not be resolved to coordinates.
type GeocodingError struct {
	base
	Address string
}

func (e *GeocodingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("geocoding")
}
func (e *GeocodingError) Code() string { return CodeGeocoding }

func NewGeocoding(op, address, msg string, err error) error {
	return &GeocodingError{base: base{Op: op, Msg: msg, Err: err}, Address: address}
}

// NotFoundError means the referenced place or user does not exist.
type NotFoundError struct {
	base
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("not found")
}
func (e *NotFoundError) Code() string { return CodeNotFound }

func NewNotFound(op, resource, id string) error {
	return &NotFoundError{
		base:     base{Op: op, Msg: fmt.Sprintf("could not find %s for the provided id", resource)},
		Resource: resource,
		ID:       id,
	}
}

// AuthorizationError means the caller does not own the resource.
type AuthorizationError struct {
	base
	CallerID string
}

func (e *AuthorizationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("authorization")
}
func (e *AuthorizationError) Code() string { return CodeForbidden }

func NewAuthorization(op, callerID, msg string) error {
	return &AuthorizationError{base: base{Op: op, Msg: msg}, CallerID: callerID}
}

// TransactionError means a multi-entity write was aborted. The prior state is intact.
type TransactionError struct{ base }

func (e *TransactionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("transaction")
}
func (e *TransactionError) Code() string { return CodeTransaction }

func NewTransaction(op, msg string, err error) error {
	return &TransactionError{base{Op: op, Msg: msg, Err: err}}
}

// SideEffectWarning reports a failed post-commit cleanup. Logged, never returned to callers.
type SideEffectWarning struct {
	base
	Ref string
}

func (e *SideEffectWarning) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("side effect")
}
func (e *SideEffectWarning) Code() string { return CodeSideEffect }

func NewSideEffect(op, ref, msg string, err error) error {
	return &SideEffectWarning{base: base{Op: op, Msg: msg, Err: err}, Ref: ref}
}

// DBError represents storage failures outside a transactional scope.
type DBError struct{ base }

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.format("db")
}
func (e *DBError) Code() string { return CodeStorage }

func NewDB(op, msg string, err error) error { return &DBError{base{Op: op, Msg: msg, Err: err}} }

// Kind sentinels for Is.
// Example: if errors.Is(err, errors.ErrNotFound) { ... }
var (
	ErrValidation    = &ValidationError{}
	ErrGeocoding     = &GeocodingError{}
	ErrNotFound      = &NotFoundError{}
	ErrAuthorization = &AuthorizationError{}
	ErrTransaction   = &TransactionError{}
	ErrSideEffect    = &SideEffectWarning{}
	ErrDB            = &DBError{}
)

// Is reports whether err is of the same kind as target, looking through wraps.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *GeocodingError:
		var g *GeocodingError
		return errors.As(err, &g)
	case *NotFoundError:
		var n *NotFoundError
		return errors.As(err, &n)
	case *AuthorizationError:
		var a *AuthorizationError
		return errors.As(err, &a)
	case *TransactionError:
		var t *TransactionError
		return errors.As(err, &t)
	case *SideEffectWarning:
		var s *SideEffectWarning
		return errors.As(err, &s)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	default:
		return errors.Is(err, target)
	}
}

// CodeOf returns the stable code of the outermost typed error in the chain.
func CodeOf(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var c Coded
	if errors.As(err, &c) && c.Message() != "" {
		return c.Message()
	}
	return "something went wrong, please try again"
}
