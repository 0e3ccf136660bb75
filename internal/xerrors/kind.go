package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers. The zero value is KindInternal.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
	KindTooLarge
)

var kindCodes = [...]string{
	KindInternal:     "internal",
	KindValidation:   "validation_error",
	KindUnauthorized: "unauthorized",
	KindForbidden:    "forbidden",
	KindNotFound:     "not_found",
	KindConflict:     "conflict",
	KindUnavailable:  "service_unavailable",
	KindTooLarge:     "payload_too_large",
}

// String is the stable machine-readable code used in API responses.
func (k Kind) String() string {
	if int(k) < len(kindCodes) {
		return kindCodes[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Msg is safe to show to API callers; Err,
// when set, is internal detail for logs only.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
	pc    uintptr
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) PC() uintptr   { return e.pc }

// E returns a classified error with a caller-facing message.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg, pc: callerPC(1)}
}

// Ef is E with formatting.
func Ef(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// Invalid is a validation failure naming the offending field or path.
func Invalid(field, msg string) error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg, pc: callerPC(1)}
}

// WithKind classifies err, keeping it as the internal cause. A nil err stays nil.
func WithKind(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err, pc: callerPC(1)}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Public returns the caller-facing message and field of err. Internal
// failures always get a generic message.
func Public(err error) (msg, field string) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal error", ""
	}
	if e.Msg == "" {
		return e.Kind.String(), e.Field
	}
	return e.Msg, e.Field
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int { return KindOf(err).HTTPStatus() }
