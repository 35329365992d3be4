package settlement

import (
	"errors"
	"fmt"
)

// Kind classifies settlement failures for propagation and HTTP mapping.
type Kind string

const (
	KindValidation                Kind = "validation_error"
	KindNotFound                  Kind = "not_found"
	KindNotPayable                Kind = "not_payable"
	KindAlreadySettled            Kind = "already_settled"
	KindProviderUnavailable       Kind = "provider_unavailable"
	KindSignatureInvalid          Kind = "signature_invalid"
	KindReconciliationDiscrepancy Kind = "reconciliation_discrepancy"
)

// Sentinels for errors.Is checks.
var (
	ErrValidation                = &Error{Kind: KindValidation}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrNotPayable                = &Error{Kind: KindNotPayable}
	ErrAlreadySettled            = &Error{Kind: KindAlreadySettled}
	ErrProviderUnavailable       = &Error{Kind: KindProviderUnavailable}
	ErrSignatureInvalid          = &Error{Kind: KindSignatureInvalid}
	ErrReconciliationDiscrepancy = &Error{Kind: KindReconciliationDiscrepancy}
)

// Error carries a Kind, a caller-facing message and an optional cause that is
// only meant for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotPayable) works
// for every not-payable error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func notFound(what string, cause error) *Error {
	return newError(KindNotFound, what+" not found", cause)
}

func notPayable(reason string) *Error {
	return newError(KindNotPayable, reason, nil)
}

func providerUnavailable(cause error) *Error {
	return newError(KindProviderUnavailable, "payment provider unavailable", cause)
}

// KindOf extracts the Kind of err, or "" when err is not a settlement error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PublicMessage is the text safe to show to API callers.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindProviderUnavailable:
		return "payment provider is currently unavailable, your request remains approved and payable"
	case KindSignatureInvalid:
		return "invalid signature"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}
