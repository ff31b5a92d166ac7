package serrors

import (
	"errors"
	"fmt"
)

// Kind groups error codes so the hosting layer can map them onto transport codes.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindProcessing    Kind = "processing"
	KindExternal      Kind = "external"
)

type BaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	LocaleKey string `json:"locale_key,omitempty"`
	Kind      Kind   `json:"kind"`
	cause     error
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
		Kind:      KindProcessing,
	}
}

func newKind(kind Kind, code, message string) *BaseError {
	return &BaseError{Code: code, Message: message, Kind: kind}
}

func NotFound(code, message string) *BaseError      { return newKind(KindNotFound, code, message) }
func Conflict(code, message string) *BaseError      { return newKind(KindConflict, code, message) }
func Authorization(code, message string) *BaseError { return newKind(KindAuthorization, code, message) }
func Validation(code, message string) *BaseError    { return newKind(KindValidation, code, message) }
func Processing(code, message string) *BaseError    { return newKind(KindProcessing, code, message) }
func External(code, message string) *BaseError      { return newKind(KindExternal, code, message) }

func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.cause
}

// Is matches any BaseError carrying the same code, so copies produced by
// WithMessage and Wrap still satisfy errors.Is against the sentinel.
func (e *BaseError) Is(target error) bool {
	var t *BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the error with a more specific message.
func (e *BaseError) WithMessage(format string, args ...any) *BaseError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of the error that carries cause.
func (e *BaseError) Wrap(cause error) *BaseError {
	cp := *e
	cp.cause = cause
	return &cp
}

// KindOf reports the kind of the first BaseError in the chain.
// Errors without a BaseError are reported as KindProcessing.
func KindOf(err error) Kind {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindProcessing
}

// CodeOf reports the code of the first BaseError in the chain or "".
func CodeOf(err error) string {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
