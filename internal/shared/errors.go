package shared

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding between retry and explain-to-user.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindDependency    Kind = "dependency"
)

// Error is the structured error returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors sharing the same code, or a bare kind sentinel against any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Withf returns a copy carrying a more specific display message.
func (e *Error) Withf(format string, args ...any) *Error {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// NewError declares a coded domain error.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Kind sentinels; errors.Is(err, ErrValidation) holds for any validation error.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrStateConflict = &Error{Kind: KindStateConflict}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrDependency    = &Error{Kind: KindDependency}
)

// Validation builds an ad-hoc validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Code: entity + "_not_found", Message: entity + " not found"}
}

// Dependency wraps a store failure; the message is the underlying text verbatim.
func Dependency(err error) error {
	if err == nil {
		return nil
	}
	var domain *Error
	if errors.As(err, &domain) {
		return err
	}
	return &Error{Kind: KindDependency, Code: "store_failure", Message: err.Error(), Err: err}
}

// KindOf reports the kind of err; unknown errors are dependency failures.
func KindOf(err error) Kind {
	var domain *Error
	if errors.As(err, &domain) {
		return domain.Kind
	}
	return KindDependency
}

// Retryable reports whether retrying the same call could succeed.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindDependency
}

// UserMessage returns text safe for direct display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var domain *Error
	if errors.As(err, &domain) {
		if domain.Kind == KindDependency {
			return "The data store could not complete the request: " + domain.Message
		}
		return domain.Message
	}
	return "Unexpected error"
}
