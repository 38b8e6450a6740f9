package core

import "github.com/pkg/errors"

// Kind classifies domain errors so callers can branch on the outcome without knowing
// which component produced it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientBalance
	KindInsufficientTreasury
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation failed"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindInsufficientTreasury:
		return "insufficient treasury"
	case KindInvalidState:
		return "invalid state"
	default:
		return "unknown error"
	}
}

// Error is a domain error with a Kind.
type Error struct {
	Kind Kind
	Msg  string
}

// NewError returns a domain error. Errors created with an empty message act as kind-wide
// sentinels: errors.Is(err, ErrNotFound) holds for every not-found error.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == e || (t.Msg == "" && t.Kind == e.Kind)
}

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientTreasury = &Error{Kind: KindInsufficientTreasury}
	ErrInvalidState         = &Error{Kind: KindInvalidState}
)

// KindOf returns the Kind of the first domain error found in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindUnknown
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return KindValidation.String()
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

func (err ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
