package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindDecode    Kind = "decode"
	KindStage     Kind = "stage"
	KindCache     Kind = "cache"
	KindEmbedding Kind = "embedding"
	KindStorage   Kind = "storage"
	KindTransport Kind = "transport"
	KindBootstrap Kind = "bootstrap"
	KindInternal  Kind = "internal"
)

// Code refines a Kind into a machine-readable failure subtype.
type Code string

const (
	CodeNone                    Code = ""
	CodeDecodeFailed            Code = "decode_failed"
	CodeUnsupportedLanguagePair Code = "unsupported_language_pair"
	CodeUnsupportedLanguage     Code = "unsupported_language"
	CodeTimeout                 Code = "timeout"
	CodeModelUnavailable        Code = "model_unavailable"
	CodeEmbeddingFailed         Code = "embedding_failed"
)

type Error struct {
	Kind    Kind
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// NewCoded builds an error carrying a failure subtype code.
func NewCoded(kind Kind, code Code, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Op:      op,
		Message: message,
	}
}

// WrapCoded attaches a subtype code while wrapping a cause.
func WrapCoded(kind Kind, code Code, op, message string, err error) *Error {
	e := Wrap(kind, op, message, err)
	if e != nil && e.Code == CodeNone {
		e.Code = code
	}
	return e
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// CodeOf extracts the failure subtype of an error chain, or CodeNone.
func CodeOf(err error) Code {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return CodeNone
}

// Descriptor is the user-visible shape of a failure: classification plus a
// human-readable message, never a raw cause chain.
type Descriptor struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Describe converts any error into a structured descriptor. Unclassified
// errors are reported as internal without leaking their cause text.
func Describe(err error) *Descriptor {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return &Descriptor{
			Kind:    string(typed.Kind),
			Code:    string(typed.Code),
			Message: typed.Message,
		}
	}
	return &Descriptor{
		Kind:    string(KindInternal),
		Message: "internal error",
	}
}
