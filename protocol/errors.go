package protocol

import (
	"errors"
	"fmt"
)

// Transport-level codes. Application codes are defined by handlers.
const (
	CodeInternal      = "EINTERNAL"
	CodeUnknownType   = "EUNKNOWNTYPE"
	CodeInvalidParams = "EINVALIDPARAMS"
	CodeBadResponse   = "EBADRESPONSE"
)

// Error is a coded protocol error. Two Errors match under errors.Is when
// their codes are equal, so sentinels survive a round trip over the wire.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError returns an Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying additional detail.
func (e *Error) Wrap(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: e.Message + ": " + fmt.Sprintf(format, args...)}
}

// AsError converts any error to its wire form. Errors without a code
// become EINTERNAL.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// CodeOf returns the protocol code carried by err, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}
