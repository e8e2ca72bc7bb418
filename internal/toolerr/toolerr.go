// Package toolerr defines the error kinds reported to MCP callers.
//
// Every failure a tool surfaces is one of six kinds. Validation failures are
// produced locally before any remote call. The remaining kinds are assigned
// when classifying credential or Gmail API failures.
package toolerr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a tool failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
	KindTransport  Kind = "transport"
	KindQuota      Kind = "quota"
)

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind, so callers can write
// errors.Is(err, &toolerr.Error{Kind: toolerr.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Payload is the JSON body of an error tool result.
type Payload struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// JSON renders the error as {"error": {...}}.
func (e *Error) JSON() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	b, err := json.Marshal(map[string]Payload{"error": {Kind: e.Kind, Message: msg, Retryable: e.Retryable}})
	if err != nil {
		return fmt.Sprintf(`{"error":{"kind":%q,"message":%q}}`, e.Kind, msg)
	}
	return string(b)
}

// Validation returns a validation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Missing reports a required argument that is absent or empty.
func Missing(field string) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf("%s is required", field)}
}

// Auth wraps a credential failure.
func Auth(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}

// NotFound reports a missing remote object.
func NotFound(msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

// Permission reports a forbidden operation.
func Permission(msg string, err error) *Error {
	return &Error{Kind: KindPermission, Message: msg, Err: err}
}

// Transport reports a network, timeout or server failure. Transport errors are retryable.
func Transport(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, Err: err, Retryable: true}
}

// Quota reports remote rate limiting. Quota errors are retryable.
func Quota(msg string, err error) *Error {
	return &Error{Kind: KindQuota, Message: msg, Err: err, Retryable: true}
}

// As extracts a classified error. Unclassified errors become transport errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindTransport, Err: err, Retryable: true}
}

// KindOf returns the kind of err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}
