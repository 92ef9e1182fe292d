// Package fabric defines the error taxonomy shared by the invoker and every
// event source: a small, closed set of kinds, each with a fixed HTTP status
// mapping, so a handler never has to decide case-by-case how to report a
// failure (spec §7).
package fabric

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the fabric's closed set of failure categories.
type Kind string

const (
	// KindConfigError marks a failure loading or materializing the
	// resource graph. Fatal: the process that hits one does not start.
	KindConfigError Kind = "ConfigError"
	// KindNotFound marks a reference to a function, queue, bucket, bus,
	// or invocation record that does not exist.
	KindNotFound Kind = "NotFound"
	// KindUpstreamError marks a failure calling out to a backing service
	// (SQS, Redis, the invoker's own /invoke). Always retried by the
	// caller's polling loop, never fatal.
	KindUpstreamError Kind = "UpstreamError"
	// KindFunctionError marks a function runtime reporting its own
	// failure via /error, or returning a malformed response.
	KindFunctionError Kind = "FunctionError"
	// KindTimeout marks an /invoke call that outlived the configured
	// invoke timeout without a /response or /error.
	KindTimeout Kind = "Timeout"
	// KindProtocolError marks a request that violates the runtime API's
	// own contract (a malformed envelope, a missing header, a body that
	// doesn't parse).
	KindProtocolError Kind = "ProtocolError"
)

// Error is the fabric's error type: a Kind plus a human-readable message
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ConfigError(message string, cause error) *Error   { return newErr(KindConfigError, message, cause) }
func NotFound(message string) *Error                   { return newErr(KindNotFound, message, nil) }
func UpstreamError(message string, cause error) *Error { return newErr(KindUpstreamError, message, cause) }
func FunctionError(message string) *Error              { return newErr(KindFunctionError, message, nil) }
func Timeout(message string) *Error                    { return newErr(KindTimeout, message, nil) }
func ProtocolError(message string) *Error               { return newErr(KindProtocolError, message, nil) }

// HTTPStatus maps an error's Kind to the HTTP status an invoker or source
// handler should respond with. Errors that are not *Error map to 500.
func HTTPStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Kind {
	case KindConfigError:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindFunctionError:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindProtocolError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
