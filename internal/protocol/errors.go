package protocol

import (
	"context"
	"errors"
	"fmt"
)

// JSON-RPC and protocol error codes.
const (
	// JSON-RPC standard errors
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Session errors
	CodeNotInitialized     = -32002
	CodeAlreadyInitialized = -32003

	// Host state errors
	CodeStaleVersion          = -32010
	CodeRegistrationNotFound  = -32011
	CodeDuplicateRegistration = -32012
	CodeCommandNotFound       = -32013
	CodeCommandExecution      = -32014
	CodeProviderError         = -32015
	CodeDocumentNotFound      = -32016

	CodeRequestCancelled = -32800
)

// Error is a JSON-RPC error object. Two errors are considered the same
// under errors.Is when their codes match, so sentinel values below can be
// compared against errors decoded off the wire.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinel protocol errors.
var (
	ErrParse                 = &Error{Code: CodeParseError, Message: "parse error"}
	ErrProtocol              = &Error{Code: CodeInvalidRequest, Message: "malformed message"}
	ErrInvalidRequest        = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrMethodNotFound        = &Error{Code: CodeMethodNotFound, Message: "method not found"}
	ErrInvalidParams         = &Error{Code: CodeInvalidParams, Message: "invalid params"}
	ErrInternal              = &Error{Code: CodeInternalError, Message: "internal error"}
	ErrNotInitialized        = &Error{Code: CodeNotInitialized, Message: "session not initialized"}
	ErrAlreadyInitialized    = &Error{Code: CodeAlreadyInitialized, Message: "session already initialized"}
	ErrStaleVersion          = &Error{Code: CodeStaleVersion, Message: "stale document version"}
	ErrRegistrationNotFound  = &Error{Code: CodeRegistrationNotFound, Message: "registration not found"}
	ErrDuplicateRegistration = &Error{Code: CodeDuplicateRegistration, Message: "duplicate registration"}
	ErrCommandNotFound       = &Error{Code: CodeCommandNotFound, Message: "command not found"}
	ErrCommandExecution      = &Error{Code: CodeCommandExecution, Message: "command execution failed"}
	ErrProvider              = &Error{Code: CodeProviderError, Message: "provider failed"}
	ErrDocumentNotFound      = &Error{Code: CodeDocumentNotFound, Message: "document not found"}
	ErrRequestCancelled      = &Error{Code: CodeRequestCancelled, Message: "request cancelled"}
)

// Errorf returns an *Error with the given code and a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError converts any error into a wire error. Errors that already carry a
// code keep it; context cancellation maps to RequestCancelled; everything
// else becomes an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isCancellation(err) {
		return &Error{Code: CodeRequestCancelled, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// CodeOf returns the protocol code carried by err, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// ProviderError records a single provider failure during a routed request.
// It never fails the request it belongs to.
type ProviderError struct {
	Provider string
	Method   string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
