package command

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jkaninda/oneline/internal/persistence"
)

// Code is a machine-readable command outcome.
type Code string

const (
	CodeUnknownCommand     Code = "unknown_command"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeInvalidState       Code = "invalid_state"
	CodeNoLLMProvider      Code = "no_llm_provider"
	CodeAgentFailed        Code = "agent_failed"
	CodeAgentInvalidResult Code = "agent_invalid_result"
	CodeInternal           Code = "internal"
)

// HTTPStatus maps a code onto the status the HTTP gateway answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnknownCommand, CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeAgentInvalidResult:
		return http.StatusUnprocessableEntity
	case CodeInvalidState:
		return http.StatusConflict
	case CodeNoLLMProvider:
		return http.StatusServiceUnavailable
	case CodeAgentFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type every command outcome is reported as.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"` // offending input key, when known
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ErrorCode returns the code as a string.
func (e *Error) ErrorCode() string { return string(e.Code) }

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// InvalidInput reports a problem with one input key.
func InvalidInput(path, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...), Path: path}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownCommand = &Error{Code: CodeUnknownCommand}
	ErrInvalidInput   = &Error{Code: CodeInvalidInput}
	ErrNotFound       = &Error{Code: CodeNotFound}
	ErrInvalidState   = &Error{Code: CodeInvalidState}
	ErrNoLLMProvider  = &Error{Code: CodeNoLLMProvider}
	ErrAgentFailed    = &Error{Code: CodeAgentFailed}
	ErrAgentInvalid   = &Error{Code: CodeAgentInvalidResult}
	ErrInternal       = &Error{Code: CodeInternal}
)

// AsError converts any error into an *Error. Missing records become
// not_found; anything else unclassified becomes internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return Wrap(CodeNotFound, err.Error(), err)
	}
	return Wrap(CodeInternal, err.Error(), err)
}
