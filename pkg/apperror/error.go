package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error is an error with a stable code and the HTTP status it maps to.
// Sentinels below are never mutated; the With helpers return copies.
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Internal != nil {
		msg += " (" + e.Internal.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Is reports whether target is an *Error with the same code, so decorated
// copies of a sentinel still match it under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ToEchoError wraps the error body in an echo.HTTPError.
func (e *Error) ToEchoError() *echo.HTTPError {
	return echo.NewHTTPError(e.HTTPStatus, map[string]any{
		"error": e.body(),
	})
}

func (e *Error) body() map[string]any {
	b := map[string]any{"code": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		b["details"] = e.Details
	}
	return b
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

// WithInternal attaches the underlying cause. It is logged but never sent
// to clients.
func (e *Error) WithInternal(err error) *Error {
	c := e.clone()
	c.Internal = err
	return c
}

// WithMessage replaces the client-facing message.
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithMessagef is WithMessage with fmt.Sprintf formatting.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails attaches structured details, such as the ids involved.
func (e *Error) WithDetails(details map[string]any) *Error {
	c := e.clone()
	c.Details = details
	return c
}

// New creates a sentinel error.
func New(status int, code, message string) *Error {
	return &Error{HTTPStatus: status, Code: code, Message: message}
}

// Error codes shared with remote stores. The wire format carries the code
// string, clients map it back onto the sentinel below.
const (
	CodeReadOnly         = "read_only_violation"
	CodeTypeMismatch     = "type_mismatch"
	CodeAlreadyPermanent = "already_permanent"
	CodeIdentityConflict = "identity_conflict"
	CodeConflict         = "conflict"
	CodeRejected         = "rejected"
	CodeNotFound         = "not_found"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal_error"
	CodeUnauthorized     = "unauthorized"
)

var (
	// Local model errors. These never reach a remote store.
	ErrReadOnly         = New(http.StatusUnprocessableEntity, CodeReadOnly, "Item is read-only")
	ErrTypeMismatch     = New(http.StatusUnprocessableEntity, CodeTypeMismatch, "Field value has a different type")
	ErrAlreadyPermanent = New(http.StatusConflict, CodeAlreadyPermanent, "Item already has a permanent identity")
	ErrIdentityConflict = New(http.StatusConflict, CodeIdentityConflict, "Identity is already owned by another item")

	// Remote store errors
	ErrConflict = New(http.StatusPreconditionFailed, CodeConflict, "Revision precondition failed")
	ErrRejected = New(http.StatusUnprocessableEntity, CodeRejected, "Patch rejected")
	ErrNotFound = New(http.StatusNotFound, CodeNotFound, "Resource not found")

	ErrUnauthorized = New(http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
	ErrBadRequest   = New(http.StatusBadRequest, CodeBadRequest, "Invalid request")
	ErrInternal     = New(http.StatusInternalServerError, CodeInternal, "An internal error occurred")
)

var byCode = map[string]*Error{
	CodeReadOnly:         ErrReadOnly,
	CodeTypeMismatch:     ErrTypeMismatch,
	CodeAlreadyPermanent: ErrAlreadyPermanent,
	CodeIdentityConflict: ErrIdentityConflict,
	CodeConflict:         ErrConflict,
	CodeRejected:         ErrRejected,
	CodeNotFound:         ErrNotFound,
	CodeUnauthorized:     ErrUnauthorized,
	CodeBadRequest:       ErrBadRequest,
	CodeInternal:         ErrInternal,
}

// FromCode returns the sentinel registered for code, or nil.
func FromCode(code string) *Error {
	return byCode[code]
}

// ToHTTPError returns the status and response body for err. Errors that are
// not an *Error render as ErrInternal.
func ToHTTPError(err error) (int, map[string]any) {
	appErr := ErrInternal
	errors.As(err, &appErr)
	return appErr.HTTPStatus, map[string]any{"error": appErr.body()}
}

// NewBadRequest is ErrBadRequest with message.
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound reports a missing resource, e.g. "item '42' not found".
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessagef("%s '%s' not found", resourceType, id)
}

// NewRejected is ErrRejected with message.
func NewRejected(message string) *Error {
	return ErrRejected.WithMessage(message)
}

// NewInternal is ErrInternal with message and an optional cause.
func NewInternal(message string, err error) *Error {
	return ErrInternal.WithMessage(message).WithInternal(err)
}

// Decode rebuilds an error received from a remote store. Unknown codes fall
// back to the code for status.
func Decode(status int, code, message string, details map[string]any) *Error {
	if FromCode(code) == nil {
		code = codeForStatus(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return New(status, code, message).WithDetails(details)
}
