package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without internal error",
			err:      ErrNotFound,
			expected: "not_found: Resource not found",
		},
		{
			name:     "with internal error",
			err:      ErrConflict.WithInternal(errors.New("rev 3 != 4")),
			expected: "conflict: Revision precondition failed (rev 3 != 4)",
		},
		{
			name: "empty message",
			err: &Error{
				HTTPStatus: http.StatusBadRequest,
				Code:       CodeBadRequest,
			},
			expected: "bad_request: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *Error
		want   bool
	}{
		{"same sentinel", ErrReadOnly, ErrReadOnly, true},
		{"decorated message", ErrTypeMismatch.WithMessage("field Count"), ErrTypeMismatch, true},
		{"decorated details", ErrIdentityConflict.WithDetails(map[string]any{"id": 7}), ErrIdentityConflict, true},
		{"wrapped with fmt", fmt.Errorf("save item 4: %w", ErrConflict), ErrConflict, true},
		{"different code", ErrConflict, ErrRejected, false},
		{"plain error", errors.New("boom"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying cause")
	err := ErrRejected.WithInternal(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if ErrRejected.Unwrap() != nil {
		t.Error("sentinel Unwrap() should be nil")
	}
}

func TestErrorCopiesDoNotModifyOriginal(t *testing.T) {
	_ = ErrNotFound.WithInternal(errors.New("x")).WithMessage("gone").WithDetails(map[string]any{"id": 1})

	if ErrNotFound.Internal != nil || ErrNotFound.Message != "Resource not found" || ErrNotFound.Details != nil {
		t.Errorf("sentinel was modified: %+v", ErrNotFound)
	}
}

func TestWithInternalKeepsDetails(t *testing.T) {
	err := ErrRejected.WithDetails(map[string]any{"path": "/fields/x"}).WithInternal(errors.New("bad"))
	if err.Details["path"] != "/fields/x" {
		t.Errorf("Details = %v, want path preserved", err.Details)
	}
}

func TestErrorToEchoError(t *testing.T) {
	got := ErrRejected.WithDetails(map[string]any{"op": 2}).ToEchoError()
	if got.Code != http.StatusUnprocessableEntity {
		t.Errorf("ToEchoError().Code = %d, want %d", got.Code, http.StatusUnprocessableEntity)
	}

	msg, ok := got.Message.(map[string]any)
	if !ok {
		t.Fatal("ToEchoError().Message is not a map[string]any")
	}
	errBody, ok := msg["error"].(map[string]any)
	if !ok {
		t.Fatal("ToEchoError().Message['error'] is not a map[string]any")
	}
	if errBody["code"] != CodeRejected {
		t.Errorf("error code = %v, want %v", errBody["code"], CodeRejected)
	}
	if _, ok := errBody["details"]; !ok {
		t.Error("details missing from error body")
	}
}

func TestFromCode(t *testing.T) {
	tests := []struct {
		code string
		want *Error
	}{
		{CodeConflict, ErrConflict},
		{CodeNotFound, ErrNotFound},
		{CodeRejected, ErrRejected},
		{CodeIdentityConflict, ErrIdentityConflict},
		{"no_such_code", nil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := FromCode(tt.code); got != tt.want {
				t.Errorf("FromCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestToHTTPError(t *testing.T) {
	status, body := ToHTTPError(fmt.Errorf("wrapped: %w", NewNotFound("item", "42")))
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
	errBody := body["error"].(map[string]any)
	if errBody["message"] != "item '42' not found" {
		t.Errorf("message = %v", errBody["message"])
	}

	status, body = ToHTTPError(errors.New("plain"))
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", status, http.StatusInternalServerError)
	}
	if body["error"].(map[string]any)["code"] != CodeInternal {
		t.Errorf("code = %v, want %s", body["error"].(map[string]any)["code"], CodeInternal)
	}
}

func TestNewInternal(t *testing.T) {
	cause := errors.New("db down")
	err := NewInternal("load failed", cause)
	if err.HTTPStatus != http.StatusInternalServerError || err.Code != CodeInternal || err.Internal != cause {
		t.Errorf("NewInternal() = %+v", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		message  string
		wantCode string
		wantMsg  string
		is       error
	}{
		{"known code", http.StatusPreconditionFailed, CodeConflict, "stale", CodeConflict, "stale", ErrConflict},
		{"unknown code", http.StatusNotFound, "gone", "missing", CodeNotFound, "missing", ErrNotFound},
		{"empty message", http.StatusUnprocessableEntity, "", "", CodeRejected, "Unprocessable Entity", ErrRejected},
		{"server error", http.StatusBadGateway, "", "upstream", CodeInternal, "upstream", ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.status, tt.code, tt.message, nil)
			if err.Code != tt.wantCode || err.Message != tt.wantMsg || err.HTTPStatus != tt.status {
				t.Errorf("Decode() = %+v", err)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("Decode() does not match %v", tt.is)
			}
		})
	}
}
