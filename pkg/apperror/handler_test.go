package apperror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serve(t *testing.T, method string, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	handler := HTTPErrorHandler(slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	handler(err, e.NewContext(req, rec))

	if method == http.MethodHead {
		return rec, nil
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return rec, resp["error"].(map[string]any)
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	rec, errObj := serve(t, http.MethodGet, ErrConflict.WithMessage("rev mismatch"))

	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusPreconditionFailed)
	}
	if errObj["code"] != CodeConflict {
		t.Errorf("Code = %v, want %s", errObj["code"], CodeConflict)
	}
	if errObj["message"] != "rev mismatch" {
		t.Errorf("Message = %v, want 'rev mismatch'", errObj["message"])
	}
}

func TestHTTPErrorHandler_EchoError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"not found", http.StatusNotFound, CodeNotFound},
		{"bad request", http.StatusBadRequest, CodeBadRequest},
		{"conflict", http.StatusConflict, CodeConflict},
		{"unprocessable", http.StatusUnprocessableEntity, CodeRejected},
		{"unauthorized", http.StatusUnauthorized, CodeUnauthorized},
		{"teapot", http.StatusTeapot, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, errObj := serve(t, http.MethodGet, echo.NewHTTPError(tt.status, "boom"))
			if rec.Code != tt.status {
				t.Errorf("Status = %d, want %d", rec.Code, tt.status)
			}
			if errObj["code"] != tt.wantCode {
				t.Errorf("Code = %v, want %s", errObj["code"], tt.wantCode)
			}
			if errObj["message"] != "boom" {
				t.Errorf("Message = %v, want boom", errObj["message"])
			}
		})
	}
}

func TestHTTPErrorHandler_StructuredEchoError(t *testing.T) {
	rec, errObj := serve(t, http.MethodGet, ErrRejected.WithMessage("bad path").ToEchoError())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if errObj["code"] != CodeRejected || errObj["message"] != "bad path" {
		t.Errorf("error = %v", errObj)
	}
}

func TestHTTPErrorHandler_HeadHasNoBody(t *testing.T) {
	rec, _ := serve(t, http.MethodHead, ErrNotFound)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", rec.Body.String())
	}
}
