package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler returns an Echo error handler that renders every error
// as {"error": {"code", "message", "details"}}. Server errors are logged
// with their internal cause.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := fromAny(err)
		if status >= http.StatusInternalServerError {
			log.Error("request error",
				slog.Int("status", status),
				slog.String("uri", c.Request().RequestURI),
				slog.String("error", err.Error()),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, map[string]any{"error": body})
	}
}

// fromAny maps the errors handlers return, including echo's own, onto a
// status and error body.
func fromAny(err error) (int, map[string]any) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.body()
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return http.StatusInternalServerError, ErrInternal.body()
	}
	switch msg := he.Message.(type) {
	case map[string]any:
		// Built by ToEchoError.
		if inner, ok := msg["error"].(map[string]any); ok {
			return he.Code, inner
		}
	case string:
		return he.Code, map[string]any{"code": codeForStatus(he.Code), "message": msg}
	}
	return he.Code, map[string]any{"code": codeForStatus(he.Code), "message": http.StatusText(he.Code)}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return CodeBadRequest
	case http.StatusConflict, http.StatusPreconditionFailed:
		return CodeConflict
	case http.StatusUnprocessableEntity:
		return CodeRejected
	default:
		return CodeInternal
	}
}
