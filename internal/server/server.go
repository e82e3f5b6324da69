// Package server builds the echo instance of the item store and ties its
// listener to the fx lifecycle.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/pkg/apperror"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
)

// MaxBodySize bounds patch documents and creation requests.
const MaxBodySize = "2M"

var Module = fx.Module("server",
	fx.Provide(NewEcho),
	fx.Invoke(StartServer),
)

// EchoParams are the dependencies of NewEcho.
type EchoParams struct {
	fx.In

	Config *config.Config
	Log    *slog.Logger
}

// NewEcho creates the echo instance with the shared middleware. Routes are
// registered by the domain modules.
func NewEcho(p EchoParams) *echo.Echo {
	log := p.Log.With(logger.Scope("http"))

	e := echo.New()
	e.Debug = p.Config.Debug
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		accessLog(log),
		recoverer(log),
		middleware.BodyLimit(MaxBodySize),
	)
	if p.Config.APIKey != "" {
		e.Use(APIKeyAuth(p.Config.APIKey))
	}
	return e
}

func quiet(c echo.Context) bool {
	switch c.Request().URL.Path {
	case "/health", "/metrics":
		return true
	}
	return false
}

// accessLog writes one record per request. Server errors log at error level,
// client errors at warn and everything else at debug.
func accessLog(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      quiet,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("route", v.RoutePath),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelDebug
			switch {
			case v.Status >= http.StatusInternalServerError:
				level = slog.LevelError
			case v.Status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			if v.Error != nil {
				attrs = append(attrs, logger.Error(v.Error))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

func recoverer(log *slog.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic recovered",
				slog.String("uri", c.Request().RequestURI),
				logger.Error(err),
				slog.String("stack", string(stack)),
			)
			return err
		},
	})
}

// APIKeyAuth requires key in the X-API-Key header or as a Bearer token on
// every /api route.
func APIKeyAuth(key string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/api/")
		},
		KeyLookup: "header:X-API-Key,header:" + echo.HeaderAuthorization + ":Bearer ",
		Validator: func(got string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return apperror.ErrUnauthorized
		},
	})
}

// StartServer binds the listener when the app starts, so a taken port fails
// startup, and drains in-flight requests on stop.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *slog.Logger) {
	log = log.With(logger.Scope("server"))
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.ServerAddress, strconv.Itoa(cfg.ServerPort)),
		Handler:      e,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("item store listening",
				slog.String("address", ln.Addr().String()),
				slog.String("environment", cfg.Environment),
				slog.String("backend", cfg.Backend),
			)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down")
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
}
