// Package main runs the item store server: a REST API for revisioned items
// backed by memory or Postgres.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/BobSilent/aggregator-cli/domain/itemstore"
	"github.com/BobSilent/aggregator-cli/domain/tracing"
	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/internal/server"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
)

func main() {
	// .env.local overrides .env
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(app()).Run()
}

func app() fx.Option {
	return fx.Options(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		server.Module,
		tracing.Module,

		// Domain modules
		itemstore.Module,
	)
}
