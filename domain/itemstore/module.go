// Package itemstore exposes a remote.Store over HTTP.
package itemstore

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/internal/database"
	"github.com/BobSilent/aggregator-cli/internal/migrate"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
	"github.com/BobSilent/aggregator-cli/pkg/store/memstore"
	"github.com/BobSilent/aggregator-cli/pkg/store/pgstore"
)

var Module = fx.Module("itemstore",
	fx.Provide(
		NewBackend,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewBackend opens the store selected by cfg.Backend.
func NewBackend(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (remote.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPgxPool(lc, cfg, log)
		if err != nil {
			return nil, err
		}
		db := database.NewBunDB(lc, pool, cfg, log)
		if cfg.Database.AutoMigrate {
			if err := migrate.NewMigrator(db, log).Up(context.Background()); err != nil {
				return nil, err
			}
		}
		return pgstore.New(db, cfg.ItemsURL(), log), nil
	case config.BackendMemory:
		log.Warn("using in-memory store, items are lost on shutdown")
		return memstore.New(cfg.ItemsURL()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
