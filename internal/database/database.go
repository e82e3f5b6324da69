// Package database opens the PostgreSQL pool behind pgstore and exposes it
// through bun.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/BobSilent/aggregator-cli/internal/config"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	slowQuery      = 3 * time.Second
)

// PoolConfig translates the database settings into a pgx pool config.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxOpenConns)
	pc.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns))
	pc.MaxConnIdleTime = cfg.MaxIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "itemstore"
	return pc, nil
}

// NewPgxPool connects the pool and verifies it with a ping. The pool is
// closed when the app stops.
func NewPgxPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	log = log.With(logger.Scope("database"))

	pc, err := PoolConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}

	log.Info("connected",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", int(pc.MaxConns)),
	)
	lc.Append(fx.StopHook(pool.Close))
	return pool, nil
}

// NewBunDB wraps the pool in a bun.DB. With DB_QUERY_DEBUG every query is
// logged.
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *bun.DB {
	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	if cfg.Database.QueryDebug {
		db.AddQueryHook(&queryLoggingHook{log: log.With(logger.Scope("bun")), slow: slowQuery})
	}
	lc.Append(fx.StopHook(db.Close))
	return db
}

type queryLoggingHook struct {
	log  *slog.Logger
	slow time.Duration
}

func (h *queryLoggingHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLoggingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	attrs := []slog.Attr{
		slog.String("op", event.Operation()),
		slog.String("query", event.Query),
		slog.Duration("duration", elapsed),
	}
	if event.Result != nil {
		if n, err := event.Result.RowsAffected(); err == nil {
			attrs = append(attrs, slog.Int64("rows", n))
		}
	}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.LogAttrs(ctx, slog.LevelError, "query error", append(attrs, logger.Error(event.Err))...)
	case elapsed > h.slow:
		h.log.LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
	default:
		h.log.LogAttrs(ctx, slog.LevelDebug, "query", attrs...)
	}
}
