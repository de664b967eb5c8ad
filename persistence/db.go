// Package persistence opens the SQL and Redis backends used by authd and
// applies the embedded schema migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/config"
)

// Open connects to the configured database and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger auth.Logger) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case config.DriverPostgres:
		sqldb, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.Debug {
		db.AddQueryHook(NewQueryLogger(logger))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// QueryLogger is a bun query hook that logs statements at debug level.
type QueryLogger struct {
	logger auth.Logger
}

func NewQueryLogger(logger auth.Logger) *QueryLogger {
	if logger == nil {
		logger = auth.NewZapLogger(nil)
	}
	return &QueryLogger{logger: logger}
}

func (q *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	args := []any{
		"operation", event.Operation(),
		"duration", time.Since(event.StartTime).String(),
		"query", event.Query,
	}
	if event.Err != nil && event.Err != sql.ErrNoRows {
		q.logger.Warn("query failed", append(args, "error", event.Err)...)
		return
	}
	q.logger.Debug("query", args...)
}

var _ bun.QueryHook = (*QueryLogger)(nil)
