package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags caseload connections in pg_stat_activity.
const ApplicationName = "caseload"

// poolConfig parses databaseURL and applies the server's pool limits. Sessions
// store wall-clock strings, so only created_at/updated_at depend on the
// connection time zone, which is pinned to UTC.
func poolConfig(databaseURL string, maxConns, minConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if minConns > maxConns {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", minConns, maxConns)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = ApplicationName
	}
	params["timezone"] = "UTC"
	return cfg, nil
}

// NewPool opens a pool for the caseload schema and pings it once.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(databaseURL, maxConns, minConns)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
