package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool defaults applied when Config leaves a value zero.
const (
	defaultMaxConns          = 25
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = 30 * time.Minute
	defaultHealthCheckPeriod = time.Minute
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL               string
	MaxConnections    int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	// ApplicationName is reported to the server and shows up in
	// pg_stat_activity.
	ApplicationName string
}

// NewConnection creates a new database connection pool and verifies it
// with a ping.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConnections, defaultMaxConns)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	poolConfig.HealthCheckPeriod = orDefault(cfg.HealthCheckPeriod, defaultHealthCheckPeriod)

	// An application_name in the URL wins.
	if cfg.ApplicationName != "" {
		if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
			poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
