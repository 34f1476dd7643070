package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/migrations"
	"github.com/ekaya-inc/risk-register/pkg/config"
	"github.com/ekaya-inc/risk-register/pkg/database"
	"github.com/ekaya-inc/risk-register/pkg/logging"
	"github.com/ekaya-inc/risk-register/pkg/retry"
)

// RiskStore is an opened backend for the configured store driver.
type RiskStore struct {
	Risks RiskRepository
	// Ping checks the backend is reachable.
	Ping func(ctx context.Context) error
	// Close releases the backend's connections.
	Close func()
}

// OpenRiskStore connects to the backend selected by cfg.Store.Driver. For
// PostgreSQL, pending migrations are applied first when enabled.
func OpenRiskStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RiskStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		return openPostgresStore(ctx, cfg, logger)
	case config.StoreDriverRedis:
		return openRedisStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RiskStore, error) {
	connStr := cfg.Database.ConnectionString()
	logger.Info("Connecting to PostgreSQL",
		zap.String("dsn", logging.SanitizeConnectionString(connStr)),
		zap.Int32("max_connections", cfg.Database.MaxConnections))

	// Connect first so a database that is still starting is waited for
	// before migrations run.
	db, err := retry.DoWithResult(ctx, connectRetryConfig(cfg, logger, "postgres"), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:             connStr,
			MaxConnections:  cfg.Database.MaxConnections,
			ApplicationName: cfg.Database.AppName,
		})
	})
	if err != nil {
		return nil, err
	}

	if cfg.Store.RunMigrations {
		if err := database.MigrateURL(connStr, migrations.FS, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &RiskStore{
		Risks: NewPostgresRiskRepository(db),
		Ping:  db.Ping,
		Close: db.Close,
	}, nil
}

func openRedisStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RiskStore, error) {
	logger.Info("Connecting to Redis",
		zap.String("addr", logging.SanitizeConnectionString(redisTarget(&cfg.Redis))),
		zap.Int("db", cfg.Redis.DB),
		zap.String("key_prefix", cfg.Redis.KeyPrefix))

	client, err := retry.DoWithResult(ctx, connectRetryConfig(cfg, logger, "redis"), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return nil, err
	}

	return &RiskStore{
		Risks: NewRedisRiskRepository(client, cfg.Redis.KeyPrefix),
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		Close: func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close Redis client", zap.Error(err))
			}
		},
	}, nil
}

func redisTarget(cfg *config.RedisConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return cfg.Addr()
}

// connectRetryConfig builds the startup backoff from cfg.Store and logs each
// failed attempt.
func connectRetryConfig(cfg *config.Config, logger *zap.Logger, driver string) *retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.Store.ConnectRetries
	rc.InitialDelay = cfg.Store.ConnectBackoff
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Store connection failed, retrying",
			zap.String("driver", driver),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("error", logging.SanitizeError(err)))
	}
	return rc
}
