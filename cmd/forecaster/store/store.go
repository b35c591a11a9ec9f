// Package store creates the forecaster's snapshot storage backend.
//
// Supported backends:
//
//   - memory: in-process, lost on restart (default)
//   - redis: shared between replicas, expiring after RedisTTL
//   - sqlite: local file keeping every run
//
// Connectivity is checked at startup so the forecaster never runs with a
// broken backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/rainfall/cmd/forecaster/config"
	"github.com/HatiCode/rainfall/pkg/storage"
)

// New opens the backend selected by cfg.Storage. The returned close function
// releases it and is never nil.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			redisStore.Close()
			return nil, nil, fmt.Errorf("redis health check: %w", err)
		}
		logger.Info("redis storage initialized successfully")
		return redisStore, redisStore.Close, nil

	case "sqlite":
		logger.Info("initializing sqlite storage", "path", cfg.SQLitePath)
		sqliteStore, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		runs, err := sqliteStore.Count(cfg.Series)
		if err != nil {
			sqliteStore.Close()
			return nil, nil, fmt.Errorf("sqlite health check: %w", err)
		}
		logger.Info("sqlite storage initialized successfully", "series", cfg.Series, "stored_runs", runs)
		return sqliteStore, sqliteStore.Close, nil

	case "memory":
		logger.Info("initializing in-memory storage")
		return storage.NewMemoryStore(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}
