package app

import (
	"context"
	"database/sql"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/db"
	"helpdesk/internal/logger"
	"helpdesk/internal/redis"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

const connectTimeout = 30 * time.Second

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

// connectPolicy retries a dependency with exponential backoff until
// connectTimeout elapses or ctx is cancelled.
func connectPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	return backoff.WithContext(b, ctx)
}

func notifyRetry(dep string) backoff.Notify {
	return func(err error, wait time.Duration) {
		logger.Warn(dep+" not ready, retrying", map[string]any{
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	err = backoff.RetryNotify(func() error {
		return sqlDB.PingContext(ctx)
	}, connectPolicy(ctx), notifyRetry("database"))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := db.RunMigration(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	var redisClient *redis.Client
	err = backoff.RetryNotify(func() error {
		c, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		redisClient = c
		return nil
	}, connectPolicy(ctx), notifyRetry("redis"))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("redis ready", nil)

	return &Infra{
		DB:    &db.DB{DB: sqlDB},
		Redis: redisClient,
	}, nil
}

func (i *Infra) Close() error {
	redisErr := i.Redis.Close()
	if err := i.DB.Close(); err != nil {
		return err
	}
	return redisErr
}
