package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/costcast/internal/config"
)

type RedisClient struct {
	Client *redis.Client
	logger *logrus.Logger
}

func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewRedisConnection(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rdb := redis.NewClient(RedisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", rdb.Options().Addr).Info("Successfully connected to Redis")
	return &RedisClient{Client: rdb, logger: logger}, nil
}

func (r *RedisClient) Close() {
	if r.Client != nil {
		_ = r.Client.Close()
		if r.logger != nil {
			r.logger.Info("Redis connection closed")
		}
	}
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.Client.Ping(ctx).Err()
}
