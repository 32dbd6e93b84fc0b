package database

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/alumnigate/internal/config"
	"github.com/redis/go-redis/v9"
)

// Redis wraps the Redis client used by the alternative rate-limit store
type Redis struct {
	*redis.Client
}

// NewRedis creates a new Redis connection
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Redis{Client: client}, nil
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx).Err()
}
