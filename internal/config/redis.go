package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// isRedisURI reports whether RedisURL is a full redis:// or rediss:// URI
// rather than a bare host:port.
func (c *Config) isRedisURI() bool {
	return strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://")
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	var rdb *redis.Client

	if cfg.isRedisURI() {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

// AsynqRedisOpt returns the connection options the job queue uses.
func (c *Config) AsynqRedisOpt() (asynq.RedisConnOpt, error) {
	if c.isRedisURI() {
		opt, err := asynq.ParseRedisURI(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     c.RedisURL,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}, nil
}
