package main

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/userauth/internal/config"
	"github.com/yourusername/userauth/internal/user"
)

// setupStore は STORE_DRIVER に応じたユーザーストアを作成します。
func setupStore(ctx context.Context, cfg *config.Config) (user.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		return user.ConnectMongo(ctx, cfg.MongoURL, cfg.MongoDatabase)
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return user.NewRedisStore(rdb), nil
	case config.StoreMemory:
		return user.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
