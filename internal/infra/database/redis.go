package database

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// PingRedis fails fast when the configured server is unreachable.
func PingRedis(ctx context.Context, client *redis.Client) error {
	return errors.Wrap(client.Ping(ctx).Err(), "ping redis")
}
