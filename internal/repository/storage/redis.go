package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RedisStorage owns the Redis connection behind the shared document store.
type RedisStorage struct {
	Connection *redis.Client
	Store      *docstore.Redis
}

func NewRedisStorage(ctx context.Context, logger *slog.Logger, addr, keyPrefix string) (*RedisStorage, error) {
	if addr == "" {
		return nil, ErrAddrNotFound
	}

	conn := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{
		Connection: conn,
		Store:      docstore.NewRedis(logger, conn, keyPrefix),
	}, nil
}

func (that *RedisStorage) Close() error {
	return that.Connection.Close()
}
