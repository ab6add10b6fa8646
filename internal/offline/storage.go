package offline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jafarshop/tablepos/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStorage builds the backend named by cfg.Backend. Close the returned
// closer on shutdown.
func OpenStorage(cfg config.QueueConfig) (Storage, io.Closer, error) {
	switch cfg.Backend {
	case config.QueueBackendMemory:
		return NewMemoryStorage(), nopCloser{}, nil
	case config.QueueBackendSQLite:
		s, err := OpenSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.QueueBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis queue at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStorage(client, cfg.RedisKey), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
