package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jafarshop/tablepos/internal/domain"
)

// RedisStorage keeps queue order in a list of ids and the records in a hash
// keyed by id, so removal from the middle does not rewrite payloads.
type RedisStorage struct {
	client  redis.UniversalClient
	listKey string
	hashKey string
}

// NewRedisStorage stores the queue under key and key+":items"
func NewRedisStorage(client redis.UniversalClient, key string) *RedisStorage {
	if key == "" {
		key = "tablepos:queue"
	}
	return &RedisStorage{
		client:  client,
		listKey: key,
		hashKey: key + ":items",
	}
}

func (r *RedisStorage) Append(ctx context.Context, item domain.QueuedSubmission) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queued submission: %w", err)
	}

	id := item.ID.String()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.hashKey, id, data)
		pipe.RPush(ctx, r.listKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to redis queue: %w", err)
	}
	return nil
}

func (r *RedisStorage) List(ctx context.Context) ([]domain.QueuedSubmission, error) {
	ids, err := r.client.LRange(ctx, r.listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis queue: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, r.hashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis queue items: %w", err)
	}

	items := make([]domain.QueuedSubmission, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// removed between LRANGE and HMGET
			continue
		}
		var item domain.QueuedSubmission
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to decode queued submission %s: %w", ids[i], err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *RedisStorage) Remove(ctx context.Context, id uuid.UUID) error {
	key := id.String()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, r.listKey, 0, key)
		pipe.HDel(ctx, r.hashKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove from redis queue: %w", err)
	}
	return nil
}
