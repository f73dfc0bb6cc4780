package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore shares build records between the listener and other processes.
type RedisStore struct {
	redis *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redis *redis.Client) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) key(image string) string {
	return fmt.Sprintf("forge:history:%s", image)
}

func (s *RedisStore) Latest(ctx context.Context, image string) (*Record, error) {
	res, err := s.redis.Get(ctx, s.key(image)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var r Record
	if err := json.Unmarshal([]byte(res), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.key(record.Image), b, 0).Err()
}
