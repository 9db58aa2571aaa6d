package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKV is the subset of *redis.Client used by RedisThreadStore.
type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisThreadStore keeps suspended threads in redis so any API instance can
// resume them.
type RedisThreadStore struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

// NewRedisThreadStore wraps client; ttl <= 0 selects DefaultThreadTTL.
func NewRedisThreadStore(client redisKV, ttl time.Duration) *RedisThreadStore {
	if ttl <= 0 {
		ttl = DefaultThreadTTL
	}
	return &RedisThreadStore{
		client: client,
		prefix: "tutor:thread:",
		ttl:    ttl,
	}
}

func (s *RedisThreadStore) Save(ctx context.Context, thread PendingThread) error {
	if thread.ID == "" {
		return errors.New("thread id is required")
	}
	payload, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("encode thread: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+thread.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	return nil
}

func (s *RedisThreadStore) Take(ctx context.Context, id string) (PendingThread, error) {
	raw, err := s.client.GetDel(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingThread{}, ErrThreadNotFound
	}
	if err != nil {
		return PendingThread{}, fmt.Errorf("take thread: %w", err)
	}

	var thread PendingThread
	if err := json.Unmarshal(raw, &thread); err != nil {
		return PendingThread{}, fmt.Errorf("decode thread: %w", err)
	}
	return thread, nil
}
