package cachesync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink is the hash store the ranking is published to.
type Sink interface {
	// Put writes fields into the hash at key and refreshes its TTL.
	Put(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// Publish atomically replaces live with staging.
	Publish(ctx context.Context, staging, live string) error
	Drop(ctx context.Context, keys ...string) error
}

type redisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) Sink {
	return &redisSink{rdb: rdb}
}

func (s *redisSink) Put(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *redisSink) Publish(ctx context.Context, staging, live string) error {
	return s.rdb.Rename(ctx, staging, live).Err()
}

func (s *redisSink) Drop(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}
