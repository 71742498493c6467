// Package redisstore keeps pending plays in Redis, one key per channel.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaminalder/codex-greed/internal/config"
	"github.com/jaminalder/codex-greed/internal/domain"
)

// Store implements app.Store on Redis. Pending plays expire after ttl so an
// abandoned challenge does not linger forever.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewClient builds a Redis client from config.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// New wraps client. A zero ttl keeps records until they are resolved.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "greed:play:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(channel string) string { return s.prefix + channel }

func (s *Store) Get(ctx context.Context, channel string) (domain.PlayRecord, bool, error) {
	b, err := s.client.Get(ctx, s.key(channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PlayRecord{}, false, nil
	}
	if err != nil {
		return domain.PlayRecord{}, false, fmt.Errorf("redis get %s: %w", channel, err)
	}
	var rec domain.PlayRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.PlayRecord{}, false, fmt.Errorf("decode play record: %w", err)
	}
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, channel string, rec domain.PlayRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode play record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(channel), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", channel, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, channel string) error {
	if err := s.client.Del(ctx, s.key(channel)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", channel, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
