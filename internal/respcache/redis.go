package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix  = "respcache:entry:"
	redisUploadPrefix = "respcache:upload:"
)

// RedisStore persists cache entries in Redis for multi-instance deployments.
// Entry expiry is delegated to Redis key TTLs; upload marks never expire.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func entryKey(userID, contextID, key string) string {
	return redisEntryPrefix + userID + ":" + contextID + ":" + key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, userID, contextID, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, entryKey(userID, contextID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	return &e, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, entryKey(e.UserID, e.ContextID, e.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// LastDocumentUpload implements Store.
func (s *RedisStore) LastDocumentUpload(ctx context.Context, userID string) (time.Time, error) {
	raw, err := s.client.Get(ctx, redisUploadPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading upload mark: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding upload mark: %w", err)
	}
	return at, nil
}

// MarkDocumentUpload implements Store.
func (s *RedisStore) MarkDocumentUpload(ctx context.Context, userID string, at time.Time) error {
	if err := s.client.Set(ctx, redisUploadPrefix+userID, at.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("writing upload mark: %w", err)
	}
	return nil
}
