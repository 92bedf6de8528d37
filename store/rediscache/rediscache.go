// Package rediscache implements the content-addressed response cache on
// Redis, for deployments that want cached answers shared across instances
// without touching PostgreSQL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ugnoguchigxp/regular-rag/model"
)

// Store implements the response cache on Redis. Each entry is one hash keyed
// by the request hash, so hit accounting is a single HINCRBY.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "regularrag:"
	TTL      time.Duration // entry expiration, default 0 (no expiration)
}

// New creates a Redis-backed cache store.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Prefix, opts.TTL)
}

// NewWithClient wraps an existing Redis client. Useful for testing with
// miniredis.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "regularrag:"
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) entryKey(hash string) string {
	return fmt.Sprintf("%scache:%s", s.prefix, hash)
}

// FindByHash returns the cached entry for a request hash, or nil when there
// is none.
func (s *Store) FindByHash(ctx context.Context, hash string) (*model.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	// A hit-count bump racing entry expiration can recreate the key with
	// only accounting fields. Such a ghost has no answer to serve.
	if _, ok := fields["response"]; !ok {
		return nil, nil
	}

	entry := &model.CacheEntry{
		RequestHash: hash,
		Question:    fields["question"],
		Response:    fields["response"],
	}

	if raw := fields["context"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entry.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache context: %w", err)
		}
	}
	if raw := fields["hit_count"]; raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &entry.HitCount); err != nil {
			return nil, fmt.Errorf("failed to parse hit count: %w", err)
		}
	}
	if raw := fields["last_hit_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last hit time: %w", err)
		}
		entry.LastHitAt = &t
	}
	if raw := fields["created_at"]; raw != "" {
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("failed to parse created time: %w", err)
		}
	}
	if raw := fields["updated_at"]; raw != "" {
		if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("failed to parse updated time: %w", err)
		}
	}

	return entry, nil
}

// Save upserts a cache entry, overwriting question, context and response on
// an existing hash. Hit accounting fields are preserved.
func (s *Store) Save(ctx context.Context, hash, question string, reqContext map[string]any, response string) error {
	contextJSON := ""
	if reqContext != nil {
		data, err := json.Marshal(reqContext)
		if err != nil {
			return fmt.Errorf("failed to marshal cache context: %w", err)
		}
		contextJSON = string(data)
	}

	key := s.entryKey(hash)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "created_at", now)
	pipe.HSetNX(ctx, key, "hit_count", 0)
	pipe.HSet(ctx, key,
		"question", question,
		"context", contextJSON,
		"response", response,
		"updated_at", now,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save cache entry to redis: %w", err)
	}
	return nil
}

// IncrementHitCount atomically bumps the hit counter and stamps the hit time.
// Missing entries are left untouched.
func (s *Store) IncrementHitCount(ctx context.Context, hash string) error {
	key := s.entryKey(hash)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check cache entry: %w", err)
	}
	if exists == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, "hit_count", 1)
	pipe.HSet(ctx, key, "last_hit_at", now)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}
	return nil
}
