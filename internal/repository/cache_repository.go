package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

// CacheRepository keeps JSON snapshots in Redis under a shared namespace.
// Without a client every read misses and every write is dropped.
type CacheRepository struct {
	client    redis.Cmdable
	namespace string
}

// NewCacheRepository constructs a cache repository. namespace prefixes every key, e.g. "class-session".
func NewCacheRepository(client redis.Cmdable, namespace string) *CacheRepository {
	return &CacheRepository{client: client, namespace: namespace}
}

func (r *CacheRepository) key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

// Get decodes the snapshot stored at key into dest. An entry that no longer decodes counts as a miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("read cached %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCacheMiss.Code, appErrors.ErrCacheMiss.Status, "stale cache entry")
	}
	return nil
}

// Set stores value as JSON for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("write cached %s: %w", key, err)
	}
	return nil
}
