package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Document is a decoded cache entry. A missing or malformed entry loads as {}.
type Document = map[string]any

// ErrInvalidKey is returned for cache names outside [A-Za-z0-9_.-].
var ErrInvalidKey = errors.New("cache: invalid key")

var cacheKeyRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

const redisKeyPrefix = "statube:cache:"

// Cache metrics, updated atomically.
var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

// Cache is a durable key→JSON document store: one file per key under dir
// (L1, survives restarts) mirrored to Redis when configured (L2).
type Cache struct {
	dir string
	rdb *redis.Client // nil if Redis unavailable
	mu  sync.Mutex    // serializes writers per process
}

// NewCache creates the cache directory. redisURL can be empty to disable the mirror.
func NewCache(dir, redisURL string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	c := &Cache{dir: dir}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, mirror disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, mirror disabled", slog.Any("error", err))
				rdb.Close()
			} else {
				c.rdb = rdb
				slog.Info("cache: redis mirror connected", slog.String("addr", opts.Addr))
			}
		}
	}

	slog.Info("cache: initialized", slog.String("dir", dir), slog.Bool("redis", c.rdb != nil))
	return c, nil
}

// Path returns the file backing name.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name+".json")
}

// Load returns the document stored under name, or an empty document when the
// entry is missing, malformed or not a JSON object.
func (c *Cache) Load(ctx context.Context, name string) Document {
	data, ok := c.raw(ctx, name)
	if !ok {
		return Document{}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return Document{}
	}
	return doc
}

// Save writes v (any JSON-encodable value) under name, replacing the old entry.
func (c *Cache) Save(ctx context.Context, name string, v any) error {
	if !cacheKeyRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", name, err)
	}

	c.mu.Lock()
	err = WriteFileAtomic(c.Path(name), data)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", name, err)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, redisKeyPrefix+name, data, 0).Err(); err != nil {
			slog.Debug("cache: redis set failed", slog.String("key", name), slog.Any("error", err))
		}
	}
	return nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// raw returns valid JSON bytes for name from disk, falling back to Redis.
func (c *Cache) raw(ctx context.Context, name string) ([]byte, bool) {
	if !cacheKeyRe.MatchString(name) {
		cacheMisses.Add(1)
		return nil, false
	}
	if data, err := os.ReadFile(c.Path(name)); err == nil && json.Valid(data) {
		cacheHits.Add(1)
		return data, true
	}
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisKeyPrefix+name).Bytes()
		if err == nil && json.Valid(data) {
			slog.Debug("cache: redis hit", slog.String("key", name))
			cacheHits.Add(1)
			return data, true
		}
	}
	cacheMisses.Add(1)
	return nil, false
}

// CacheLoadJSON decodes the entry under name into T.
// Returns the zero value and false on miss or decode error.
func CacheLoadJSON[T any](ctx context.Context, c *Cache, name string) (T, bool) {
	var out T
	data, ok := c.raw(ctx, name)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// CacheStats returns current cache hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}
