package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript applies the fixed-window rules atomically on a hash {count, first, last}.
// Times are millisecond epochs. Returns {count, first, last, counted}. The key
// expires one millisecond after the window, on the caller's clock, so it
// outlives the last instant the window is still active.
var hitScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local first = tonumber(redis.call('HGET', KEYS[1], 'first'))
if first == nil or now - first > window then
    redis.call('HSET', KEYS[1], 'count', 1, 'first', ARGV[3], 'last', ARGV[3])
    redis.call('PEXPIREAT', KEYS[1], now + window + 1)
    return {1, now, now, 1}
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last'))
if count >= limit then
    return {count, first, last, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', ARGV[3])
return {count, first, now, 1}
`)

// Redis is a Redis-backed implementation of Store for deployments that share
// counters across instances. Window rules are identical to Memory; expired keys
// are removed by Redis key expiry instead of a sweep.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisConfig holds configuration for Redis connection.
// All fields should be populated explicitly by your application code.
// Never reads environment variables directly.
type RedisConfig struct {
	// URL is the Redis server address (e.g., "localhost:6379")
	URL string

	// Password for Redis authentication (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// Prefix is prepended to all keys (default: "authgate:rl:")
	Prefix string

	// DialTimeout is the timeout for establishing new connections (default: 5s)
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads (default: 3s)
	ReadTimeout time.Duration
}

// NewRedis creates a Redis store with the given configuration.
// Validates the connection with a ping before returning.
func NewRedis(config RedisConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisFromClient(client, config.Prefix), nil
}

// NewRedisFromClient wraps an existing client. The store takes ownership:
// Close closes the client.
func NewRedisFromClient(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "authgate:rl:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// Hit records an attempt for key. See Store.Hit for the window rules.
func (r *Redis) Hit(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Entry, bool, error) {
	result, err := hitScript.Run(ctx, r.client, []string{r.prefix + key},
		limit, window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis hit failed: %w", err)
	}
	if len(result) != 4 {
		return Entry{}, false, fmt.Errorf("unexpected result length: got %d, want 4", len(result))
	}

	return Entry{
		Count:        result[0],
		FirstAttempt: time.UnixMilli(result[1]),
		LastAttempt:  time.UnixMilli(result[2]),
	}, result[3] == 1, nil
}

// Get returns the entry for key without modifying it.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get failed: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	count, err := strconv.ParseInt(fields["count"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid count for %s: %w", key, err)
	}
	first, err := strconv.ParseInt(fields["first"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid first attempt for %s: %w", key, err)
	}
	last, err := strconv.ParseInt(fields["last"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid last attempt for %s: %w", key, err)
	}

	return Entry{
		Count:        count,
		FirstAttempt: time.UnixMilli(first),
		LastAttempt:  time.UnixMilli(last),
	}, true, nil
}

// Reset removes the entry for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
