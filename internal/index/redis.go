package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL keeps fetch entries for two days.
const DefaultTTL = 48 * time.Hour

// Redis is an Index shared between machines through a redis server.
type Redis struct {
	conn   *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to the server at url, e.g. redis://localhost:6379/0.
// Entries expire after ttl; zero selects DefaultTTL.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{conn: redis.NewClient(opt), ttl: ttl, prefix: "era5wind:fetch:"}, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

func (r *Redis) Seen(ctx context.Context, key string) (string, bool, error) {
	path, err := r.conn.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (r *Redis) Mark(ctx context.Context, e Entry) error {
	return r.conn.Set(ctx, r.prefix+e.Key, e.Path, r.ttl).Err()
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.conn.Close()
}
