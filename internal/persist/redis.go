package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "opsbot:brain:"

// Redis stores each snapshot as a single string value; SET replaces it whole.
type Redis struct {
	opts    *redis.Options
	prefix  string
	client  *redis.Client
	started atomic.Bool
}

func NewRedis(rawURL, prefix string) (*Redis, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("redis persister requires a url")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{opts: opts, prefix: prefix}, nil
}

func (r *Redis) Start(ctx context.Context) error {
	client := redis.NewClient(r.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping: %w", err)
	}
	r.client = client
	r.started.Store(true)
	return nil
}

func (r *Redis) Verify(snapshot Snapshot) bool {
	return Verify(snapshot)
}

func (r *Redis) Save(ctx context.Context, snapshot Snapshot, key string) error {
	if !r.started.Load() {
		return ErrNotInitialized
	}
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, data, 0).Err()
}

func (r *Redis) Recover(ctx context.Context, key string) (Snapshot, error) {
	if !r.started.Load() {
		return nil, ErrNotInitialized
	}
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decode(data)
}

func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
