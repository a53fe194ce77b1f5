package markstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores the mark under a single key, for agents that share state.
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, key string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}
	return NewRedis(rdb, key), nil
}

func (r *Redis) Load(ctx context.Context) (int64, bool, error) {
	mark, err := r.rdb.Get(ctx, r.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load mark %s: %w", r.key, err)
	}
	return mark, true, nil
}

func (r *Redis) Save(ctx context.Context, mark int64) error {
	if err := r.rdb.Set(ctx, r.key, mark, 0).Err(); err != nil {
		return fmt.Errorf("save mark %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
