package kv

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Redis backs the synced scope with a redis instance shared by all devices
// of an installation.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		Protocol: 2,
	})
	return &Redis{client: client}
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	res := r.client.Get(ctx, key)
	if err := res.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return res.Val(), nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *Redis) SetNX(ctx context.Context, key, value string) (bool, error) {
	res := r.client.SetNX(ctx, key, value, 0)
	return res.Val(), res.Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	res := r.client.Keys(ctx, prefix+"*")
	return res.Val(), res.Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
