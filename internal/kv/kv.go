package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("key not found")

// Store is the cross-device synchronized key/value scope. It carries the
// small shared slots: the settings record, the encryption key slot, the
// chunked sync payload slots and their metadata record.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetNX writes the value only if the key is absent and reports whether
	// the write happened. Used for race-free one-time slot creation.
	SetNX(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
