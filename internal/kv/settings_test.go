package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsStore_Defaults(t *testing.T) {
	store := NewSettingsStore(NewMemory())

	settings, err := store.Get(context.TODO())
	assert.NoError(t, err)
	assert.Equal(t, "chunked", settings.SyncProvider)
	assert.Equal(t, "top-right", settings.Position)
	assert.Equal(t, "collapsed", settings.DisplayMode)
	assert.NotEmpty(t, settings.OffsetDomains)
}

func TestSettingsStore_SaveAndGet(t *testing.T) {
	store := NewSettingsStore(NewMemory())

	settings := DefaultSettings()
	settings.SyncProvider = "gist"
	settings.GithubToken = "ghp_test"
	settings.GistID = "abc123"

	assert.NoError(t, store.Save(context.TODO(), settings))

	got, err := store.Get(context.TODO())
	assert.NoError(t, err)
	assert.Equal(t, "gist", got.SyncProvider)
	assert.Equal(t, "ghp_test", got.GithubToken)
	assert.Equal(t, "abc123", got.GistID)
}

func TestSettingsStore_CorruptRecord(t *testing.T) {
	mem := NewMemory()
	assert.NoError(t, mem.Set(context.TODO(), settingsSlot, "{not json"))

	store := NewSettingsStore(mem)
	settings, err := store.Get(context.TODO())

	assert.Error(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestMemory_Store(t *testing.T) {
	mem := NewMemory()
	ctx := context.TODO()

	_, err := mem.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mem.Set(ctx, "a", "1"))

	ok, err := mem.SetNX(ctx, "a", "2")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = mem.SetNX(ctx, "b", "2")
	assert.NoError(t, err)
	assert.True(t, ok)

	keys, err := mem.Keys(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, keys, 2)

	assert.NoError(t, mem.Delete(ctx, "a", "b"))
	keys, err = mem.Keys(ctx, "")
	assert.NoError(t, err)
	assert.Empty(t, keys)
}
