package crypto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emrgen/pagenote/internal/kv"
	"github.com/sirupsen/logrus"
)

const keySlot = "_pagenote_enc_key"

// KeyManager owns the installation encryption key. The key is generated once
// and persisted in the synced scope so every device encrypts with the same
// key for the lifetime of the installation.
type KeyManager struct {
	store kv.Store

	mu     sync.Mutex
	cached string
}

func NewKeyManager(store kv.Store) *KeyManager {
	return &KeyManager{store: store}
}

// GetOrCreateKey returns the persisted key, creating it on first use.
// Creation is check-then-set against the key slot: when two first-time
// callers race, the loser discards its candidate and adopts the stored key,
// so two devices can never end up with different keys.
func (m *KeyManager) GetOrCreateKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	key, err := m.store.Get(ctx, keySlot)
	if err == nil {
		m.cached = key
		return key, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("read key slot: %w", err)
	}

	candidate, err := GenerateKey()
	if err != nil {
		return "", err
	}
	created, err := m.store.SetNX(ctx, keySlot, candidate)
	if err != nil {
		return "", fmt.Errorf("write key slot: %w", err)
	}
	if !created {
		// Another device won the race; defer to its key.
		key, err = m.store.Get(ctx, keySlot)
		if err != nil {
			return "", fmt.Errorf("read key slot after lost race: %w", err)
		}
		m.cached = key
		return key, nil
	}

	logrus.Info("generated new installation encryption key")
	m.cached = candidate
	return candidate, nil
}
