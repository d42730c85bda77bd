package store

import (
	"context"
	"errors"

	"github.com/emrgen/pagenote/internal/model"
)

// ErrVaultNotFound marks an absent blob slot; callers fall back to an empty
// document.
var ErrVaultNotFound = errors.New("vault not found")

// Store is the local-scope persistence for the encrypted document blob.
type Store interface {
	// GetVault retrieves the blob for a slot.
	GetVault(ctx context.Context, slot string) (*model.Vault, error)
	// PutVault replaces the blob for a slot in one write.
	PutVault(ctx context.Context, vault *model.Vault) error
	Migrate() error
}
