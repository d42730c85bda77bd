package store

import (
	"context"
	"errors"

	"github.com/emrgen/pagenote/internal/model"
	"gorm.io/gorm"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) GetVault(ctx context.Context, slot string) (*model.Vault, error) {
	vault, err := model.GetVault(g.db.WithContext(ctx), slot)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	return vault, nil
}

func (g *GormStore) PutVault(ctx context.Context, vault *model.Vault) error {
	return model.PutVault(g.db.WithContext(ctx), vault)
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}
