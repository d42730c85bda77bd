package model

import (
	"gorm.io/gorm"
)

// Vault is the single encrypted blob holding the full note document of this
// device. Every write replaces the whole payload, so persistence is atomic
// at blob granularity.
type Vault struct {
	gorm.Model
	Slot        string `gorm:"uniqueIndex;not null"`
	Payload     string `gorm:"not null"` // base64(nonce || ciphertext)
	Compression string // codec applied to the plaintext before encryption
}

func GetVault(db *gorm.DB, slot string) (*Vault, error) {
	vault := &Vault{}
	err := db.Where("slot = ?", slot).First(vault).Error
	if err != nil {
		return nil, err
	}
	return vault, nil
}

// PutVault upserts the blob for a slot.
func PutVault(db *gorm.DB, vault *Vault) error {
	existing := &Vault{}
	err := db.Where("slot = ?", vault.Slot).First(existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return db.Create(vault).Error
		}
		return err
	}
	existing.Payload = vault.Payload
	existing.Compression = vault.Compression
	return db.Save(existing).Error
}
