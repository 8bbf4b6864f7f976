package assets

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// EnsureAsset inserts or re-enables an asset entry.
func (d *Database) EnsureAsset(asset string) error {
	var entry types.AssetEntry
	err := d.db.Where("asset = ?", asset).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(&types.AssetEntry{Asset: asset, Enabled: true}).Error
	}
	if err != nil {
		return err
	}
	if entry.Enabled {
		return nil
	}
	return d.db.Model(&types.AssetEntry{}).
		Where("asset = ?", asset).
		Updates(map[string]interface{}{
			"enabled":    true,
			"updated_at": time.Now(),
		}).Error
}

// DisableAsset turns off an asset entry. Disabling an unknown asset is a
// no-op, matching registry semantics.
func (d *Database) DisableAsset(asset string) error {
	return d.db.Model(&types.AssetEntry{}).
		Where("asset = ?", asset).
		Updates(map[string]interface{}{
			"enabled":    false,
			"updated_at": time.Now(),
		}).Error
}

func (d *Database) IsEnabled(asset string) (bool, error) {
	var entry types.AssetEntry
	if err := d.db.Where("asset = ?", asset).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return entry.Enabled, nil
}
