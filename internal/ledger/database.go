package ledger

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

func (d *Database) GetState() (*types.LedgerState, error) {
	var state types.LedgerState
	if err := d.db.First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (d *Database) CreateState(state *types.LedgerState) error {
	return d.db.Create(state).Error
}

func (d *Database) UpdatePaused(paused bool) error {
	return d.db.Model(&types.LedgerState{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"paused":     paused,
			"updated_at": time.Now(),
		}).Error
}

func (d *Database) UpdateOracleSigner(signer string) error {
	return d.db.Model(&types.LedgerState{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"oracle_signer": signer,
			"updated_at":    time.Now(),
		}).Error
}
