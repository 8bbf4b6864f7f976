package rounds

import (
	"errors"

	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRound(round *types.Round) error {
	return d.db.Create(round).Error
}

func (d *Database) GetRound(roundID string) (*types.Round, error) {
	var round types.Round
	if err := d.db.Where("round_id = ?", roundID).First(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}
