package settlement

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

// MarkSettled records the outcome atomically. The settled = false guard
// makes the transition happen at most once; a second relay affects zero
// rows and returns false.
func (d *Database) MarkSettled(roundID string, closePrice uint64, outcome uint8) (bool, error) {
	result := d.db.Model(&types.Round{}).
		Where("round_id = ? AND settled = ?", roundID, false).
		Updates(map[string]interface{}{
			"close_price": closePrice,
			"outcome":     outcome,
			"status":      types.RoundStatusSettled,
			"settled":     true,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetOverdueRounds returns unsettled rounds whose end time passed more
// than the grace period ago.
func (d *Database) GetOverdueRounds(now time.Time, grace time.Duration) ([]types.Round, error) {
	cutoff := now.Add(-grace).Unix()
	var overdue []types.Round
	if err := d.db.Where("settled = ? AND end_time < ?", false, cutoff).
		Order("end_time ASC").
		Find(&overdue).Error; err != nil {
		return nil, err
	}
	return overdue, nil
}
