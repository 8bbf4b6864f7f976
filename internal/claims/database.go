package claims

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

func (d *Database) GetBet(roundID, bettor string) (*types.Bet, error) {
	var bet types.Bet
	if err := d.db.Where("round_id = ? AND bettor = ?", roundID, bettor).First(&bet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bet, nil
}

// MarkClaimed consumes the claim. The claimed = false guard means two
// racing claims cannot both observe an unclaimed bet: the second affects
// zero rows and returns false.
func (d *Database) MarkClaimed(roundID, bettor string) (bool, error) {
	result := d.db.Model(&types.Bet{}).
		Where("round_id = ? AND bettor = ? AND claimed = ?", roundID, bettor, false).
		Updates(map[string]interface{}{
			"claimed":    true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UnmarkClaimed reopens a claim whose outgoing transfer failed.
func (d *Database) UnmarkClaimed(roundID, bettor string) error {
	return d.db.Model(&types.Bet{}).
		Where("round_id = ? AND bettor = ? AND claimed = ?", roundID, bettor, true).
		Updates(map[string]interface{}{
			"claimed":    false,
			"updated_at": time.Now(),
		}).Error
}
