package betting

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

// GetBets returns the round's bets ordered by first stake.
func (d *Database) GetBets(roundID string, limit, offset int) ([]types.Bet, error) {
	var bets []types.Bet
	if err := d.db.Where("round_id = ?", roundID).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error; err != nil {
		return nil, err
	}
	return bets, nil
}

// ApplyStake commits the bet record and the round's side aggregate in one
// transaction.
func (d *Database) ApplyStake(bet *types.Bet, roundID, side string, stake uint64) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if bet.ID == 0 {
		if err := tx.Create(bet).Error; err != nil {
			tx.Rollback()
			return err
		}
	} else {
		if err := tx.Model(&types.Bet{}).
			Where("id = ?", bet.ID).
			Updates(map[string]interface{}{
				"amount":     bet.Amount,
				"side":       bet.Side,
				"updated_at": time.Now(),
			}).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	column := "up_amount"
	if side == types.SideDown {
		column = "down_amount"
	}
	if err := tx.Model(&types.Round{}).
		Where("round_id = ?", roundID).
		Update(column, gorm.Expr(column+" + ?", stake)).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
