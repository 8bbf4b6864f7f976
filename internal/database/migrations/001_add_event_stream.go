package migrations

import (
	"github.com/predyn/wager-api/internal/types"
	"gorm.io/gorm"
)

func AddEventStream(db *gorm.DB) error {
	return db.AutoMigrate(&types.Event{})
}
