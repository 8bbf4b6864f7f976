package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/predyn/wager-api/internal/database/migrations"
	"github.com/predyn/wager-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "wager.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddEventStream(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Round{},
		&types.Bet{},
		&types.AssetEntry{},
		&types.LedgerState{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// NewTestDatabase opens an isolated in-memory database for tests.
func NewTestDatabase(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := migrations.AddEventStream(db); err != nil {
		return nil, err
	}
	err = db.AutoMigrate(
		&types.Round{},
		&types.Bet{},
		&types.AssetEntry{},
		&types.LedgerState{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}
