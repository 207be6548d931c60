package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/models"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Component("database").Info("database connected and migrated")
	return db, nil
}

// Migrate brings the schema in sync with the models. Exported so tests
// can run it against their own (sqlite) connection.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserProfile{},
		&models.ProfilePhoto{},
		&models.UsernameClaim{},
		&models.SwipeDecision{},
		&models.Match{},
		&models.ChatThread{},
		&models.Message{},
		&models.CallSession{},
		&models.CallCandidate{},
	)
}
