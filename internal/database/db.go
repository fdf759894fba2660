package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the database for the given driver and migrates it.
// For sqlite, path is a file path; for postgres and mysql it is the DSN.
func Initialize(driver, path string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		if path != ":memory:" {
			dir := filepath.Dir(path)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(path)
	case "postgres":
		dialector = postgres.Open(path)
	case "mysql":
		dialector = mysql.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Court{},
		&CourtQuery{},
		&CourtMovementCode{},
		&CourtMovement{},
		&CourtSyncSchedule{},
		&CourtSyncLog{},
		&Process{},
		&Proceeding{},
	); err != nil {
		return err
	}
	return RunMigrations(db)
}
