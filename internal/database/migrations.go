package database

import (
	"fmt"

	"gorm.io/gorm"
)

// compositeIndexes are the multi-column indexes behind the hot queries. They
// are declared in the model tags so every dialect gets its own DDL.
var compositeIndexes = []struct {
	model interface{}
	name  string
}{
	// movement listing per process, newest first
	{&CourtMovement{}, "idx_court_movements_process_date"},
	// due-schedule lookup
	{&CourtSyncSchedule{}, "idx_court_sync_schedules_due"},
	// active-process derivation
	{&Proceeding{}, "idx_proceedings_process_status"},
}

// RunMigrations executes the migrations AutoMigrate cannot be relied on for
func RunMigrations(db *gorm.DB) error {
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes makes sure the composite indexes exist, for databases
// migrated before the indexes were declared
func createIndexes(db *gorm.DB) error {
	m := db.Migrator()
	for _, idx := range compositeIndexes {
		if m.HasIndex(idx.model, idx.name) {
			continue
		}
		if err := m.CreateIndex(idx.model, idx.name); err != nil {
			return fmt.Errorf("%s: %w", idx.name, err)
		}
	}
	return nil
}
