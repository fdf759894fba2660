package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovementHashExists reports whether a movement with hash is already stored.
func (r *Repository) MovementHashExists(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&database.CourtMovement{}).
		Unscoped().
		Where("hash = ?", hash).
		Count(&count).Error
	return count > 0, err
}

// CreateMovement inserts m unless a row with the same hash exists. It
// reports whether a row was actually written.
func (r *Repository) CreateMovement(ctx context.Context, m *database.CourtMovement) (bool, error) {
	if m.Status == "" {
		m.Status = database.MovementPending
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "hash"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindOrCreateMovementCode resolves the registry entry for (courtID, code).
// The first name seen for a code is kept.
func (r *Repository) FindOrCreateMovementCode(ctx context.Context, courtID uint, code, name string) (*database.CourtMovementCode, error) {
	db := r.db.WithContext(ctx)

	candidate := &database.CourtMovementCode{CourtID: courtID, Code: code, Name: name}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "court_id"}, {Name: "code"}},
		DoNothing: true,
	}).Create(candidate).Error
	if err != nil {
		return nil, fmt.Errorf("create movement code: %w", err)
	}

	var entry database.CourtMovementCode
	if err := db.Where("court_id = ? AND code = ?", courtID, code).First(&entry).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// GetMovement loads a movement by id.
func (r *Repository) GetMovement(ctx context.Context, id uint) (*database.CourtMovement, error) {
	var m database.CourtMovement
	if err := r.db.WithContext(ctx).Preload("MovementCode").First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	CourtID       *uint
	Status        database.MovementStatus
	ProcessNumber string
	From          *time.Time
	To            *time.Time
	Page
}

// ListMovements returns movements ordered by movement date, newest first.
func (r *Repository) ListMovements(ctx context.Context, f MovementFilter) ([]database.CourtMovement, int64, error) {
	tx := r.db.WithContext(ctx).Model(&database.CourtMovement{})
	if f.CourtID != nil {
		tx = tx.Where("court_id = ?", *f.CourtID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.ProcessNumber != "" {
		tx = tx.Where("process_number = ?", f.ProcessNumber)
	}
	tx = dateRange(tx, "movement_date", f.From, f.To)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movements []database.CourtMovement
	err := f.Page.apply(tx).
		Preload("MovementCode").
		Order("movement_date DESC").
		Order("id DESC").
		Find(&movements).Error
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// CountMovements counts stored movements for a court.
func (r *Repository) CountMovements(ctx context.Context, courtID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&database.CourtMovement{}).Where("court_id = ?", courtID).Count(&count).Error
	return count, err
}

// ImportMovement creates the proceeding for m inside process processID and
// marks m imported, atomically.
func (r *Repository) ImportMovement(ctx context.Context, m *database.CourtMovement, processID uint) (*database.Proceeding, error) {
	now := r.now()
	title := m.Name
	if title == "" {
		title = "Court movement " + m.Code
	}

	proceeding := &database.Proceeding{
		ProcessID:       processID,
		Title:           title,
		Description:     m.Description,
		OccurredAt:      m.MovementDate,
		Status:          database.ProceedingCompleted,
		Source:          "court_movement",
		CourtMovementID: &m.ID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(proceeding).Error; err != nil {
			return fmt.Errorf("create proceeding: %w", err)
		}
		res := tx.Model(&database.CourtMovement{}).
			Where("id = ? AND status <> ?", m.ID, database.MovementImported).
			Updates(map[string]interface{}{
				"status":        database.MovementImported,
				"proceeding_id": proceeding.ID,
				"imported_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark movement imported: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("movement %d was imported concurrently", m.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.Status = database.MovementImported
	m.ProceedingID = &proceeding.ID
	m.ImportedAt = &now
	return proceeding, nil
}

// IgnoreMovement marks a pending movement as ignored.
func (r *Repository) IgnoreMovement(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&database.CourtMovement{}).
		Where("id = ? AND status = ?", id, database.MovementPending).
		Update("status", database.MovementIgnored)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
