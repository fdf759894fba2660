// Package repository is the gorm-backed data access layer for the court
// synchronization pipeline.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid query status transition")
	ErrSyncLogClosed     = errors.New("sync log already closed")
)

// Repository wraps a gorm handle with the operations the sync pipeline needs.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a repository over db.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of the repository that stamps rows using now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	cp := *r
	cp.now = now
	return &cp
}

// DB exposes the underlying handle for health checks.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Page describes offset pagination.
type Page struct {
	Page  int
	Limit int
}

func (p Page) apply(tx *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return tx.Offset((page - 1) * limit).Limit(limit)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetCourt loads a court by id.
func (r *Repository) GetCourt(ctx context.Context, id uint) (*database.Court, error) {
	var court database.Court
	if err := r.db.WithContext(ctx).First(&court, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &court, nil
}

// ListCourts returns all courts, optionally only active ones.
func (r *Repository) ListCourts(ctx context.Context, activeOnly bool) ([]database.Court, error) {
	var courts []database.Court
	tx := r.db.WithContext(ctx).Order("name")
	if activeOnly {
		tx = tx.Where("active = ?", true)
	}
	if err := tx.Find(&courts).Error; err != nil {
		return nil, err
	}
	return courts, nil
}

// GetProcess loads a process by id.
func (r *Repository) GetProcess(ctx context.Context, id uint) (*database.Process, error) {
	var process database.Process
	if err := r.db.WithContext(ctx).First(&process, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &process, nil
}

// FindProcessByDigits matches a process whose digits-only number contains
// digits. The oldest match wins.
func (r *Repository) FindProcessByDigits(ctx context.Context, digits string) (*database.Process, error) {
	if digits == "" {
		return nil, ErrNotFound
	}
	var process database.Process
	err := r.db.WithContext(ctx).
		Where("number_digits LIKE ?", "%"+digits+"%").
		Order("id").
		First(&process).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &process, nil
}

// ActiveProcessNumbers lists, in first-seen order and without duplicates, the
// numbers of processes in the court that still have pending or in-progress
// proceedings.
func (r *Repository) ActiveProcessNumbers(ctx context.Context, courtID uint) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&database.Proceeding{}).
		Joins("JOIN processes ON processes.id = proceedings.process_id AND processes.deleted_at IS NULL").
		Where("processes.court_id = ?", courtID).
		Where("proceedings.status IN ?", []database.ProceedingStatus{
			database.ProceedingPending,
			database.ProceedingInProgress,
		}).
		Order("proceedings.id").
		Pluck("processes.number", &numbers).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(numbers))
	unique := numbers[:0]
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}
	return unique, nil
}

// GetProceeding loads a proceeding by id.
func (r *Repository) GetProceeding(ctx context.Context, id uint) (*database.Proceeding, error) {
	var proceeding database.Proceeding
	if err := r.db.WithContext(ctx).First(&proceeding, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &proceeding, nil
}
