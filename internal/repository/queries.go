package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateQuery persists a new query in pending status.
func (r *Repository) CreateQuery(ctx context.Context, q *database.CourtQuery) error {
	q.Status = database.QueryStatusPending
	return r.db.WithContext(ctx).Create(q).Error
}

// MarkQueryProcessing moves a pending query to processing.
func (r *Repository) MarkQueryProcessing(ctx context.Context, q *database.CourtQuery) error {
	now := r.now()
	return r.transitionQuery(ctx, q, database.QueryStatusProcessing, map[string]interface{}{
		"started_at": now,
	}, func() { q.StartedAt = &now })
}

// CompleteQuery stores the raw payload and item count and closes the query.
func (r *Repository) CompleteQuery(ctx context.Context, q *database.CourtQuery, result []byte, count int) error {
	now := r.now()
	return r.transitionQuery(ctx, q, database.QueryStatusCompleted, map[string]interface{}{
		"result":       datatypes.JSON(result),
		"result_count": count,
		"finished_at":  now,
	}, func() {
		q.Result = datatypes.JSON(result)
		q.ResultCount = count
		q.FinishedAt = &now
	})
}

// FailQuery records msg on the query and closes it with status error.
func (r *Repository) FailQuery(ctx context.Context, q *database.CourtQuery, msg string) error {
	now := r.now()
	return r.transitionQuery(ctx, q, database.QueryStatusError, map[string]interface{}{
		"error_message": msg,
		"finished_at":   now,
	}, func() {
		q.ErrorMessage = msg
		q.FinishedAt = &now
	})
}

// transitionQuery applies a guarded status change: the row is only updated
// while it still holds the status the caller observed.
func (r *Repository) transitionQuery(ctx context.Context, q *database.CourtQuery, to database.QueryStatus, updates map[string]interface{}, apply func()) error {
	if !database.CanTransition(q.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, to)
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).
		Model(&database.CourtQuery{}).
		Where("id = ? AND status = ?", q.ID, q.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: query %d is no longer %s", ErrInvalidTransition, q.ID, q.Status)
	}

	q.Status = to
	apply()
	return nil
}

// GetQuery loads a query by id.
func (r *Repository) GetQuery(ctx context.Context, id uint) (*database.CourtQuery, error) {
	var q database.CourtQuery
	if err := r.db.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// QueryFilter narrows ListQueries.
type QueryFilter struct {
	CourtID       *uint
	Status        database.QueryStatus
	ProcessNumber string
	From          *time.Time
	To            *time.Time
	Page
}

// ListQueries returns queries newest first with the total match count.
func (r *Repository) ListQueries(ctx context.Context, f QueryFilter) ([]database.CourtQuery, int64, error) {
	tx := r.db.WithContext(ctx).Model(&database.CourtQuery{})
	if f.CourtID != nil {
		tx = tx.Where("court_id = ?", *f.CourtID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.ProcessNumber != "" {
		tx = tx.Where("process_number = ?", f.ProcessNumber)
	}
	tx = dateRange(tx, "created_at", f.From, f.To)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var queries []database.CourtQuery
	if err := f.Page.apply(tx).Order("id DESC").Find(&queries).Error; err != nil {
		return nil, 0, err
	}
	return queries, total, nil
}

func dateRange(tx *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		tx = tx.Where(column+" >= ?", *from)
	}
	if to != nil {
		tx = tx.Where(column+" <= ?", *to)
	}
	return tx
}
