package repository

import (
	"context"

	"github.com/JustJay7/court-sync/internal/database"
)

// Statistics are read-only counts grouped by status.
type Statistics struct {
	Movements map[string]int64 `json:"movements"`
	Queries   map[string]int64 `json:"queries"`
	Syncs     map[string]int64 `json:"syncs"`
}

type statusCount struct {
	Status string
	Count  int64
}

// Statistics counts movements, queries and sync runs by status, optionally
// for one court only.
func (r *Repository) Statistics(ctx context.Context, courtID *uint) (*Statistics, error) {
	stats := &Statistics{}

	var err error
	if stats.Movements, err = r.countByStatus(ctx, &database.CourtMovement{}, courtID); err != nil {
		return nil, err
	}
	if stats.Queries, err = r.countByStatus(ctx, &database.CourtQuery{}, courtID); err != nil {
		return nil, err
	}
	if stats.Syncs, err = r.countByStatus(ctx, &database.CourtSyncLog{}, courtID); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *Repository) countByStatus(ctx context.Context, model interface{}, courtID *uint) (map[string]int64, error) {
	tx := r.db.WithContext(ctx).Model(model).Select("status, COUNT(*) AS count").Group("status")
	if courtID != nil {
		tx = tx.Where("court_id = ?", *courtID)
	}

	var rows []statusCount
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{"total": 0}
	for _, row := range rows {
		counts[row.Status] = row.Count
		counts["total"] += row.Count
	}
	return counts, nil
}
