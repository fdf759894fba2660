package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"gorm.io/datatypes"
)

// ProcessError records why one process number failed inside a batch.
type ProcessError struct {
	ProcessNumber string `json:"process_number"`
	Error         string `json:"error"`
}

// SyncTotals are the counters accumulated during one batch run.
type SyncTotals struct {
	Processes int
	Found     int
	New       int
	Imported  int
	Errors    int
	Failures  []ProcessError
}

// StartSyncLog opens a sync log in running status.
func (r *Repository) StartSyncLog(ctx context.Context, log *database.CourtSyncLog) error {
	log.Status = database.SyncRunning
	log.StartedAt = r.now()
	log.FinishedAt = nil
	return r.db.WithContext(ctx).Create(log).Error
}

// FinishSyncLog closes log with the accumulated totals. A run with per-process
// errors is recorded as partial.
func (r *Repository) FinishSyncLog(ctx context.Context, log *database.CourtSyncLog, totals SyncTotals) error {
	status := database.SyncCompleted
	if totals.Errors > 0 {
		status = database.SyncPartial
	}
	return r.closeSyncLog(ctx, log, status, totals, "")
}

// FailSyncLog closes log as failed with cause.
func (r *Repository) FailSyncLog(ctx context.Context, log *database.CourtSyncLog, totals SyncTotals, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.closeSyncLog(ctx, log, database.SyncFailed, totals, msg)
}

func (r *Repository) closeSyncLog(ctx context.Context, log *database.CourtSyncLog, status database.SyncStatus, totals SyncTotals, msg string) error {
	if log.Closed() {
		return ErrSyncLogClosed
	}

	var details datatypes.JSON
	if len(totals.Failures) > 0 {
		raw, err := json.Marshal(totals.Failures)
		if err != nil {
			return fmt.Errorf("encode sync failures: %w", err)
		}
		details = raw
	}

	now := r.now()
	res := r.db.WithContext(ctx).
		Model(&database.CourtSyncLog{}).
		Where("id = ? AND finished_at IS NULL", log.ID).
		Updates(map[string]interface{}{
			"status":             status,
			"finished_at":        now,
			"processes_count":    totals.Processes,
			"movements_found":    totals.Found,
			"movements_new":      totals.New,
			"movements_imported": totals.Imported,
			"errors_count":       totals.Errors,
			"error_message":      msg,
			"details":            details,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSyncLogClosed
	}

	log.Status = status
	log.FinishedAt = &now
	log.ProcessesCount = totals.Processes
	log.MovementsFound = totals.Found
	log.MovementsNew = totals.New
	log.MovementsImported = totals.Imported
	log.ErrorsCount = totals.Errors
	log.ErrorMessage = msg
	log.Details = details
	return nil
}

// GetSyncLog loads a sync log by id.
func (r *Repository) GetSyncLog(ctx context.Context, id uint) (*database.CourtSyncLog, error) {
	var log database.CourtSyncLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &log, nil
}

// SyncLogFilter narrows ListSyncLogs.
type SyncLogFilter struct {
	CourtID *uint
	Status  database.SyncStatus
	Type    database.SyncType
	From    *time.Time
	To      *time.Time
	Page
}

// ListSyncLogs returns sync logs newest first with the total match count.
func (r *Repository) ListSyncLogs(ctx context.Context, f SyncLogFilter) ([]database.CourtSyncLog, int64, error) {
	tx := r.db.WithContext(ctx).Model(&database.CourtSyncLog{})
	if f.CourtID != nil {
		tx = tx.Where("court_id = ?", *f.CourtID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		tx = tx.Where("type = ?", f.Type)
	}
	tx = dateRange(tx, "started_at", f.From, f.To)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []database.CourtSyncLog
	if err := f.Page.apply(tx).Order("id DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// DueSchedules returns active schedules whose next run is at or before now,
// with their court loaded. Schedules of inactive courts are left out until
// the court is reactivated. A court that was deleted leaves Court nil.
func (r *Repository) DueSchedules(ctx context.Context, now time.Time) ([]database.CourtSyncSchedule, error) {
	inactiveCourts := r.db.WithContext(ctx).
		Model(&database.Court{}).
		Select("id").
		Where("active = ?", false)

	var schedules []database.CourtSyncSchedule
	err := r.db.WithContext(ctx).
		Preload("Court").
		Where("active = ?", true).
		Where("(next_run_at IS NULL OR next_run_at <= ?)", now).
		Where("court_id NOT IN (?)", inactiveCourts).
		Order("next_run_at").
		Order("id").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

// GetSchedule loads a schedule by id.
func (r *Repository) GetSchedule(ctx context.Context, id uint) (*database.CourtSyncSchedule, error) {
	var s database.CourtSyncSchedule
	if err := r.db.WithContext(ctx).Preload("Court").First(&s, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// MarkScheduleRun records a run of s at ranAt and its next activation.
func (r *Repository) MarkScheduleRun(ctx context.Context, s *database.CourtSyncSchedule, ranAt, next time.Time) error {
	// UpdateColumns bypasses the frequency hook.
	err := r.db.WithContext(ctx).
		Model(&database.CourtSyncSchedule{}).
		Where("id = ?", s.ID).
		UpdateColumns(map[string]interface{}{
			"last_run_at": ranAt,
			"next_run_at": next,
		}).Error
	if err != nil {
		return err
	}
	s.LastRunAt = &ranAt
	s.NextRunAt = &next
	return nil
}
