package courtsync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/repository"
)

// SyncMultipleProcesses queries the movements of every number in order and
// stores the new ones, all under one CourtSyncLog. A failing process is
// counted and skipped. The log is closed exactly once: finished when the
// loop ends, failed when the run itself breaks (panic or cancellation).
func (s *Service) SyncMultipleProcesses(ctx context.Context, court *database.Court, numbers []string, schedule *database.CourtSyncSchedule, actor Actor) *database.CourtSyncLog {
	log := s.newSyncLog(court, schedule, actor)
	if err := s.store.StartSyncLog(audit(ctx), log); err != nil {
		s.logger.Error("Failed to open sync log", "court", court.Name, "error", err)
		log.Status = database.SyncFailed
		log.ErrorMessage = fmt.Sprintf("open sync log: %v", err)
		return log
	}

	s.logger.Info("Sync started",
		"sync_log_id", log.ID,
		"court", court.Name,
		"type", log.Type,
		"processes", len(numbers),
	)

	totals, err := s.syncLoop(ctx, court, numbers, actor)
	if err != nil {
		s.closeFailed(ctx, log, totals, err)
		return log
	}

	if err := s.store.FinishSyncLog(audit(ctx), log, totals); err != nil {
		s.logger.Error("Failed to close sync log", "sync_log_id", log.ID, "error", err)
	}
	s.metrics.SyncFinished(log.Type, log.Status)
	s.logger.Info("Sync finished",
		"sync_log_id", log.ID,
		"court", court.Name,
		"status", log.Status,
		"found", totals.Found,
		"new", totals.New,
		"errors", totals.Errors,
	)
	return log
}

func (s *Service) syncLoop(ctx context.Context, court *database.Court, numbers []string, actor Actor) (totals repository.SyncTotals, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during sync", "court", court.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return totals, fmt.Errorf("sync interrupted: %w", err)
		}
		totals.Processes++

		res := s.QueryProcessMovements(ctx, court, number, actor)
		if !res.Success {
			totals.Errors++
			totals.Failures = append(totals.Failures, repository.ProcessError{ProcessNumber: number, Error: res.Message})
			continue
		}
		totals.Found += len(res.Movements)

		saved, err := s.SaveMovements(ctx, res.Movements, court)
		totals.New += saved.New
		totals.Imported += saved.Imported
		if err != nil {
			s.logger.Warn("Failed to save movements", "court", court.Name, "process_number", number, "error", err)
			totals.Errors++
			totals.Failures = append(totals.Failures, repository.ProcessError{ProcessNumber: number, Error: err.Error()})
		}
	}

	return totals, nil
}

// SyncAllActiveProcesses syncs every process of court that still has
// pending or in-progress proceedings.
func (s *Service) SyncAllActiveProcesses(ctx context.Context, court *database.Court, schedule *database.CourtSyncSchedule, actor Actor) *database.CourtSyncLog {
	numbers, err := s.store.ActiveProcessNumbers(ctx, court.ID)
	if err != nil {
		log := s.newSyncLog(court, schedule, actor)
		if startErr := s.store.StartSyncLog(audit(ctx), log); startErr != nil {
			s.logger.Error("Failed to open sync log", "court", court.Name, "error", startErr)
			log.Status = database.SyncFailed
			log.ErrorMessage = err.Error()
			return log
		}
		s.closeFailed(ctx, log, repository.SyncTotals{}, fmt.Errorf("list active processes: %w", err))
		return log
	}
	return s.SyncMultipleProcesses(ctx, court, numbers, schedule, actor)
}

func (s *Service) newSyncLog(court *database.Court, schedule *database.CourtSyncSchedule, actor Actor) *database.CourtSyncLog {
	log := &database.CourtSyncLog{
		Type:    database.SyncManual,
		CourtID: court.ID,
		UserID:  actor.UserID,
	}
	if schedule != nil {
		log.Type = database.SyncScheduled
		log.ScheduleID = &schedule.ID
	}
	return log
}

func (s *Service) closeFailed(ctx context.Context, log *database.CourtSyncLog, totals repository.SyncTotals, cause error) {
	s.logger.Error("Sync failed", "sync_log_id", log.ID, "court_id", log.CourtID, "error", cause)
	if err := s.store.FailSyncLog(audit(ctx), log, totals, cause); err != nil {
		s.logger.Error("Failed to close sync log", "sync_log_id", log.ID, "error", err)
	}
	s.metrics.SyncFinished(log.Type, database.SyncFailed)
}

// ScheduleRunResult reports what RunPendingSchedules did with one schedule.
type ScheduleRunResult struct {
	ScheduleID uint                   `json:"schedule_id"`
	CourtID    uint                   `json:"court_id"`
	Skipped    bool                   `json:"skipped"`
	Message    string                 `json:"message,omitempty"`
	SyncLog    *database.CourtSyncLog `json:"sync_log,omitempty"`
	NextRunAt  *time.Time             `json:"next_run_at,omitempty"`
}

// RunPendingSchedules runs every active schedule that is due. Schedules of
// a missing or inactive court are skipped and left untouched. Every other
// due schedule advances (last_run_at now, next_run_at from its frequency)
// whether or not its run failed.
func (s *Service) RunPendingSchedules(ctx context.Context) ([]ScheduleRunResult, error) {
	schedules, err := s.store.DueSchedules(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("load due schedules: %w", err)
	}

	results := make([]ScheduleRunResult, 0, len(schedules))
	for i := range schedules {
		results = append(results, s.runSchedule(ctx, &schedules[i]))
	}
	return results, nil
}

func (s *Service) runSchedule(ctx context.Context, schedule *database.CourtSyncSchedule) (result ScheduleRunResult) {
	result = ScheduleRunResult{ScheduleID: schedule.ID, CourtID: schedule.CourtID}

	if schedule.Court == nil {
		result.Skipped = true
		result.Message = "court not found"
		s.logger.Warn("Schedule skipped", "schedule_id", schedule.ID, "reason", result.Message)
		return result
	}
	if !schedule.Court.Active {
		result.Skipped = true
		result.Message = "court is inactive"
		s.logger.Debug("Schedule skipped", "schedule_id", schedule.ID, "reason", result.Message)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during schedule run", "schedule_id", schedule.ID, "panic", r, "stack", string(debug.Stack()))
			result.Message = fmt.Sprintf("internal error: %v", r)
		}

		ranAt := s.now()
		next := schedule.CalculateNextRun(ranAt)
		if err := s.store.MarkScheduleRun(audit(ctx), schedule, ranAt, next); err != nil {
			s.logger.Error("Failed to advance schedule", "schedule_id", schedule.ID, "error", err)
			if result.Message == "" {
				result.Message = fmt.Sprintf("advance schedule: %v", err)
			}
			return
		}
		result.NextRunAt = &next
	}()

	result.SyncLog = s.SyncAllActiveProcesses(ctx, schedule.Court, schedule, Actor{})
	if result.SyncLog.Status == database.SyncFailed {
		result.Message = result.SyncLog.ErrorMessage
	}
	return result
}
