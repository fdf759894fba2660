// Package scheduler triggers the due court sync schedules on a fixed tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/JustJay7/court-sync/internal/courtsync"
	"github.com/JustJay7/court-sync/pkg/logger"
	"github.com/robfig/cron/v3"
)

const DefaultSpec = "@every 1m"

// Runner executes the schedules that are due.
type Runner interface {
	RunPendingSchedules(ctx context.Context) ([]courtsync.ScheduleRunResult, error)
}

// Scheduler polls the runner on a cron spec. A tick that fires while the
// previous one is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	runner Runner
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New prepares a scheduler ticking on spec, which accepts five-field cron
// expressions and descriptors such as "@every 30s".
func New(runner Runner, spec string, log *logger.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	cl := cronLogger{log}
	s.cron = cron.New(cron.WithLogger(cl))
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.tick))

	if _, err := s.cron.AddJob(spec, s.job); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting schedule runner")
	s.cron.Start()
}

// Stop halts new ticks, cancels the running one and waits for it until ctx
// expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping schedule runner")
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	started := time.Now()
	results, err := s.runner.RunPendingSchedules(s.ctx)
	if err != nil {
		s.logger.Error("Schedule run failed", "error", err)
		return
	}
	if len(results) == 0 {
		return
	}

	skipped := 0
	for _, r := range results {
		if r.Skipped {
			skipped++
		}
	}
	s.logger.Info("Schedules processed",
		"count", len(results),
		"skipped", skipped,
		"duration", time.Since(started).String(),
	)
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
