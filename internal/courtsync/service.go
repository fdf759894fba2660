// Package courtsync orchestrates court queries, movement persistence, batch
// synchronization and schedule runs. Every failure ends up on an audit row
// (CourtQuery or CourtSyncLog); nothing panics or errors past the service
// for query and sync operations.
package courtsync

import (
	"context"
	"time"

	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/metrics"
	"github.com/JustJay7/court-sync/internal/repository"
	"github.com/JustJay7/court-sync/pkg/logger"
)

// Store is the persistence the service needs. *repository.Repository
// implements it.
type Store interface {
	CreateQuery(ctx context.Context, q *database.CourtQuery) error
	MarkQueryProcessing(ctx context.Context, q *database.CourtQuery) error
	CompleteQuery(ctx context.Context, q *database.CourtQuery, result []byte, count int) error
	FailQuery(ctx context.Context, q *database.CourtQuery, msg string) error

	MovementHashExists(ctx context.Context, hash string) (bool, error)
	CreateMovement(ctx context.Context, m *database.CourtMovement) (bool, error)
	FindOrCreateMovementCode(ctx context.Context, courtID uint, code, name string) (*database.CourtMovementCode, error)
	GetMovement(ctx context.Context, id uint) (*database.CourtMovement, error)
	ImportMovement(ctx context.Context, m *database.CourtMovement, processID uint) (*database.Proceeding, error)
	IgnoreMovement(ctx context.Context, id uint) error

	GetProcess(ctx context.Context, id uint) (*database.Process, error)
	FindProcessByDigits(ctx context.Context, digits string) (*database.Process, error)
	GetProceeding(ctx context.Context, id uint) (*database.Proceeding, error)
	ActiveProcessNumbers(ctx context.Context, courtID uint) ([]string, error)

	StartSyncLog(ctx context.Context, log *database.CourtSyncLog) error
	FinishSyncLog(ctx context.Context, log *database.CourtSyncLog, totals repository.SyncTotals) error
	FailSyncLog(ctx context.Context, log *database.CourtSyncLog, totals repository.SyncTotals, cause error) error

	DueSchedules(ctx context.Context, now time.Time) ([]database.CourtSyncSchedule, error)
	MarkScheduleRun(ctx context.Context, s *database.CourtSyncSchedule, ranAt, next time.Time) error

	Statistics(ctx context.Context, courtID *uint) (*repository.Statistics, error)
}

// CourtClient talks to court APIs. *courtapi.Client implements it.
type CourtClient interface {
	Execute(ctx context.Context, court *database.Court, processNumber string, queryType database.QueryType) (*courtapi.Response, error)
	TestConnection(ctx context.Context, court *database.Court) (*courtapi.ConnectionStatus, error)
}

// Actor identifies who triggered an operation. The zero value is the
// system itself, used for scheduled runs.
type Actor struct {
	UserID    *uint
	IPAddress string
	UserAgent string
}

type Service struct {
	store   Store
	client  CourtClient
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, client CourtClient, opts ...Option) *Service {
	s := &Service{
		store:  store,
		client: client,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TestConnection checks that court is reachable with its configured
// credentials. Failures are reported in the status, not as an error.
func (s *Service) TestConnection(ctx context.Context, court *database.Court) *courtapi.ConnectionStatus {
	status, err := s.client.TestConnection(ctx, court)
	if err != nil {
		s.logger.Warn("Court connection test failed", "court", court.Name, "error", err)
		return &courtapi.ConnectionStatus{Success: false, Message: err.Error()}
	}
	s.logger.Info("Court connection test succeeded", "court", court.Name, "version", status.Version)
	return status
}

// Statistics returns movement, query and sync counts by status, for one
// court when courtID is set.
func (s *Service) Statistics(ctx context.Context, courtID *uint) (*repository.Statistics, error) {
	return s.store.Statistics(ctx, courtID)
}

// audit detaches ctx from cancellation so bookkeeping writes still land
// after the caller gave up.
func audit(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

var (
	_ Store       = (*repository.Repository)(nil)
	_ CourtClient = (*courtapi.Client)(nil)
)
