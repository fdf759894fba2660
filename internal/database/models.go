package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/JustJay7/court-sync/internal/cnj"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// APIType identifies the court API dialect a Court speaks.
type APIType string

const (
	APITypePJe     APIType = "pje"
	APITypeESAJ    APIType = "esaj"
	APITypeProjudi APIType = "projudi"
	APITypeEproc   APIType = "eproc"
	APITypeDataJud APIType = "datajud"
)

// QueryType is the kind of information requested from a court.
type QueryType string

const (
	QueryMovements QueryType = "movements"
	QueryParties   QueryType = "parties"
	QueryDocuments QueryType = "documents"
	QueryHearings  QueryType = "hearings"
)

// ParseQueryType validates a query type coming from user input.
func ParseQueryType(s string) (QueryType, error) {
	switch qt := QueryType(strings.ToLower(strings.TrimSpace(s))); qt {
	case QueryMovements, QueryParties, QueryDocuments, QueryHearings:
		return qt, nil
	default:
		return "", fmt.Errorf("unknown query type %q", s)
	}
}

// Court is the configuration of one external tribunal integration.
type Court struct {
	gorm.Model
	Name     string  `json:"name" gorm:"uniqueIndex;size:120;not null"`
	APIType  APIType `json:"api_type" gorm:"size:20;not null"`
	BaseURL  string  `json:"base_url"`
	Username string  `json:"username"`
	Password string  `json:"-"`
	APIKey   string  `json:"-"`
	Active   bool    `json:"active"`
}

// HasCredentials reports whether the court can authenticate at all.
func (c *Court) HasCredentials() bool {
	return (c.Username != "" && c.Password != "") || c.APIKey != ""
}

// IsConfigured reports whether the court has enough configuration to be queried.
func (c *Court) IsConfigured() bool {
	return c.BaseURL != "" && c.APIType != ""
}

// QueryStatus is the lifecycle state of a CourtQuery.
type QueryStatus string

const (
	QueryStatusPending    QueryStatus = "pending"
	QueryStatusProcessing QueryStatus = "processing"
	QueryStatusCompleted  QueryStatus = "completed"
	QueryStatusError      QueryStatus = "error"
)

var queryTransitions = map[QueryStatus][]QueryStatus{
	QueryStatusPending:    {QueryStatusProcessing, QueryStatusError},
	QueryStatusProcessing: {QueryStatusCompleted, QueryStatusError},
}

// CanTransition reports whether a query in status from may move to status to.
// Terminal states have no outgoing transitions.
func CanTransition(from, to QueryStatus) bool {
	for _, next := range queryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is completed or error.
func (s QueryStatus) IsTerminal() bool {
	return s == QueryStatusCompleted || s == QueryStatusError
}

// CourtQuery is the audit row for one outbound query to a court API.
type CourtQuery struct {
	gorm.Model
	CourtID       uint           `json:"court_id" gorm:"index;not null"`
	Court         *Court         `json:"court,omitempty"`
	UserID        *uint          `json:"user_id"`
	RequestID     string         `json:"request_id" gorm:"size:36;index"`
	ProcessNumber string         `json:"process_number" gorm:"index;size:32"`
	QueryType     QueryType      `json:"query_type" gorm:"size:20"`
	Status        QueryStatus    `json:"status" gorm:"index;size:20"`
	Result        datatypes.JSON `json:"result"`
	ResultCount   int            `json:"result_count"`
	ErrorMessage  string         `json:"error_message" gorm:"type:text"`
	IPAddress     string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	StartedAt     *time.Time     `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at"`
}

// MovementStatus is the import state of a CourtMovement.
type MovementStatus string

const (
	MovementPending  MovementStatus = "pending"
	MovementImported MovementStatus = "imported"
	MovementIgnored  MovementStatus = "ignored"
)

// CourtMovement is one normalized court event for a process.
type CourtMovement struct {
	gorm.Model
	CourtID        uint               `json:"court_id" gorm:"index;index:idx_court_movements_process_date,priority:1;not null"`
	MovementCodeID *uint              `json:"movement_code_id"`
	MovementCode   *CourtMovementCode `json:"movement_code,omitempty"`
	ProcessNumber  string             `json:"process_number" gorm:"index;index:idx_court_movements_process_date,priority:2;size:32"`
	MovementDate   *time.Time         `json:"movement_date" gorm:"index;index:idx_court_movements_process_date,priority:3"`
	Code           string             `json:"code" gorm:"size:50"`
	Name           string             `json:"name"`
	Description    string             `json:"description" gorm:"type:text"`
	Origin         string             `json:"origin"`
	Raw            datatypes.JSON     `json:"raw"`
	Hash           string             `json:"hash" gorm:"uniqueIndex;size:64;not null"`
	Status         MovementStatus     `json:"status" gorm:"index;size:20;default:pending"`
	ProceedingID   *uint              `json:"proceeding_id"`
	ImportedAt     *time.Time         `json:"imported_at"`
}

// CourtMovementCode maps a vendor movement code, scoped per court, to a display name.
type CourtMovementCode struct {
	gorm.Model
	CourtID uint   `json:"court_id" gorm:"uniqueIndex:idx_court_movement_code;not null"`
	Code    string `json:"code" gorm:"uniqueIndex:idx_court_movement_code;size:50;not null"`
	Name    string `json:"name"`
}

// SyncType tells whether a batch was started by a person or by a schedule.
type SyncType string

const (
	SyncManual    SyncType = "manual"
	SyncScheduled SyncType = "scheduled"
)

// SyncStatus is the state of a CourtSyncLog.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncPartial   SyncStatus = "partial"
	SyncFailed    SyncStatus = "failed"
)

// CourtSyncLog is one batch synchronization attempt.
type CourtSyncLog struct {
	gorm.Model
	Type              SyncType       `json:"type" gorm:"size:20"`
	CourtID           uint           `json:"court_id" gorm:"index;not null"`
	ScheduleID        *uint          `json:"schedule_id"`
	UserID            *uint          `json:"user_id"`
	Status            SyncStatus     `json:"status" gorm:"index;size:20"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at"`
	ProcessesCount    int            `json:"processes_count"`
	MovementsFound    int            `json:"movements_found"`
	MovementsNew      int            `json:"movements_new"`
	MovementsImported int            `json:"movements_imported"`
	ErrorsCount       int            `json:"errors_count"`
	ErrorMessage      string         `json:"error_message" gorm:"type:text"`
	Details           datatypes.JSON `json:"details"`
}

// Closed reports whether finish or finish-with-error already ran.
func (l *CourtSyncLog) Closed() bool {
	return l.FinishedAt != nil
}

// Duration of a finished run, zero while running.
func (l *CourtSyncLog) Duration() time.Duration {
	if l.FinishedAt == nil {
		return 0
	}
	return l.FinishedAt.Sub(l.StartedAt)
}

var frequencyAliases = map[string]string{
	"hourly":      "@hourly",
	"daily":       "@daily",
	"weekly":      "@weekly",
	"monthly":     "@monthly",
	"twice_daily": "0 8,17 * * *",
}

var cadenceParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseFrequency turns a schedule frequency into a cron schedule. It accepts
// the named aliases, robfig descriptors such as "@every 6h" and five-field
// cron expressions.
func ParseFrequency(frequency string) (cron.Schedule, error) {
	expr := strings.TrimSpace(frequency)
	if alias, ok := frequencyAliases[strings.ToLower(expr)]; ok {
		expr = alias
	}
	sched, err := cadenceParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid frequency %q: %w", frequency, err)
	}
	return sched, nil
}

// CourtSyncSchedule is the recurring configuration for automatic synchronization.
type CourtSyncSchedule struct {
	gorm.Model
	CourtID   uint       `json:"court_id" gorm:"index;not null"`
	Court     *Court     `json:"court,omitempty"`
	Name      string     `json:"name"`
	Active    bool       `json:"active" gorm:"index;index:idx_court_sync_schedules_due,priority:1"`
	Frequency string     `json:"frequency" gorm:"size:64;not null"`
	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `json:"next_run_at" gorm:"index;index:idx_court_sync_schedules_due,priority:2"`
}

// BeforeSave rejects frequencies the scheduler could not interpret.
func (s *CourtSyncSchedule) BeforeSave(tx *gorm.DB) error {
	_, err := ParseFrequency(s.Frequency)
	return err
}

// ReadyToRun reports whether the schedule is active and due at now.
func (s *CourtSyncSchedule) ReadyToRun(now time.Time) bool {
	if !s.Active {
		return false
	}
	return s.NextRunAt == nil || !s.NextRunAt.After(now)
}

// CalculateNextRun returns the next activation strictly after now. An
// unparsable frequency falls back to one day so the schedule keeps moving.
func (s *CourtSyncSchedule) CalculateNextRun(now time.Time) time.Time {
	sched, err := ParseFrequency(s.Frequency)
	if err != nil {
		return now.Add(24 * time.Hour)
	}
	return sched.Next(now)
}

// Process is a case file tracked by the office.
type Process struct {
	gorm.Model
	Number       string       `json:"number" gorm:"index;size:32;not null"`
	NumberDigits string       `json:"-" gorm:"index;size:32"`
	CourtID      *uint        `json:"court_id" gorm:"index"`
	Title        string       `json:"title"`
	Client       string       `json:"client"`
	Proceedings  []Proceeding `json:"proceedings,omitempty"`
}

// BeforeSave keeps the digits-only projection of the number in sync.
func (p *Process) BeforeSave(tx *gorm.DB) error {
	p.Number = cnj.Normalize(p.Number)
	p.NumberDigits = cnj.Digits(p.Number)
	return nil
}

// ProceedingStatus is the state of an event in the case file.
type ProceedingStatus string

const (
	ProceedingPending    ProceedingStatus = "pending"
	ProceedingInProgress ProceedingStatus = "in_progress"
	ProceedingCompleted  ProceedingStatus = "completed"
)

// Proceeding is an entry in a process's event log.
type Proceeding struct {
	gorm.Model
	ProcessID       uint             `json:"process_id" gorm:"index;index:idx_proceedings_process_status,priority:1;not null"`
	Process         *Process         `json:"process,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description" gorm:"type:text"`
	OccurredAt      *time.Time       `json:"occurred_at"`
	Status          ProceedingStatus `json:"status" gorm:"index;index:idx_proceedings_process_status,priority:2;size:20"`
	Source          string           `json:"source" gorm:"size:30"`
	CourtMovementID *uint            `json:"court_movement_id" gorm:"index"`
}

func (Court) TableName() string {
	return "courts"
}

func (CourtQuery) TableName() string {
	return "court_queries"
}

func (CourtMovement) TableName() string {
	return "court_movements"
}

func (CourtMovementCode) TableName() string {
	return "court_movement_codes"
}

func (CourtSyncLog) TableName() string {
	return "court_sync_logs"
}

func (CourtSyncSchedule) TableName() string {
	return "court_sync_schedules"
}

func (Process) TableName() string {
	return "processes"
}

func (Proceeding) TableName() string {
	return "proceedings"
}
