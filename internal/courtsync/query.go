package courtsync

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/JustJay7/court-sync/internal/cnj"
	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/google/uuid"
)

// QueryResult is the outcome of one court query. Query is nil only when
// the audit row itself could not be created. Kind classifies a failure and
// is zero on success or when the cause is not a court API error.
type QueryResult struct {
	Success   bool                     `json:"success"`
	Message   string                   `json:"message,omitempty"`
	Kind      courtapi.Kind            `json:"-"`
	Query     *database.CourtQuery     `json:"query"`
	Movements []courtapi.Movement      `json:"movements,omitempty"`
	Items     []map[string]interface{} `json:"items,omitempty"`
}

// QueryProcessMovements fetches and normalizes the movements of one process.
func (s *Service) QueryProcessMovements(ctx context.Context, court *database.Court, processNumber string, actor Actor) *QueryResult {
	return s.Query(ctx, court, processNumber, database.QueryMovements, actor)
}

// Query runs queryType for processNumber against court. The CourtQuery row
// always ends completed or error.
func (s *Service) Query(ctx context.Context, court *database.Court, processNumber string, queryType database.QueryType, actor Actor) (result *QueryResult) {
	q := &database.CourtQuery{
		CourtID:       court.ID,
		UserID:        actor.UserID,
		RequestID:     uuid.NewString(),
		ProcessNumber: cnj.Normalize(processNumber),
		QueryType:     queryType,
		IPAddress:     actor.IPAddress,
		UserAgent:     actor.UserAgent,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during court query",
				"court", court.Name,
				"process_number", q.ProcessNumber,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = s.failQuery(ctx, court, q, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := s.store.CreateQuery(audit(ctx), q); err != nil {
		s.logger.Error("Failed to create query log", "court", court.Name, "error", err)
		return &QueryResult{Success: false, Message: fmt.Sprintf("create query log: %v", err)}
	}

	if err := s.store.MarkQueryProcessing(audit(ctx), q); err != nil {
		return s.failQuery(ctx, court, q, err)
	}

	resp, err := s.client.Execute(ctx, court, q.ProcessNumber, queryType)
	if err != nil {
		return s.failQuery(ctx, court, q, err)
	}

	result = &QueryResult{Success: true, Query: q}
	count := 0
	if queryType == database.QueryMovements {
		result.Movements = courtapi.ParseMovements(resp.Payload, q.ProcessNumber)
		count = len(result.Movements)
	} else {
		result.Items = courtapi.ExtractList(resp.Payload, queryType)
		count = len(result.Items)
	}

	if err := s.store.CompleteQuery(audit(ctx), q, resp.Raw, count); err != nil {
		return s.failQuery(ctx, court, q, fmt.Errorf("complete query log: %w", err))
	}

	s.metrics.QueryFinished(court.Name, queryType, q.Status)
	s.logger.Debug("Court query completed",
		"court", court.Name,
		"process_number", q.ProcessNumber,
		"query_type", queryType,
		"count", count,
	)
	return result
}

func (s *Service) failQuery(ctx context.Context, court *database.Court, q *database.CourtQuery, cause error) *QueryResult {
	s.logger.Warn("Court query failed",
		"court", court.Name,
		"process_number", q.ProcessNumber,
		"query_type", q.QueryType,
		"kind", courtapi.KindOf(cause).String(),
		"error", cause,
	)

	if q.ID != 0 && !q.Status.IsTerminal() {
		if err := s.store.FailQuery(audit(ctx), q, cause.Error()); err != nil {
			s.logger.Error("Failed to record query error", "query_id", q.ID, "error", err)
		}
	}
	s.metrics.QueryFinished(court.Name, q.QueryType, database.QueryStatusError)

	return &QueryResult{Success: false, Message: cause.Error(), Kind: courtapi.KindOf(cause), Query: q}
}
