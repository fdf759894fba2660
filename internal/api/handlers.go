package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/court-sync/internal/cache"
	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/courtsync"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/repository"
	"github.com/JustJay7/court-sync/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	repo    *repository.Repository
	sync    *courtsync.Service
	tokens  cache.TokenCache
	logger  *logger.Logger
	started time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(repo *repository.Repository, sync *courtsync.Service, tokens cache.TokenCache, logger *logger.Logger) *Handlers {
	return &Handlers{
		repo:    repo,
		sync:    sync,
		tokens:  tokens,
		logger:  logger,
		started: time.Now(),
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbHealthy := false
	if sqlDB, err := h.repo.DB().DB(); err == nil {
		dbHealthy = sqlDB.PingContext(c.Request.Context()) == nil
	}

	status := http.StatusOK
	state := "healthy"
	if !dbHealthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   state,
		"database": dbHealthy,
		"cache":    h.tokens.Stats(),
		"uptime":   time.Since(h.started).String(),
		"time":     time.Now().Unix(),
	})
}

// CacheStats returns token cache statistics
func (h *Handlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.tokens.Stats(),
	})
}

// QueryCourt runs a single query against a court
func (h *Handlers) QueryCourt(c *gin.Context) {
	court, ok := h.loadCourt(c)
	if !ok {
		return
	}

	var req struct {
		ProcessNumber string `json:"process_number" binding:"required"`
		QueryType     string `json:"query_type"`
		Save          bool   `json:"save"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.QueryType == "" {
		req.QueryType = string(database.QueryMovements)
	}
	queryType, err := database.ParseQueryType(req.QueryType)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	res := h.sync.Query(ctx, court, req.ProcessNumber, queryType, actorFrom(c))
	if !res.Success {
		status := http.StatusBadGateway
		if res.Kind == courtapi.KindConfiguration {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   res.Message,
			"query":   res.Query,
		})
		return
	}

	body := gin.H{
		"success": true,
		"query":   res.Query,
	}
	if queryType == database.QueryMovements {
		body["data"] = res.Movements
		if req.Save {
			saved, err := h.sync.SaveMovements(ctx, res.Movements, court)
			if err != nil {
				h.logger.Error("Failed to save movements", "court", court.Name, "error", err)
				serverError(c, "failed to save movements")
				return
			}
			body["saved"] = saved
		}
	} else {
		body["data"] = res.Items
	}

	c.JSON(http.StatusOK, body)
}

// SyncCourt synchronizes the given process numbers, or every active
// process of the court when none are given
func (h *Handlers) SyncCourt(c *gin.Context) {
	court, ok := h.loadCourt(c)
	if !ok {
		return
	}

	var req struct {
		ProcessNumbers []string `json:"process_numbers"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	var log *database.CourtSyncLog
	if len(req.ProcessNumbers) == 0 {
		log = h.sync.SyncAllActiveProcesses(c.Request.Context(), court, nil, actorFrom(c))
	} else {
		log = h.sync.SyncMultipleProcesses(c.Request.Context(), court, req.ProcessNumbers, nil, actorFrom(c))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": log.Status != database.SyncFailed,
		"data":    log,
	})
}

// TestCourt checks connectivity and credentials of a court
func (h *Handlers) TestCourt(c *gin.Context) {
	court, ok := h.loadCourt(c)
	if !ok {
		return
	}

	status := h.sync.TestConnection(c.Request.Context(), court)
	c.JSON(http.StatusOK, gin.H{
		"success": status.Success,
		"data":    status,
	})
}

// RunSchedules runs every due schedule now
func (h *Handlers) RunSchedules(c *gin.Context) {
	results, err := h.sync.RunPendingSchedules(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to run schedules", "error", err)
		serverError(c, "failed to run schedules")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
	})
}

// ListMovements returns stored movements
func (h *Handlers) ListMovements(c *gin.Context) {
	filter := repository.MovementFilter{
		Status:        database.MovementStatus(c.Query("status")),
		ProcessNumber: c.Query("process_number"),
	}
	var err error
	if filter.CourtID, err = optionalID(c.Query("court_id")); err != nil {
		badRequest(c, "invalid court_id")
		return
	}
	if filter.From, filter.To, err = dateRange(c); err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.Page = pageFrom(c)

	movements, total, err := h.repo.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list movements", "error", err)
		serverError(c, "failed to list movements")
		return
	}

	c.JSON(http.StatusOK, paginated(movements, filter.Page, total))
}

// ImportMovement imports one movement into a process's proceedings
func (h *Handlers) ImportMovement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		ProcessID *uint `json:"process_id"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	movement, err := h.repo.GetMovement(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c, "movement not found")
		return
	}
	if err != nil {
		serverError(c, "failed to load movement")
		return
	}

	proceeding, err := h.sync.ImportMovementToProceeding(ctx, movement, req.ProcessID)
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to import movement", "movement_id", id, "error", err)
		serverError(c, "failed to import movement")
		return
	}
	if proceeding == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   courtsync.ErrNoMatchingProcess.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    proceeding,
	})
}

// ImportMovements imports a batch of movements by id
func (h *Handlers) ImportMovements(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required,min=1,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result := h.sync.ImportMultipleMovements(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Failed == 0,
		"data":    result,
	})
}

// IgnoreMovement marks a pending movement as ignored
func (h *Handlers) IgnoreMovement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	err := h.sync.IgnoreMovement(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c, "no pending movement with that id")
		return
	}
	if err != nil {
		serverError(c, "failed to ignore movement")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Movement ignored",
	})
}

// ListSyncLogs returns batch synchronization history
func (h *Handlers) ListSyncLogs(c *gin.Context) {
	filter := repository.SyncLogFilter{
		Status: database.SyncStatus(c.Query("status")),
		Type:   database.SyncType(c.Query("type")),
	}
	var err error
	if filter.CourtID, err = optionalID(c.Query("court_id")); err != nil {
		badRequest(c, "invalid court_id")
		return
	}
	if filter.From, filter.To, err = dateRange(c); err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.Page = pageFrom(c)

	logs, total, err := h.repo.ListSyncLogs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list sync logs", "error", err)
		serverError(c, "failed to list sync logs")
		return
	}

	c.JSON(http.StatusOK, paginated(logs, filter.Page, total))
}

// ListQueries returns the court query audit trail
func (h *Handlers) ListQueries(c *gin.Context) {
	filter := repository.QueryFilter{
		Status:        database.QueryStatus(c.Query("status")),
		ProcessNumber: c.Query("process_number"),
	}
	var err error
	if filter.CourtID, err = optionalID(c.Query("court_id")); err != nil {
		badRequest(c, "invalid court_id")
		return
	}
	if filter.From, filter.To, err = dateRange(c); err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.Page = pageFrom(c)

	queries, total, err := h.repo.ListQueries(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list queries", "error", err)
		serverError(c, "failed to list queries")
		return
	}

	c.JSON(http.StatusOK, paginated(queries, filter.Page, total))
}

// Statistics returns counts grouped by status
func (h *Handlers) Statistics(c *gin.Context) {
	courtID, err := optionalID(c.Query("court_id"))
	if err != nil {
		badRequest(c, "invalid court_id")
		return
	}

	stats, err := h.sync.Statistics(c.Request.Context(), courtID)
	if err != nil {
		h.logger.Error("Failed to compute statistics", "error", err)
		serverError(c, "failed to compute statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// Helper functions

func (h *Handlers) loadCourt(c *gin.Context) (*database.Court, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}

	court, err := h.repo.GetCourt(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c, "court not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load court", "court_id", id, "error", err)
		serverError(c, "failed to load court")
		return nil, false
	}
	return court, true
}

// actorFrom builds the audit identity of the request. The user id is taken
// from X-User-ID as set by the authenticating proxy.
func actorFrom(c *gin.Context) courtsync.Actor {
	actor := courtsync.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			uid := uint(id)
			actor.UserID = &uid
		}
	}
	return actor
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func optionalID(raw string) (*uint, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, err
	}
	v := uint(id)
	return &v, nil
}

func pageFrom(c *gin.Context) repository.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return repository.Page{Page: page, Limit: limit}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func dateRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = parseDateParam("from", c.Query("from")); err != nil {
		return nil, nil, err
	}
	if to, err = parseDateParam("to", c.Query("to")); err != nil {
		return nil, nil, err
	}
	// a bare "to" date includes the whole day
	if to != nil && !strings.Contains(c.Query("to"), "T") {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	return from, to, nil
}

func parseDateParam(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid %s date %q", name, raw)
}

func paginated(data interface{}, page repository.Page, total int64) gin.H {
	if page.Page < 1 {
		page.Page = 1
	}
	return gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": total,
		},
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": msg})
}

func serverError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": msg})
}
