package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JustJay7/court-sync/internal/cache"
	"github.com/JustJay7/court-sync/internal/courtapi"
	"github.com/JustJay7/court-sync/internal/courtsync"
	"github.com/JustJay7/court-sync/internal/database"
	"github.com/JustJay7/court-sync/internal/metrics"
	"github.com/JustJay7/court-sync/internal/repository"
	"github.com/JustJay7/court-sync/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *gin.Engine
	repo   *repository.Repository
	court  *database.Court
}

// fakeCourtAPI serves PJe-style endpoints. Process numbers containing
// "fail" get a 500.
func fakeCourtAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/auth/token":
			_, _ = w.Write([]byte(`{"access_token":"tok"}`))
		case r.URL.Path == "/api/v1/status":
			_, _ = w.Write([]byte(`{"version":"1.4"}`))
		case strings.Contains(r.URL.Path, "fail"):
			http.Error(w, "boom", http.StatusInternalServerError)
		case strings.HasSuffix(r.URL.Path, "/movimentos"):
			_, _ = w.Write([]byte(`{"movimentos":[
				{"codigo":26,"nome":"Distribuído","dataHora":"2024-05-01T09:00:00Z"},
				{"codigo":60,"nome":"Expedição de documento","dataHora":"2024-05-02T09:00:00Z"}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/partes"):
			_, _ = w.Write([]byte(`{"partes":[{"nome":"Autor"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Initialize("sqlite", filepath.Join(t.TempDir(), "court_sync.db"))
	require.NoError(t, err)
	repo := repository.New(db)

	srv := fakeCourtAPI(t)
	court := &database.Court{Name: "TJSP", APIType: database.APITypePJe, BaseURL: srv.URL, APIKey: "k", Active: true}
	require.NoError(t, db.Create(court).Error)

	tokens := cache.NewMemoryCache(100, time.Hour, nil)
	m := metrics.New()
	client := courtapi.NewClient(tokens, courtapi.WithObserver(m))
	service := courtsync.NewService(repo, client, courtsync.WithMetrics(m))

	router := gin.New()
	SetupRoutes(router, repo, service, tokens, m, logger.Nop())

	return &testEnv{router: router, repo: repo, court: court}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func TestHealthCheck(t *testing.T) {
	env := setupTestRouter(t)

	w, resp := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, true, resp["database"])
}

func TestQueryCourtMovements(t *testing.T) {
	env := setupTestRouter(t)
	path := fmt.Sprintf("/api/courts/%d/query", env.court.ID)

	w, resp := env.do(t, http.MethodPost, path, gin.H{
		"process_number": "00012345620248260100",
		"save":           true,
	}, "X-User-ID", "7", "User-Agent", "office-ui")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, resp["success"])
	assert.Len(t, resp["data"], 2)
	assert.Equal(t, float64(2), resp["saved"].(map[string]interface{})["new"])

	query := resp["query"].(map[string]interface{})
	assert.Equal(t, "completed", query["status"])
	assert.Equal(t, float64(7), query["user_id"])
	assert.Equal(t, "office-ui", query["user_agent"])
}

func TestQueryCourtOtherTypes(t *testing.T) {
	env := setupTestRouter(t)
	path := fmt.Sprintf("/api/courts/%d/query", env.court.ID)

	w, resp := env.do(t, http.MethodPost, path, gin.H{"process_number": "1", "query_type": "parties"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)
}

func TestQueryCourtErrors(t *testing.T) {
	env := setupTestRouter(t)
	path := fmt.Sprintf("/api/courts/%d/query", env.court.ID)

	w, _ := env.do(t, http.MethodPost, "/api/courts/999/query", gin.H{"process_number": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/courts/abc/query", gin.H{"process_number": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, path, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, path, gin.H{"process_number": "1", "query_type": "verdicts"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// court failures are recorded and reported
	w, resp := env.do(t, http.MethodPost, path, gin.H{"process_number": "fail-1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "HTTP 500")
	assert.Equal(t, "error", resp["query"].(map[string]interface{})["status"])
}

func TestQueryCourtUnsupportedIsUnprocessable(t *testing.T) {
	env := setupTestRouter(t)

	// e-SAJ does not expose hearings
	esaj := &database.Court{Name: "TJSP-ESAJ", APIType: database.APITypeESAJ, BaseURL: "http://esaj.invalid", Active: true}
	require.NoError(t, env.repo.DB().Create(esaj).Error)

	w, resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/courts/%d/query", esaj.ID),
		gin.H{"process_number": "1", "query_type": "hearings"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "unsupported query type")
	assert.Equal(t, "error", resp["query"].(map[string]interface{})["status"])
}

func TestSyncCourt(t *testing.T) {
	env := setupTestRouter(t)
	path := fmt.Sprintf("/api/courts/%d/sync", env.court.ID)

	w, resp := env.do(t, http.MethodPost, path, gin.H{"process_numbers": []string{"A", "fail-B", "C"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	log := resp["data"].(map[string]interface{})
	assert.Equal(t, "partial", log["status"])
	assert.Equal(t, float64(3), log["processes_count"])
	assert.Equal(t, float64(1), log["errors_count"])
	// A and C report the same movements for different processes
	assert.Equal(t, float64(4), log["movements_new"])

	// no numbers and no active processes: an empty, completed run
	w, resp = env.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", resp["data"].(map[string]interface{})["status"])

	w, resp = env.do(t, http.MethodGet, "/api/sync-logs?status=partial", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)
	assert.Equal(t, float64(1), resp["pagination"].(map[string]interface{})["total"])
}

func TestTestCourt(t *testing.T) {
	env := setupTestRouter(t)

	w, resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/courts/%d/test", env.court.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "1.4", resp["data"].(map[string]interface{})["version"])
}

func TestRunSchedules(t *testing.T) {
	env := setupTestRouter(t)
	past := time.Now().Add(-time.Minute)
	schedule := &database.CourtSyncSchedule{CourtID: env.court.ID, Active: true, Frequency: "daily", NextRunAt: &past}
	require.NoError(t, env.repo.DB().Create(schedule).Error)

	w, resp := env.do(t, http.MethodPost, "/api/schedules/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := resp["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, false, results[0].(map[string]interface{})["skipped"])

	w, resp = env.do(t, http.MethodPost, "/api/schedules/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["results"])
}

func TestMovementWorkflow(t *testing.T) {
	env := setupTestRouter(t)
	process := &database.Process{Number: "0001234-56.2024.8.26.0100"}
	require.NoError(t, env.repo.DB().Create(process).Error)

	w, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/courts/%d/sync", env.court.ID),
		gin.H{"process_numbers": []string{"00012345620248260100", "9999999"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/movements?process_number=0001234-56.2024.8.26.0100&status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := resp["data"].([]interface{})
	require.Len(t, items, 2)
	first := uint(items[0].(map[string]interface{})["ID"].(float64))
	second := uint(items[1].(map[string]interface{})["ID"].(float64))

	w, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/movements/%d/import", first), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	proceedingID := resp["data"].(map[string]interface{})["ID"]

	// importing again returns the same proceeding
	w, resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/movements/%d/import", first), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, proceedingID, resp["data"].(map[string]interface{})["ID"])

	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/movements/%d/ignore", second), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/movements/%d/ignore", second), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// movements of the unknown process have nowhere to go
	w, resp = env.do(t, http.MethodGet, "/api/movements?process_number=9999999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orphans := resp["data"].([]interface{})
	require.Len(t, orphans, 2)
	orphan := uint(orphans[0].(map[string]interface{})["ID"].(float64))

	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/movements/%d/import", orphan), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, resp = env.do(t, http.MethodPost, "/api/movements/import", gin.H{"ids": []uint{orphan, 424242}})
	require.Equal(t, http.StatusOK, w.Code)
	result := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(0), result["imported"])
	assert.Equal(t, float64(2), result["failed"])

	w, _ = env.do(t, http.MethodPost, "/api/movements/import", gin.H{"ids": []uint{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/statistics?court_id=%d", env.court.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := resp["data"].(map[string]interface{})
	movements := stats["movements"].(map[string]interface{})
	assert.Equal(t, float64(4), movements["total"])
	assert.Equal(t, float64(1), movements["imported"])
	assert.Equal(t, float64(1), movements["ignored"])
}

func TestListQueriesFilters(t *testing.T) {
	env := setupTestRouter(t)
	path := fmt.Sprintf("/api/courts/%d/query", env.court.ID)
	env.do(t, http.MethodPost, path, gin.H{"process_number": "1"})
	env.do(t, http.MethodPost, path, gin.H{"process_number": "fail-2"})

	w, resp := env.do(t, http.MethodGet, "/api/queries?status=error", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)

	w, _ = env.do(t, http.MethodGet, "/api/queries?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/queries?court_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAndCacheStats(t *testing.T) {
	env := setupTestRouter(t)
	env.do(t, http.MethodPost, fmt.Sprintf("/api/courts/%d/query", env.court.ID), gin.H{"process_number": "1"})

	w, resp := env.do(t, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp["stats"].(map[string]interface{})["size"])

	w, _ = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "court_sync_queries_total")
	assert.Contains(t, w.Body.String(), "court_sync_court_request_duration_seconds")
}
