package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JustJay7/court-sync/internal/database"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.QueryFinished("TJSP", database.QueryMovements, database.QueryStatusCompleted)
	m.QueryFinished("TJSP", database.QueryMovements, database.QueryStatusCompleted)
	m.QueryFinished("TJSP", database.QueryMovements, database.QueryStatusError)
	m.MovementsStored("TJSP", 4)
	m.MovementsStored("TJSP", 0)
	m.SyncFinished(database.SyncScheduled, database.SyncPartial)
	m.ObserveCourtRequest(database.APITypePJe, "movements", 200, 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues("TJSP", "movements", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("TJSP", "movements", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.newMovements.WithLabelValues("TJSP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("scheduled", "partial")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.courtLatency))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.QueryFinished("x", database.QueryParties, database.QueryStatusCompleted)
		m.SyncFinished(database.SyncManual, database.SyncCompleted)
		m.MovementsStored("x", 3)
		m.ObserveCourtRequest(database.APITypeEproc, "auth", 0, time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.SyncFinished(database.SyncManual, database.SyncCompleted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `court_sync_sync_runs_total{status="completed",type="manual"} 1`)
}
