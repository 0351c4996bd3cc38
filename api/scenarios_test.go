/*
scenarios_test.go - Tests for demo scenario loading

Tests for:
- Each scenario loads and leaves the expected session statuses
- Loading a scenario resets previous data
- Sweeper retirement of abandoned sessions
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/count-engine/engine"
	"github.com/tally/count-engine/store/sqlite"
)

func newScenarioHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h := NewHandler(store)
	return h, NewRouter(h)
}

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func sessionsByStatus(t *testing.T, h *Handler, status engine.Status) []engine.StockCount {
	t.Helper()
	sessions, err := h.Service.ListSessions(context.Background(), status)
	require.NoError(t, err)
	return sessions
}

func TestScenario_FreshWarehouse(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "fresh-warehouse")

	products, err := h.Admin.ListProducts(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, products)

	planned := sessionsByStatus(t, h, engine.StatusPlanned)
	require.Len(t, planned, 1)
}

func TestScenario_CountInProgress(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "count-in-progress")

	active := sessionsByStatus(t, h, engine.StatusInProgress)
	require.Len(t, active, 1)

	sc, err := h.Service.GetSession(context.Background(), active[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, sc.Items)
}

func TestScenario_ShrinkageFound(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "shrinkage-found")

	completed := sessionsByStatus(t, h, engine.StatusCompleted)
	require.Len(t, completed, 1)

	items, err := h.Service.Discrepancies(context.Background(), completed[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, items, "scenario should contain deficit lines")
	for _, it := range items {
		assert.Negative(t, it.Difference())
	}
}

func TestScenario_AuditedHistory(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "audited-history")

	validated := sessionsByStatus(t, h, engine.StatusValidated)
	require.Len(t, validated, 1)

	movements, err := h.Admin.ListMovements(context.Background(), demoWarehouse)
	require.NoError(t, err)
	assert.NotEmpty(t, movements, "validation should have committed adjustments")
}

func TestScenario_LoadResetsPreviousData(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "audited-history")
	loadScenario(t, router, "fresh-warehouse")

	all, err := h.Service.ListSessions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 1, "previous scenario sessions should be gone")
	assert.Equal(t, engine.StatusPlanned, all[0].Status)
}

func TestScenario_UnknownID(t *testing.T) {
	_, router := newScenarioHandler(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SWEEPER
// =============================================================================

func TestSweeper_CancelsOnlyStalePlannedSessions(t *testing.T) {
	h, router := newScenarioHandler(t)
	loadScenario(t, router, "count-in-progress")
	ctx := context.Background()

	stale, err := h.Service.CreateSession(ctx, demoWarehouse, time.Now(), "forgotten")
	require.NoError(t, err)

	sw := NewStaleCountSweeper(h.Service)
	sw.MaxAge = 0 // everything already created counts as stale

	cancelled := sw.Sweep(ctx)
	assert.Equal(t, 1, cancelled)

	loaded, err := h.Service.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, loaded.Status)

	// The in-progress session from the scenario is untouched.
	active := sessionsByStatus(t, h, engine.StatusInProgress)
	assert.Len(t, active, 1)
}
