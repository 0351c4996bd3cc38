/*
handlers_test.go - HTTP tests for the count API

Tests for:
- The full counting flow: catalog setup, generation, counting, validation
- Error-to-status mapping (400, 404, 409, 422, 501)
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/count-engine/engine"
	"github.com/tally/count-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRouter(NewHandler(store))
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func seedProductHTTP(t *testing.T, h http.Handler, id, unitValue string, onHand int64) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/ledger/products", ProductRequest{
		ID: id, Name: "Product " + id, UnitValue: unitValue,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/ledger/stock", StockLevelRequest{
		WarehouseID: "wh-1", ProductID: id, Quantity: onHand,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func createCountHTTP(t *testing.T, h http.Handler) StockCountDTO {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/counts", CreateCountRequest{WarehouseID: "wh-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[StockCountDTO](t, rec)
}

// =============================================================================
// FULL FLOW
// =============================================================================

func TestAPI_FullCountingFlow(t *testing.T) {
	// GIVEN: A catalog with two products in stock
	h := newTestServer(t)
	seedProductHTTP(t, h, "prod-a", "2.50", 10)
	seedProductHTTP(t, h, "prod-b", "4.00", 5)

	// WHEN: A session is created and lines generated from the ledger
	sc := createCountHTTP(t, h)
	assert.Equal(t, "planned", sc.Status)
	assert.Equal(t, "SC-0001", sc.CountNumber)

	rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/generate", GenerateRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[engine.GenerateReport](t, rec)
	assert.Equal(t, 2, report.Created)

	// AND: Counting begins with an auto-fill, then one line comes up short
	rec = do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/autofill", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[AutoFillResponse](t, rec).Updated)

	loaded := decode[StockCountDTO](t, do(t, h, http.MethodGet, "/api/counts/"+sc.ID, nil))
	require.Len(t, loaded.Items, 2)
	var short StockCountItemDTO
	for _, it := range loaded.Items {
		if it.ProductID == "prod-b" {
			short = it
		}
	}
	require.NotEmpty(t, short.ID)

	rec = do(t, h, http.MethodPut, "/api/counts/"+sc.ID+"/items/"+short.ID,
		UpdateItemRequest{CountedQuantity: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(-2), decode[StockCountItemDTO](t, rec).Difference)

	// THEN: Completion and validation commit the deficit to the ledger
	rec = do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/counts/"+sc.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[engine.SessionSummary](t, rec)
	assert.Equal(t, 1, summary.Statistics.ItemsDeficit)
	assert.Equal(t, int64(-2), summary.Quantities.NetDifference)

	rec = do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "validated", decode[StockCountDTO](t, rec).Status)

	rec = do(t, h, http.MethodGet, "/api/ledger/stock?warehouse=wh-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	levels := decode[[]StockLevelDTO](t, rec)
	byProduct := map[string]int64{}
	for _, l := range levels {
		byProduct[l.ProductID] = l.Quantity
	}
	assert.Equal(t, int64(10), byProduct["prod-a"])
	assert.Equal(t, int64(3), byProduct["prod-b"])

	rec = do(t, h, http.MethodGet, "/api/ledger/movements?warehouse=wh-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decode[[]MovementDTO](t, rec)
	require.Len(t, movements, 1)
	assert.Equal(t, sc.ID, movements[0].Reference)
	assert.Equal(t, int64(-2), movements[0].Quantity)
}

func TestAPI_DiscrepanciesEndpoint(t *testing.T) {
	h := newTestServer(t)
	seedProductHTTP(t, h, "prod-a", "1", 10)
	sc := createCountHTTP(t, h)

	expected := int64(10)
	rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/items", AddItemRequest{
		ProductID: "prod-a", ExpectedQuantity: &expected, CountedQuantity: 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/counts/"+sc.ID+"/discrepancies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]StockCountItemDTO](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Difference)
}

func TestAPI_AddItemSnapshotsLedgerWhenExpectedOmitted(t *testing.T) {
	h := newTestServer(t)
	seedProductHTTP(t, h, "prod-a", "1", 7)
	sc := createCountHTTP(t, h)

	rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/items", AddItemRequest{
		ProductID: "prod-a", CountedQuantity: 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[StockCountItemDTO](t, rec)
	assert.Equal(t, int64(7), item.Expected)
	assert.Equal(t, int64(0), item.Difference)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatusCodes(t *testing.T) {
	h := newTestServer(t)
	seedProductHTTP(t, h, "prod-a", "1", 5)
	sc := createCountHTTP(t, h)

	t.Run("missing warehouse is 400", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/counts", CreateCountRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/counts/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("duplicate product line is 409", func(t *testing.T) {
		expected := int64(5)
		body := AddItemRequest{ProductID: "prod-a", ExpectedQuantity: &expected, CountedQuantity: 5}
		rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/items", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/items", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validate before completion is 422", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/validate", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("report without a renderer is 501", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/counts/"+sc.ID+"/report", nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("negative counted quantity is 400", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, fmt.Sprintf("/api/counts/%s/items", sc.ID), AddItemRequest{
			ProductID: "prod-b", CountedQuantity: -1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_EditRejectedAfterCancel(t *testing.T) {
	h := newTestServer(t)
	sc := createCountHTTP(t, h)

	rec := do(t, h, http.MethodPost, "/api/counts/"+sc.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/counts/"+sc.ID, UpdateCountRequest{Notes: "too late"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
