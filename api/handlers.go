/*
handlers.go - HTTP API handlers for the count engine

PURPOSE:
  Exposes the reconciliation engine via REST. Handles HTTP request/response
  and JSON serialization, and delegates everything else to the engine.

ENDPOINTS:
  Sessions:
    POST   /api/counts                     Create session
    GET    /api/counts                     List sessions (?status=)
    GET    /api/counts/{id}                Session with items
    PUT    /api/counts/{id}                Update metadata

  Items:
    POST   /api/counts/{id}/items          Add line
    PUT    /api/counts/{id}/items/{itemID} Update counted quantity
    DELETE /api/counts/{id}/items/{itemID} Delete line

  Bulk:
    POST   /api/counts/{id}/generate       Generate lines from ledger
    POST   /api/counts/{id}/autofill       counted := expected

  Lifecycle:
    POST   /api/counts/{id}/start          planned -> in_progress
    POST   /api/counts/{id}/complete       in_progress -> completed
    POST   /api/counts/{id}/validate       completed -> validated + adjustments
    POST   /api/counts/{id}/cancel         -> cancelled

  Reconciliation:
    GET    /api/counts/{id}/summary        Statistics, quantities, values
    GET    /api/counts/{id}/discrepancies  Lines with difference != 0
    GET    /api/counts/{id}/report         Rendered document (if configured)

  Ledger admin (hosted ledger only):
    POST   /api/ledger/products            Upsert product
    GET    /api/ledger/products            List catalog
    POST   /api/ledger/stock               Set on-hand level
    GET    /api/ledger/stock?warehouse=    Levels per warehouse
    GET    /api/ledger/movements?warehouse= Movement history

ERROR HANDLING:
  Engine failures map to HTTP status by kind:
  - 400: invalid input
  - 404: unknown session/item/product
  - 409: duplicate product line
  - 422: operation not legal for the session status
  - 502: the stock ledger rejected an adjustment
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tally/count-engine/engine"
	"github.com/tally/count-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service

	// Admin is the hosted ledger's management surface; nil when the engine
	// runs against an external ledger, which disables /api/ledger.
	Admin *sqlite.Store

	// Renderer serves /api/counts/{id}/report; nil returns 501.
	Renderer engine.ReportRenderer

	currentScenario string
}

// NewHandler creates a handler around a SQLite store, which backs both the
// session store and the stock ledger.
func NewHandler(st *sqlite.Store) *Handler {
	return &Handler{
		Service: engine.NewService(st, st),
		Admin:   st,
	}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// CreateCount opens a new counting session.
func (h *Handler) CreateCount(w http.ResponseWriter, r *http.Request) {
	var req CreateCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var countDate time.Time
	if req.CountDate != "" {
		var err error
		countDate, err = time.Parse("2006-01-02", req.CountDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid count_date, want YYYY-MM-DD", err)
			return
		}
	}

	sc, err := h.Service.CreateSession(r.Context(), engine.WarehouseID(req.WarehouseID), countDate, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCountDTO(sc))
}

// ListCounts returns all sessions, optionally filtered by ?status=.
func (h *Handler) ListCounts(w http.ResponseWriter, r *http.Request) {
	status := engine.Status(r.URL.Query().Get("status"))

	sessions, err := h.Service.ListSessions(r.Context(), status)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]StockCountDTO, len(sessions))
	for i := range sessions {
		dtos[i] = toCountDTO(&sessions[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCount returns one session with its items and derived differences.
func (h *Handler) GetCount(w http.ResponseWriter, r *http.Request) {
	sc, err := h.Service.GetSession(r.Context(), countID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCountDTO(sc))
}

// UpdateCount edits session metadata while the session is editable.
func (h *Handler) UpdateCount(w http.ResponseWriter, r *http.Request) {
	var req UpdateCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var countDate time.Time
	if req.CountDate != "" {
		var err error
		countDate, err = time.Parse("2006-01-02", req.CountDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid count_date, want YYYY-MM-DD", err)
			return
		}
	}

	sc, err := h.Service.UpdateSession(r.Context(), countID(r), countDate, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCountDTO(sc))
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// AddItem adds one product line. 409 if the product is already counted.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Absent expected quantity means snapshot the ledger.
	expected := int64(-1)
	if req.ExpectedQuantity != nil {
		expected = *req.ExpectedQuantity
		if expected < 0 {
			writeError(w, http.StatusBadRequest, "expected_quantity must be >= 0", nil)
			return
		}
	}

	item, err := h.Service.AddItem(r.Context(), countID(r),
		engine.ProductID(req.ProductID), expected, req.CountedQuantity, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(*item))
}

// UpdateItem sets the counted quantity on a line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Service.UpdateItemCount(r.Context(), countID(r),
		engine.ItemID(chi.URLParam(r, "itemID")), req.CountedQuantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// DeleteItem removes a line from an editable session.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteItem(r.Context(), countID(r), engine.ItemID(chi.URLParam(r, "itemID")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BULK HANDLERS
// =============================================================================

// Generate bulk-creates lines from the warehouse's ledger snapshot.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report, err := h.Service.GenerateItems(r.Context(), countID(r), engine.GenerateOptions{
		IncludeZeroStock: req.IncludeZeroStock,
		Overwrite:        req.Overwrite,
		Category:         req.Category,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AutoFill sets counted = expected on every line.
func (h *Handler) AutoFill(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.AutoFillCounts(r.Context(), countID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoFillResponse{Updated: updated})
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

func (h *Handler) StartCount(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Start)
}

func (h *Handler) CompleteCount(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Complete)
}

func (h *Handler) ValidateCount(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Validate)
}

func (h *Handler) CancelCount(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Cancel)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id engine.CountID) (*engine.StockCount, error)) {
	sc, err := op(r.Context(), countID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCountDTO(sc))
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// GetSummary returns the derived reconciliation summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.Summary(r.Context(), countID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetDiscrepancies returns lines whose counted quantity differs.
func (h *Handler) GetDiscrepancies(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Discrepancies(r.Context(), countID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]StockCountItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReport renders the session through the configured renderer.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.Renderer == nil {
		writeError(w, http.StatusNotImplemented, "No report renderer configured", nil)
		return
	}

	id := countID(r)
	sc, err := h.Service.GetSession(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	summary, err := h.Service.Summary(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	doc, contentType, err := h.Renderer.Render(r.Context(), sc, *summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Report rendering failed", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// =============================================================================
// LEDGER ADMIN HANDLERS
// =============================================================================

// UpsertProduct creates or updates a catalog entry in the hosted ledger.
func (h *Handler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	unitValue := decimal.Zero
	if req.UnitValue != "" {
		var err error
		unitValue, err = decimal.NewFromString(req.UnitValue)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unit_value", err)
			return
		}
	}

	p := engine.ProductInfo{
		ID:        engine.ProductID(req.ID),
		SKU:       req.SKU,
		Name:      req.Name,
		Category:  req.Category,
		UnitValue: unitValue,
	}
	if err := h.Admin.UpsertProduct(r.Context(), p); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// ListProducts returns the hosted ledger's catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Admin.ListProducts(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetStock sets an absolute on-hand level.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req StockLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.WarehouseID == "" || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "warehouse_id and product_id are required", nil)
		return
	}

	err := h.Admin.SetStockLevel(r.Context(),
		engine.WarehouseID(req.WarehouseID), engine.ProductID(req.ProductID), req.Quantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StockLevelDTO{ProductID: req.ProductID, Quantity: req.Quantity})
}

// GetStock returns on-hand levels for ?warehouse=.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	warehouse := r.URL.Query().Get("warehouse")
	if warehouse == "" {
		writeError(w, http.StatusBadRequest, "warehouse query parameter is required", nil)
		return
	}

	levels, err := h.Admin.OnHandQuantities(r.Context(), engine.WarehouseID(warehouse), r.URL.Query().Get("category"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]StockLevelDTO, 0, len(levels))
	for productID, qty := range levels {
		dtos = append(dtos, StockLevelDTO{ProductID: string(productID), Quantity: qty})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMovements returns movement history for ?warehouse=.
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	warehouse := r.URL.Query().Get("warehouse")
	if warehouse == "" {
		writeError(w, http.StatusBadRequest, "warehouse query parameter is required", nil)
		return
	}

	movements, err := h.Admin.ListMovements(r.Context(), engine.WarehouseID(warehouse))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = MovementDTO{
			ID:          m.ID,
			WarehouseID: string(m.WarehouseID),
			ProductID:   string(m.ProductID),
			Quantity:    m.Quantity,
			Reference:   m.Reference,
			Reason:      m.Reason,
			CreatedAt:   m.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func countID(r *http.Request) engine.CountID {
	return engine.CountID(chi.URLParam(r, "id"))
}

func toProductDTO(p engine.ProductInfo) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		SKU:       p.SKU,
		Name:      p.Name,
		Category:  p.Category,
		UnitValue: p.UnitValue.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error kinds to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, "Invalid state", err)
	case errors.Is(err, engine.ErrLedgerError):
		writeError(w, http.StatusBadGateway, "Ledger adjustment failed, nothing changed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
