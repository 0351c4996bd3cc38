/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates products, stock
	levels, and count sessions that demonstrate specific features.

AVAILABLE SCENARIOS:

	fresh-warehouse:   Stocked catalog, one planned session, nothing counted
	count-in-progress: Generated session mid-count, some lines entered
	shrinkage-found:   Completed session with deficits, ready to validate
	audited-history:   A validated session with committed adjustments

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the product catalog and stock levels
 3. Create count sessions and drive them to the scenario's status

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shrinkage-found"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Session and ledger admin handlers
  - engine/generator.go: Line generation used by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/count-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-warehouse",
		Name:        "Fresh Warehouse",
		Description: "Stocked catalog with one planned session, nothing counted yet",
	},
	{
		ID:          "count-in-progress",
		Name:        "Count In Progress",
		Description: "Generated session mid-count with some quantities entered",
	},
	{
		ID:          "shrinkage-found",
		Name:        "Shrinkage Found",
		Description: "Completed session with deficit lines, ready to validate",
	},
	{
		ID:          "audited-history",
		Name:        "Audited History",
		Description: "Validated session with adjustments committed to the ledger",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Admin.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-warehouse":
		err = h.loadFreshWarehouse(ctx)
	case "count-in-progress":
		err = h.loadCountInProgress(ctx)
	case "shrinkage-found":
		err = h.loadShrinkageFound(ctx)
	case "audited-history":
		err = h.loadAuditedHistory(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoWarehouse = engine.WarehouseID("wh-main")

type demoProduct struct {
	id        engine.ProductID
	name      string
	category  string
	unitValue string
	onHand    int64
}

var demoCatalog = []demoProduct{
	{"esp-beans-1kg", "Espresso Beans 1kg", "beverages", "18.50", 42},
	{"oat-milk-1l", "Oat Milk 1L", "beverages", "2.80", 120},
	{"paper-cup-12oz", "Paper Cup 12oz (50pk)", "consumables", "4.10", 35},
	{"choc-muffin", "Chocolate Muffin", "bakery", "1.25", 18},
	{"butter-croissant", "Butter Croissant", "bakery", "0.95", 0},
}

func (h *Handler) seedDemoCatalog(ctx context.Context) error {
	for _, p := range demoCatalog {
		value, err := decimal.NewFromString(p.unitValue)
		if err != nil {
			return err
		}
		err = h.Admin.UpsertProduct(ctx, engine.ProductInfo{
			ID:        p.id,
			SKU:       "SKU-" + string(p.id),
			Name:      p.name,
			Category:  p.category,
			UnitValue: value,
		})
		if err != nil {
			return err
		}
		if err := h.Admin.SetStockLevel(ctx, demoWarehouse, p.id, p.onHand); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadFreshWarehouse(ctx context.Context) error {
	if err := h.seedDemoCatalog(ctx); err != nil {
		return err
	}
	_, err := h.Service.CreateSession(ctx, demoWarehouse, time.Now(), "monthly full count")
	return err
}

func (h *Handler) loadCountInProgress(ctx context.Context) error {
	if err := h.seedDemoCatalog(ctx); err != nil {
		return err
	}

	sc, err := h.Service.CreateSession(ctx, demoWarehouse, time.Now(), "beverage spot check")
	if err != nil {
		return err
	}
	if _, err := h.Service.GenerateItems(ctx, sc.ID, engine.GenerateOptions{Category: "beverages"}); err != nil {
		return err
	}
	if _, err := h.Service.Start(ctx, sc.ID); err != nil {
		return err
	}

	// Count the first line only, leaving the rest for the operator.
	loaded, err := h.Service.GetSession(ctx, sc.ID)
	if err != nil {
		return err
	}
	if len(loaded.Items) > 0 {
		first := loaded.Items[0]
		if _, err := h.Service.UpdateItemCount(ctx, sc.ID, first.ID, first.Expected); err != nil {
			return err
		}
	}
	return nil
}

// countWithDiscrepancies drives a session through generation and counting,
// shorting a couple of lines, and leaves it completed.
func (h *Handler) countWithDiscrepancies(ctx context.Context) (*engine.StockCount, error) {
	sc, err := h.Service.CreateSession(ctx, demoWarehouse, time.Now(), "quarterly audit")
	if err != nil {
		return nil, err
	}
	if _, err := h.Service.GenerateItems(ctx, sc.ID, engine.GenerateOptions{}); err != nil {
		return nil, err
	}
	if _, err := h.Service.Start(ctx, sc.ID); err != nil {
		return nil, err
	}
	if _, err := h.Service.AutoFillCounts(ctx, sc.ID); err != nil {
		return nil, err
	}

	// Short the two highest-expected lines to fake shrinkage.
	loaded, err := h.Service.GetSession(ctx, sc.ID)
	if err != nil {
		return nil, err
	}
	shorted := 0
	for _, it := range loaded.Items {
		if it.Expected < 20 || shorted == 2 {
			continue
		}
		if _, err := h.Service.UpdateItemCount(ctx, sc.ID, it.ID, it.Expected-3); err != nil {
			return nil, err
		}
		shorted++
	}

	return h.Service.Complete(ctx, sc.ID)
}

func (h *Handler) loadShrinkageFound(ctx context.Context) error {
	if err := h.seedDemoCatalog(ctx); err != nil {
		return err
	}
	_, err := h.countWithDiscrepancies(ctx)
	return err
}

func (h *Handler) loadAuditedHistory(ctx context.Context) error {
	if err := h.seedDemoCatalog(ctx); err != nil {
		return err
	}
	sc, err := h.countWithDiscrepancies(ctx)
	if err != nil {
		return err
	}
	if _, err := h.Service.Validate(ctx, sc.ID); err != nil {
		return err
	}

	// A follow-up session so the demo shows both history and current work.
	_, err = h.Service.CreateSession(ctx, demoWarehouse, time.Now(), "post-audit recount")
	return err
}
