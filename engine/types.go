/*
Package engine provides the core physical inventory reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for running a stock
  count: a bounded physical inventory session against one warehouse. The
  engine owns the session lifecycle, populates count lines from the stock
  ledger, derives discrepancy statistics on demand, and - on validation -
  commits adjustments back into the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockCount: One counting session, with status and owned item lines
  - StockCountItem: One product line (expected vs counted quantity)
  - Status: The session state machine states
  - Adjustment: A signed correction the engine emits to the stock ledger

DESIGN PRINCIPLES:
  1. Derived, never stored: an item's difference is always computed from its
     current quantities - there is no persisted difference field to go stale
  2. Precision: unit values and valuation aggregates use decimal.Decimal
  3. Type Safety: strong typing for IDs prevents mixing session/item/product IDs
  4. One warehouse per session, one line per product per session

USAGE:
  sc := engine.StockCount{WarehouseID: "wh-1", CountDate: today}
  item := engine.StockCountItem{ProductID: "prod-7", Expected: 10, Counted: 8}
  item.Difference() // -2, a deficit

SEE ALSO:
  - session.go: Session CRUD service
  - lifecycle.go: State machine and validation commit
  - generator.go: Bulk line generation from the ledger snapshot
  - reconcile.go: Discrepancy and valuation summaries
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CountID string
type ItemID string
type ProductID string
type WarehouseID string

// =============================================================================
// STATUS - Session state machine states
// =============================================================================

type Status string

const (
	// StatusPlanned is the initial state. StatusDraft is an accepted synonym
	// (legacy data uses it); both behave identically everywhere.
	StatusPlanned    Status = "planned"
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusValidated  Status = "validated"
	StatusCancelled  Status = "cancelled"
)

// Editable reports whether item lines may still be added, edited, or removed.
func (s Status) Editable() bool {
	switch s {
	case StatusPlanned, StatusDraft, StatusInProgress:
		return true
	}
	return false
}

// Terminal reports whether the session can never change again.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusCancelled
}

// =============================================================================
// STOCK COUNT - One physical inventory session
// =============================================================================

type StockCount struct {
	ID          CountID
	CountNumber string // Human-readable, unique within the organization
	WarehouseID WarehouseID
	CountDate   time.Time
	Notes       string
	Status      Status

	// Items is the session's owned line collection. Populated by GetSession;
	// one line per product, enforced at add time.
	Items []StockCountItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns the line for a product, or nil if the product is not counted.
func (sc *StockCount) Item(productID ProductID) *StockCountItem {
	for i := range sc.Items {
		if sc.Items[i].ProductID == productID {
			return &sc.Items[i]
		}
	}
	return nil
}

// =============================================================================
// STOCK COUNT ITEM - One product line within a session
// =============================================================================

type StockCountItem struct {
	ID        ItemID
	CountID   CountID
	ProductID ProductID

	// Expected is the ledger's on-hand quantity snapshotted when the line was
	// generated or added. Counted is the operator-entered physical count.
	Expected int64
	Counted  int64

	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Difference returns counted minus expected (surplus-positive convention):
// positive = surplus, negative = deficit, zero = match. Always derived.
func (it StockCountItem) Difference() int64 {
	return it.Counted - it.Expected
}

// =============================================================================
// ADJUSTMENT - Signed correction emitted to the stock ledger on validation
// =============================================================================

type Adjustment struct {
	WarehouseID WarehouseID
	ProductID   ProductID
	Quantity    int64  // Signed: the item's difference at validation time
	Reference   string // Session ID, for movement traceability
	Reason      string
}

// =============================================================================
// PRODUCT INFO - Catalog data the engine reads from the ledger
// =============================================================================

type ProductInfo struct {
	ID        ProductID
	SKU       string
	Name      string
	Category  string
	UnitValue decimal.Decimal
}
