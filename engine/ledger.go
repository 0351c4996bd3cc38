/*
ledger.go - Stock ledger contract (external collaborator)

PURPOSE:
  The stock ledger is the authoritative per-(product, warehouse) on-hand
  quantity and movement history. The engine never owns it: it reads the
  current snapshot when generating count lines, reads unit values when
  valuing a summary, and writes signed adjustment movements when a session
  is validated.

ATOMICITY:
  ApplyAdjustments must be all-or-nothing: a validated session either
  corrects every discrepant product or none. When the ledger shares a
  database with the session store, the transaction-scoped store implements
  this interface and the whole validation (movements + status flip) is one
  SQL transaction.

SEE ALSO:
  - lifecycle.go: The only writer of adjustments
  - generator.go: Reads the on-hand snapshot
  - reconcile.go: Reads unit values
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// StockLedger is the engine's view of the external stock ledger.
type StockLedger interface {
	// OnHandQuantities returns current on-hand quantity per product for a
	// warehouse. A non-empty category restricts the result to products in
	// that category. Products with no recorded level may be absent or zero.
	OnHandQuantities(ctx context.Context, warehouseID WarehouseID, category string) (map[ProductID]int64, error)

	// OnHandQuantity returns the current on-hand quantity for one product,
	// or ErrNotFound if the product is unknown.
	OnHandQuantity(ctx context.Context, warehouseID WarehouseID, productID ProductID) (int64, error)

	// UnitValue returns the catalog unit value for a product, or
	// ErrNotFound.
	UnitValue(ctx context.Context, productID ProductID) (decimal.Decimal, error)

	// RecordAdjustment applies one signed adjustment movement and updates
	// the on-hand level.
	RecordAdjustment(ctx context.Context, adj Adjustment) error

	// ApplyAdjustments applies a batch atomically: either every adjustment
	// commits or none do.
	ApplyAdjustments(ctx context.Context, adjs []Adjustment) error
}
