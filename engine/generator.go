/*
generator.go - Bulk line generation from the ledger snapshot

PURPOSE:
  Populates a session's lines from the stock ledger's current on-hand
  snapshot for the session's warehouse, so operators count against a fresh
  system picture instead of typing lines by hand.

OVERWRITE SEMANTICS:
  overwrite=true  - existing lines are removed first; re-running replaces
                    the line set deterministically (idempotent)
  overwrite=false - products that already have a line are silently skipped;
                    re-running never duplicates. A bulk convenience tolerates
                    existing rows where the manual AddItem rejects them.

SEE ALSO:
  - session.go: Manual AddItem with the hard Conflict error
  - ledger.go: OnHandQuantities snapshot contract
*/
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateOptions controls bulk line generation.
type GenerateOptions struct {
	// IncludeZeroStock keeps products whose on-hand quantity is 0. Off by
	// default: zero-stock products rarely need a physical count.
	IncludeZeroStock bool

	// Overwrite removes all existing lines before inserting.
	Overwrite bool

	// Category restricts generation to products in one catalog category.
	Category string
}

// GenerateReport summarizes a generation run.
type GenerateReport struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// GenerateItems inserts one line per product in the warehouse snapshot,
// with expected = ledger quantity and counted = 0.
func (s *Service) GenerateItems(ctx context.Context, id CountID, opts GenerateOptions) (*GenerateReport, error) {
	var report GenerateReport
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := s.editable(ctx, tx, id, "generate items")
		if err != nil {
			return err
		}

		ledger := s.Ledger
		if txLedger, ok := tx.(StockLedger); ok {
			ledger = txLedger
		}
		snapshot, err := ledger.OnHandQuantities(ctx, sc.WarehouseID, opts.Category)
		if err != nil {
			return err
		}

		existing := make(map[ProductID]bool, len(sc.Items))
		if opts.Overwrite {
			if _, err := tx.DeleteItems(ctx, id); err != nil {
				return err
			}
		} else {
			for _, it := range sc.Items {
				existing[it.ProductID] = true
			}
		}

		// Deterministic insertion order.
		products := make([]ProductID, 0, len(snapshot))
		for p := range snapshot {
			products = append(products, p)
		}
		sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })

		now := time.Now().UTC()
		for _, p := range products {
			qty := snapshot[p]
			if qty == 0 && !opts.IncludeZeroStock {
				continue
			}
			if existing[p] {
				report.Skipped++
				continue
			}
			item := &StockCountItem{
				ID:        ItemID(uuid.NewString()),
				CountID:   id,
				ProductID: p,
				Expected:  qty,
				Counted:   0,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// AutoFillCounts sets counted = expected on every line, a bulk convenience
// for counts that largely match the system. Returns the number of lines
// whose counted quantity actually changed.
func (s *Service) AutoFillCounts(ctx context.Context, id CountID) (int, error) {
	var updated int
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := s.editable(ctx, tx, id, "auto-fill counts")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range sc.Items {
			item := &sc.Items[i]
			if item.Counted == item.Expected {
				continue
			}
			item.Counted = item.Expected
			item.UpdatedAt = now
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
