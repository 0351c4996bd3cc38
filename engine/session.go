/*
session.go - Count session CRUD service

PURPOSE:
  Owns creation and item-level editing of count sessions. Every mutating
  operation runs in one store transaction and returns the updated aggregate
  directly, so callers never need a follow-up read after an edit.

EDITABILITY:
  Item operations are only legal while the session status is planned, draft,
  or in_progress. Once a session completes, lines freeze; once it is
  validated or cancelled, nothing changes again.

DUPLICATE LINES:
  AddItem rejects a product that already has a line (Conflict) - a manual
  add is explicit operator intent and a duplicate is a mistake. Bulk
  generation silently skips existing products instead; see generator.go.

SEE ALSO:
  - lifecycle.go: Status transitions
  - generator.go: Bulk line population
  - reconcile.go: Derived statistics
*/
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SERVICE - Engine entry point
// =============================================================================

// Service orchestrates count sessions against a session store and the
// external stock ledger.
type Service struct {
	Store  TxSessionStore
	Ledger StockLedger
}

func NewService(store TxSessionStore, ledger StockLedger) *Service {
	return &Service{Store: store, Ledger: ledger}
}

// =============================================================================
// SESSION CRUD
// =============================================================================

// CreateSession opens a new session in status planned.
func (s *Service) CreateSession(ctx context.Context, warehouseID WarehouseID, countDate time.Time, notes string) (*StockCount, error) {
	if strings.TrimSpace(string(warehouseID)) == "" {
		return nil, fmt.Errorf("%w: warehouse is required", ErrInvalidInput)
	}
	if countDate.IsZero() {
		countDate = time.Now().UTC()
	}

	now := time.Now().UTC()
	sc := &StockCount{
		ID:          CountID(uuid.NewString()),
		WarehouseID: warehouseID,
		CountDate:   countDate,
		Notes:       notes,
		Status:      StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Store.CreateSession(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sc, nil
}

// GetSession returns a session with its items.
func (s *Service) GetSession(ctx context.Context, id CountID) (*StockCount, error) {
	return s.Store.GetSession(ctx, id)
}

// ListSessions returns all sessions, optionally filtered by status.
func (s *Service) ListSessions(ctx context.Context, status Status) ([]StockCount, error) {
	return s.Store.ListSessions(ctx, status)
}

// UpdateSession edits session metadata (count date, notes) while editable.
func (s *Service) UpdateSession(ctx context.Context, id CountID, countDate time.Time, notes string) (*StockCount, error) {
	var out *StockCount
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := s.editable(ctx, tx, id, "update session")
		if err != nil {
			return err
		}
		if !countDate.IsZero() {
			sc.CountDate = countDate
		}
		sc.Notes = notes
		sc.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateSession(ctx, sc); err != nil {
			return err
		}
		out = sc
		return nil
	})
	return out, err
}

// =============================================================================
// ITEM OPERATIONS
// =============================================================================

// AddItem adds one product line to an editable session. The expected
// quantity is the caller's snapshot of the ledger; pass a negative expected
// to have it read from the ledger instead.
func (s *Service) AddItem(ctx context.Context, countID CountID, productID ProductID, expected, counted int64, notes string) (*StockCountItem, error) {
	if strings.TrimSpace(string(productID)) == "" {
		return nil, fmt.Errorf("%w: product is required", ErrInvalidInput)
	}
	if counted < 0 {
		return nil, fmt.Errorf("%w: counted quantity must be >= 0", ErrInvalidInput)
	}

	var out *StockCountItem
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := s.editable(ctx, tx, countID, "add item")
		if err != nil {
			return err
		}
		if sc.Item(productID) != nil {
			return &DuplicateProductError{CountID: countID, ProductID: productID}
		}

		if expected < 0 {
			ledger := s.Ledger
			if txLedger, ok := tx.(StockLedger); ok {
				ledger = txLedger
			}
			qty, err := ledger.OnHandQuantity(ctx, sc.WarehouseID, productID)
			if err != nil {
				return err
			}
			expected = qty
		}
		if expected < 0 {
			return fmt.Errorf("%w: expected quantity must be >= 0", ErrInvalidInput)
		}

		now := time.Now().UTC()
		item := &StockCountItem{
			ID:        ItemID(uuid.NewString()),
			CountID:   countID,
			ProductID: productID,
			Expected:  expected,
			Counted:   counted,
			Notes:     notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	return out, err
}

// UpdateItemCount sets the operator-entered counted quantity on a line.
func (s *Service) UpdateItemCount(ctx context.Context, countID CountID, itemID ItemID, counted int64) (*StockCountItem, error) {
	if counted < 0 {
		return nil, fmt.Errorf("%w: counted quantity must be >= 0", ErrInvalidInput)
	}

	var out *StockCountItem
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := s.editable(ctx, tx, countID, "update item")
		if err != nil {
			return err
		}
		item := findItem(sc, itemID)
		if item == nil {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		item.Counted = counted
		item.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	return out, err
}

// DeleteItem removes one line from an editable session.
func (s *Service) DeleteItem(ctx context.Context, countID CountID, itemID ItemID) error {
	return s.Store.WithTx(ctx, func(tx SessionStore) error {
		if _, err := s.editable(ctx, tx, countID, "delete item"); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, countID, itemID)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// editable loads a session and verifies item operations are still legal.
func (s *Service) editable(ctx context.Context, tx SessionStore, id CountID, op string) (*StockCount, error) {
	sc, err := tx.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.Status.Editable() {
		return nil, &InvalidStateError{Op: op, Status: sc.Status}
	}
	return sc, nil
}

func findItem(sc *StockCount, itemID ItemID) *StockCountItem {
	for i := range sc.Items {
		if sc.Items[i].ID == itemID {
			return &sc.Items[i]
		}
	}
	return nil
}
