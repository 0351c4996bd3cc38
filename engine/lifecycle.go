/*
lifecycle.go - Count session state machine

PURPOSE:
  Enforces the session lifecycle and commits validated discrepancies into
  the stock ledger.

STATE MACHINE:
      planned/draft ──start──▶ in_progress ──complete──▶ completed
           │                       │                         │
           └───────cancel──────────┘                      validate
                     │                                       │
                     ▼                                       ▼
                 cancelled                               validated

  validated and cancelled are terminal. Any transition attempted from a
  terminal state, or out of order, fails with InvalidState and has no side
  effect.

VALIDATION COMMIT:
  validate is the only operation with side effects outside the session: for
  every line whose counted quantity differs from the expected snapshot, it
  records a signed adjustment movement in the stock ledger. The status flip
  and the adjustments are one atomic unit - a failure anywhere leaves the
  session in completed with no ledger writes.

CONCURRENT VALIDATE:
  The completed->validated flip is a conditional update (SetStatus guard).
  Two racing validators both read completed, but only one guard matches; the
  loser gets InvalidState and writes nothing.

SEE ALSO:
  - store.go: SetStatus guard semantics
  - ledger.go: Adjustment batch contract
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// startable are the statuses from which start is legal. draft is a synonym
// of planned kept for sessions created by older data.
var (
	startable   = []Status{StatusPlanned, StatusDraft}
	cancellable = []Status{StatusPlanned, StatusDraft, StatusInProgress}
)

// Start moves a planned session into in_progress.
func (s *Service) Start(ctx context.Context, id CountID) (*StockCount, error) {
	return s.transition(ctx, id, "start", startable, StatusInProgress)
}

// Complete freezes counting: item lines become read-only.
func (s *Service) Complete(ctx context.Context, id CountID) (*StockCount, error) {
	return s.transition(ctx, id, "complete", []Status{StatusInProgress}, StatusCompleted)
}

// Cancel terminates a session before validation. No ledger effect.
func (s *Service) Cancel(ctx context.Context, id CountID) (*StockCount, error) {
	return s.transition(ctx, id, "cancel", cancellable, StatusCancelled)
}

// transition applies a guarded status flip inside one transaction and
// returns the updated session.
func (s *Service) transition(ctx context.Context, id CountID, op string, from []Status, to Status) (*StockCount, error) {
	var out *StockCount
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, from, to); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return &InvalidStateError{Op: op, Status: sc.Status}
			}
			return err
		}
		sc.Status = to
		sc.UpdatedAt = time.Now().UTC()
		out = sc
		return nil
	})
	return out, err
}

// Validate commits a completed session: every discrepant line becomes a
// signed adjustment movement in the stock ledger, then the session flips to
// validated. All of it commits or none of it does.
func (s *Service) Validate(ctx context.Context, id CountID) (*StockCount, error) {
	var out *StockCount
	err := s.Store.WithTx(ctx, func(tx SessionStore) error {
		sc, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}

		// Claim the session first: the conditional flip is the mutual
		// exclusion between concurrent validators.
		if err := tx.SetStatus(ctx, id, []Status{StatusCompleted}, StatusValidated); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return &InvalidStateError{Op: "validate", Status: sc.Status}
			}
			return err
		}

		adjs := make([]Adjustment, 0, len(sc.Items))
		for _, it := range sc.Items {
			diff := it.Difference()
			if diff == 0 {
				continue
			}
			adjs = append(adjs, Adjustment{
				WarehouseID: sc.WarehouseID,
				ProductID:   it.ProductID,
				Quantity:    diff,
				Reference:   string(sc.ID),
				Reason:      "stock count adjustment",
			})
		}

		// Prefer the transaction-scoped ledger when the store provides one:
		// movements and the status flip then share a single commit.
		ledger := s.Ledger
		if txLedger, ok := tx.(StockLedger); ok {
			ledger = txLedger
		}

		if len(adjs) > 0 {
			if err := ledger.ApplyAdjustments(ctx, adjs); err != nil {
				if errors.Is(err, ErrLedgerError) {
					return err
				}
				return fmt.Errorf("%w: %v", ErrLedgerError, err)
			}
		}

		sc.Status = StatusValidated
		sc.UpdatedAt = time.Now().UTC()
		out = sc
		return nil
	})
	return out, err
}
