/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers (HTTP layer, automation) branch on the sentinels with errors.Is;
  structured types carry enough context for a useful message.

ERROR CATEGORIES:
  1. InvalidInput - malformed or missing fields, negative quantities
  2. NotFound     - unknown session, item, product, or warehouse
  3. Conflict     - duplicate product line within a session
  4. InvalidState - operation not legal for the session's current status
  5. LedgerError  - the external stock ledger rejected an adjustment

USAGE:
  if errors.Is(err, engine.ErrInvalidState) {
      // session can no longer be edited
  }

SEE ALSO:
  - lifecycle.go: Status guards returning InvalidStateError
  - store.go: Store implementations map constraint violations to these
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed requests: missing warehouse,
	// negative quantities, unknown status names.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a referenced session, item, product, or
	// warehouse does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when adding a product that already has a line
	// in the session. Bulk generation silently skips instead; only the
	// manual add path surfaces this.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when an operation is not legal for the
	// session's current status, including the loser of two concurrent
	// validate calls.
	ErrInvalidState = errors.New("invalid state")

	// ErrLedgerError is returned when the stock ledger rejects an adjustment
	// during validation. The validation transaction rolls back fully.
	ErrLedgerError = errors.New("ledger error")

	// ErrStoreRequired is returned when an operation needs a store capability
	// (transactions) the configured store does not provide.
	ErrStoreRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidStateError reports an operation attempted in an illegal status.
type InvalidStateError struct {
	Op     string // e.g. "validate", "add item"
	Status Status // status the session was observed in
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: session status is %q", e.Op, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// DuplicateProductError reports a product that already has a line in the session.
type DuplicateProductError struct {
	CountID   CountID
	ProductID ProductID
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %s already counted in session %s", e.ProductID, e.CountID)
}

func (e *DuplicateProductError) Unwrap() error { return ErrConflict }

// LedgerOpError wraps a failure from the external stock ledger with the
// adjustment that triggered it.
type LedgerOpError struct {
	Adjustment Adjustment
	Err        error
}

func (e *LedgerOpError) Error() string {
	return fmt.Sprintf("ledger adjustment failed for product %s in warehouse %s: %v",
		e.Adjustment.ProductID, e.Adjustment.WarehouseID, e.Err)
}

func (e *LedgerOpError) Unwrap() error { return ErrLedgerError }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input or
// an illegal operation, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
