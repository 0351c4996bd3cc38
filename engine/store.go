/*
store.go - Persistence interfaces for count sessions

PURPOSE:
  SessionStore is the low-level persistence contract the engine services are
  built on. Implementations: store/sqlite (production) and engine/store
  (in-memory, tests and dev mode).

TRANSACTIONS:
  Every mutating engine operation runs inside a single WithTx closure so two
  concurrent editors never interleave a partial write. The closure receives a
  transaction-scoped SessionStore; when the implementation also backs the
  stock ledger (the SQLite store does), the transaction-scoped value
  implements StockLedger too, letting validation span both in one commit.

STATUS GUARDS:
  SetStatus is a conditional update: it flips the status only if the current
  status is one of the allowed sources, and returns ErrInvalidState otherwise.
  This is the mutual-exclusion mechanism for concurrent lifecycle calls -
  two validators race on the same completed->validated guard and exactly one
  wins.

SEE ALSO:
  - ledger.go: The external stock ledger contract
  - store/sqlite/sqlite.go: Production implementation
  - engine/store/memory.go: In-memory implementation
*/
package engine

import "context"

// SessionStore persists StockCount sessions and their item lines.
type SessionStore interface {
	// CreateSession persists a new session. The store assigns CountNumber
	// if empty.
	CreateSession(ctx context.Context, sc *StockCount) error

	// GetSession returns a session with its items, or ErrNotFound.
	GetSession(ctx context.Context, id CountID) (*StockCount, error)

	// ListSessions returns all sessions (without items), newest first.
	// A non-empty status filters the result.
	ListSessions(ctx context.Context, status Status) ([]StockCount, error)

	// UpdateSession persists metadata changes (count date, notes).
	UpdateSession(ctx context.Context, sc *StockCount) error

	// SetStatus conditionally flips the session status. Returns
	// ErrInvalidState if the current status is not in from, ErrNotFound if
	// the session does not exist.
	SetStatus(ctx context.Context, id CountID, from []Status, to Status) error

	// InsertItem adds one line. Returns ErrConflict if the product already
	// has a line in the session.
	InsertItem(ctx context.Context, item *StockCountItem) error

	// UpdateItem persists changes to an existing line.
	UpdateItem(ctx context.Context, item *StockCountItem) error

	// DeleteItem removes one line, or ErrNotFound.
	DeleteItem(ctx context.Context, countID CountID, itemID ItemID) error

	// DeleteItems removes all lines for a session. Used by overwrite
	// generation. Returns the number removed.
	DeleteItems(ctx context.Context, countID CountID) (int, error)
}

// TxSessionStore is a SessionStore that can scope work to a transaction.
type TxSessionStore interface {
	SessionStore

	// WithTx runs fn against a transaction-scoped store. If fn returns an
	// error the transaction rolls back and the error is returned unchanged.
	WithTx(ctx context.Context, fn func(SessionStore) error) error
}
