/*
Package sqlite provides a SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements both persistence contracts against one database file:

  engine.TxSessionStore: Count sessions and their item lines
  engine.StockLedger:    Product catalog, on-hand levels, movement log

  Hosting both in one database is what makes validation atomic: the
  transaction-scoped store handed to WithTx callbacks also implements
  StockLedger, so adjustment movements, level updates, and the status flip
  are a single SQL commit.

KEY TABLES:
  stock_counts:      One row per counting session
  stock_count_items: Lines; UNIQUE(stock_count_id, product_id) backs the
                     one-line-per-product invariant
  products:          Catalog with decimal unit values (stored as TEXT)
  stock_levels:      Current on-hand per (warehouse, product)
  stock_movements:   Append-only movement log; validation adjustments land
                     here with the session ID as reference

STATUS GUARD:
  SetStatus is UPDATE ... WHERE id = ? AND status IN (...). RowsAffected 0
  with an existing row means the guard lost - that is how two concurrent
  validate calls are serialized.

WAL MODE:
  SQLite is opened with WAL so readers don't block the single writer.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety across connections. The mutex is held
  for the whole WithTx closure.

USAGE:
  st, err := sqlite.New("./data/counts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  svc := engine.NewService(st, st)

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tally/count-engine/engine"
)

// Store implements engine.TxSessionStore and engine.StockLedger on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: the mutex serializes access anyway, and it keeps
	// ":memory:" databases from splitting across pool connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Count sessions
	CREATE TABLE IF NOT EXISTS stock_counts (
		id TEXT PRIMARY KEY,
		count_number TEXT NOT NULL UNIQUE,
		warehouse_id TEXT NOT NULL,
		count_date TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_counts_status
		ON stock_counts(status);
	CREATE INDEX IF NOT EXISTS idx_stock_counts_warehouse
		ON stock_counts(warehouse_id);

	-- Count lines
	CREATE TABLE IF NOT EXISTS stock_count_items (
		id TEXT PRIMARY KEY,
		stock_count_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		expected_qty INTEGER NOT NULL,
		counted_qty INTEGER NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (stock_count_id) REFERENCES stock_counts(id)
	);

	-- CRITICAL: one line per product per session
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_count_product
		ON stock_count_items(stock_count_id, product_id);
	CREATE INDEX IF NOT EXISTS idx_count_items_session
		ON stock_count_items(stock_count_id);

	-- Product catalog
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		sku TEXT UNIQUE,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		unit_value TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category
		ON products(category);

	-- Current on-hand levels
	CREATE TABLE IF NOT EXISTS stock_levels (
		warehouse_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (warehouse_id, product_id)
	);

	-- Movement log (append-only)
	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		warehouse_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		reference TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_warehouse
		ON stock_movements(warehouse_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON stock_movements(reference);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data. Demo scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"stock_count_items", "stock_counts", "stock_movements", "stock_levels", "products",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SESSION STORE (engine.SessionStore interface)
// =============================================================================

// CreateSession persists a new session, assigning its count number.
func (s *Store) CreateSession(ctx context.Context, sc *engine.StockCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSession(ctx, s.db, sc)
}

func (s *Store) createSession(ctx context.Context, db dbtx, sc *engine.StockCount) error {
	if sc.CountNumber == "" {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_counts").Scan(&n); err != nil {
			return fmt.Errorf("failed to number session: %w", err)
		}
		sc.CountNumber = fmt.Sprintf("SC-%04d", n+1)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_counts
		(id, count_number, warehouse_id, count_date, notes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.CountNumber, sc.WarehouseID,
		sc.CountDate.UTC().Format(time.RFC3339),
		nullString(sc.Notes), sc.Status,
		sc.CreatedAt.UTC().Format(time.RFC3339),
		sc.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: session %s", engine.ErrConflict, sc.ID)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns a session with its items.
func (s *Store) GetSession(ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSession(ctx, s.db, id)
}

func (s *Store) getSession(ctx context.Context, db dbtx, id engine.CountID) (*engine.StockCount, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, count_number, warehouse_id, count_date, notes, status, created_at, updated_at
		FROM stock_counts WHERE id = ?`, id)

	sc, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, stock_count_id, product_id, expected_qty, counted_qty, notes, created_at, updated_at
		FROM stock_count_items
		WHERE stock_count_id = ?
		ORDER BY created_at ASC, product_id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		sc.Items = append(sc.Items, item)
	}
	return sc, rows.Err()
}

// ListSessions returns sessions without items, newest first.
func (s *Store) ListSessions(ctx context.Context, status engine.Status) ([]engine.StockCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSessions(ctx, s.db, status)
}

func (s *Store) listSessions(ctx context.Context, db dbtx, status engine.Status) ([]engine.StockCount, error) {
	query := `
		SELECT id, count_number, warehouse_id, count_date, notes, status, created_at, updated_at
		FROM stock_counts`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, count_number DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []engine.StockCount
	for rows.Next() {
		sc, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// UpdateSession persists metadata changes.
func (s *Store) UpdateSession(ctx context.Context, sc *engine.StockCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSession(ctx, s.db, sc)
}

func (s *Store) updateSession(ctx context.Context, db dbtx, sc *engine.StockCount) error {
	res, err := db.ExecContext(ctx, `
		UPDATE stock_counts SET count_date = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		sc.CountDate.UTC().Format(time.RFC3339), nullString(sc.Notes),
		sc.UpdatedAt.UTC().Format(time.RFC3339), sc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: session %s", engine.ErrNotFound, sc.ID))
}

// SetStatus conditionally flips the session status. The WHERE guard is the
// mutual exclusion for concurrent lifecycle calls.
func (s *Store) SetStatus(ctx context.Context, id engine.CountID, from []engine.Status, to engine.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatus(ctx, s.db, id, from, to)
}

func (s *Store) setStatus(ctx context.Context, db dbtx, id engine.CountID, from []engine.Status, to engine.Status) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{to, time.Now().UTC().Format(time.RFC3339), id}
	for _, f := range from {
		args = append(args, f)
	}

	res, err := db.ExecContext(ctx,
		"UPDATE stock_counts SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Guard lost: distinguish a missing session from a wrong status.
	var current engine.Status
	err = db.QueryRowContext(ctx, "SELECT status FROM stock_counts WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is %s", engine.ErrInvalidState, id, current)
}

// InsertItem adds one line; the unique index enforces one line per product.
func (s *Store) InsertItem(ctx context.Context, item *engine.StockCountItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertItem(ctx, s.db, item)
}

func (s *Store) insertItem(ctx context.Context, db dbtx, item *engine.StockCountItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_count_items
		(id, stock_count_id, product_id, expected_qty, counted_qty, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CountID, item.ProductID, item.Expected, item.Counted,
		nullString(item.Notes),
		item.CreatedAt.UTC().Format(time.RFC3339),
		item.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.DuplicateProductError{CountID: item.CountID, ProductID: item.ProductID}
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// UpdateItem persists line changes.
func (s *Store) UpdateItem(ctx context.Context, item *engine.StockCountItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateItem(ctx, s.db, item)
}

func (s *Store) updateItem(ctx context.Context, db dbtx, item *engine.StockCountItem) error {
	res, err := db.ExecContext(ctx, `
		UPDATE stock_count_items SET counted_qty = ?, expected_qty = ?, notes = ?, updated_at = ?
		WHERE id = ? AND stock_count_id = ?`,
		item.Counted, item.Expected, nullString(item.Notes),
		item.UpdatedAt.UTC().Format(time.RFC3339),
		item.ID, item.CountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: item %s", engine.ErrNotFound, item.ID))
}

// DeleteItem removes one line.
func (s *Store) DeleteItem(ctx context.Context, countID engine.CountID, itemID engine.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteItem(ctx, s.db, countID, itemID)
}

func (s *Store) deleteItem(ctx context.Context, db dbtx, countID engine.CountID, itemID engine.ItemID) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM stock_count_items WHERE id = ? AND stock_count_id = ?",
		itemID, countID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireRow(res, fmt.Errorf("%w: item %s", engine.ErrNotFound, itemID))
}

// DeleteItems removes all lines for a session.
func (s *Store) DeleteItems(ctx context.Context, countID engine.CountID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteItems(ctx, s.db, countID)
}

func (s *Store) deleteItems(ctx context.Context, db dbtx, countID engine.CountID) (int, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM stock_count_items WHERE stock_count_id = ?", countID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// TRANSACTIONS (engine.TxSessionStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store passed to fn
// also implements engine.StockLedger, so validation spans sessions and
// ledger in one commit.
func (s *Store) WithTx(ctx context.Context, fn func(engine.SessionStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore scopes every store and ledger operation to one *sql.Tx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreateSession(ctx context.Context, sc *engine.StockCount) error {
	return ts.parent.createSession(ctx, ts.tx, sc)
}

func (ts *txStore) GetSession(ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
	return ts.parent.getSession(ctx, ts.tx, id)
}

func (ts *txStore) ListSessions(ctx context.Context, status engine.Status) ([]engine.StockCount, error) {
	return ts.parent.listSessions(ctx, ts.tx, status)
}

func (ts *txStore) UpdateSession(ctx context.Context, sc *engine.StockCount) error {
	return ts.parent.updateSession(ctx, ts.tx, sc)
}

func (ts *txStore) SetStatus(ctx context.Context, id engine.CountID, from []engine.Status, to engine.Status) error {
	return ts.parent.setStatus(ctx, ts.tx, id, from, to)
}

func (ts *txStore) InsertItem(ctx context.Context, item *engine.StockCountItem) error {
	return ts.parent.insertItem(ctx, ts.tx, item)
}

func (ts *txStore) UpdateItem(ctx context.Context, item *engine.StockCountItem) error {
	return ts.parent.updateItem(ctx, ts.tx, item)
}

func (ts *txStore) DeleteItem(ctx context.Context, countID engine.CountID, itemID engine.ItemID) error {
	return ts.parent.deleteItem(ctx, ts.tx, countID, itemID)
}

func (ts *txStore) DeleteItems(ctx context.Context, countID engine.CountID) (int, error) {
	return ts.parent.deleteItems(ctx, ts.tx, countID)
}

func (ts *txStore) OnHandQuantities(ctx context.Context, warehouseID engine.WarehouseID, category string) (map[engine.ProductID]int64, error) {
	return ts.parent.onHandQuantities(ctx, ts.tx, warehouseID, category)
}

func (ts *txStore) OnHandQuantity(ctx context.Context, warehouseID engine.WarehouseID, productID engine.ProductID) (int64, error) {
	return ts.parent.onHandQuantity(ctx, ts.tx, warehouseID, productID)
}

func (ts *txStore) UnitValue(ctx context.Context, productID engine.ProductID) (decimal.Decimal, error) {
	return ts.parent.unitValue(ctx, ts.tx, productID)
}

func (ts *txStore) RecordAdjustment(ctx context.Context, adj engine.Adjustment) error {
	return ts.parent.recordAdjustment(ctx, ts.tx, adj)
}

func (ts *txStore) ApplyAdjustments(ctx context.Context, adjs []engine.Adjustment) error {
	for _, adj := range adjs {
		if err := ts.parent.recordAdjustment(ctx, ts.tx, adj); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// STOCK LEDGER (engine.StockLedger interface)
// =============================================================================

func (s *Store) OnHandQuantities(ctx context.Context, warehouseID engine.WarehouseID, category string) (map[engine.ProductID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onHandQuantities(ctx, s.db, warehouseID, category)
}

func (s *Store) onHandQuantities(ctx context.Context, db dbtx, warehouseID engine.WarehouseID, category string) (map[engine.ProductID]int64, error) {
	query := `
		SELECT sl.product_id, sl.quantity
		FROM stock_levels sl
		JOIN products p ON p.id = sl.product_id
		WHERE sl.warehouse_id = ?`
	args := []any{warehouseID}
	if category != "" {
		query += " AND p.category = ?"
		args = append(args, category)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.ProductID]int64)
	for rows.Next() {
		var productID engine.ProductID
		var qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func (s *Store) OnHandQuantity(ctx context.Context, warehouseID engine.WarehouseID, productID engine.ProductID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onHandQuantity(ctx, s.db, warehouseID, productID)
}

func (s *Store) onHandQuantity(ctx context.Context, db dbtx, warehouseID engine.WarehouseID, productID engine.ProductID) (int64, error) {
	var exists int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE id = ?", productID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, fmt.Errorf("%w: product %s", engine.ErrNotFound, productID)
	}

	var qty int64
	err = db.QueryRowContext(ctx,
		"SELECT quantity FROM stock_levels WHERE warehouse_id = ? AND product_id = ?",
		warehouseID, productID,
	).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil // known product, no recorded level
	}
	return qty, err
}

func (s *Store) UnitValue(ctx context.Context, productID engine.ProductID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unitValue(ctx, s.db, productID)
}

func (s *Store) unitValue(ctx context.Context, db dbtx, productID engine.ProductID) (decimal.Decimal, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		"SELECT unit_value FROM products WHERE id = ?", productID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: product %s", engine.ErrNotFound, productID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad unit value for product %s: %w", productID, err)
	}
	return value, nil
}

func (s *Store) RecordAdjustment(ctx context.Context, adj engine.Adjustment) error {
	return s.ApplyAdjustments(ctx, []engine.Adjustment{adj})
}

// ApplyAdjustments applies the batch in one transaction: each adjustment
// appends a movement row and shifts the on-hand level.
func (s *Store) ApplyAdjustments(ctx context.Context, adjs []engine.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, adj := range adjs {
		if err := s.recordAdjustment(ctx, sqlTx, adj); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) recordAdjustment(ctx context.Context, db dbtx, adj engine.Adjustment) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_movements (warehouse_id, product_id, quantity, reference, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		adj.WarehouseID, adj.ProductID, adj.Quantity,
		nullString(adj.Reference), nullString(adj.Reason), now,
	)
	if err != nil {
		return &engine.LedgerOpError{Adjustment: adj, Err: err}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO stock_levels (warehouse_id, product_id, quantity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(warehouse_id, product_id) DO UPDATE SET
			quantity = stock_levels.quantity + excluded.quantity,
			updated_at = excluded.updated_at`,
		adj.WarehouseID, adj.ProductID, adj.Quantity, now,
	)
	if err != nil {
		return &engine.LedgerOpError{Adjustment: adj, Err: err}
	}
	return nil
}

// =============================================================================
// LEDGER ADMIN - catalog and level management for the hosted ledger
// =============================================================================

// UpsertProduct creates or replaces a catalog entry.
func (s *Store) UpsertProduct(ctx context.Context, p engine.ProductInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, unit_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			category = excluded.category,
			unit_value = excluded.unit_value`,
		p.ID, nullString(p.SKU), p.Name, p.Category, p.UnitValue.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: sku %s", engine.ErrConflict, p.SKU)
		}
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// ListProducts returns the catalog ordered by SKU.
func (s *Store) ListProducts(ctx context.Context) ([]engine.ProductInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sku, name, category, unit_value FROM products ORDER BY sku ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []engine.ProductInfo
	for rows.Next() {
		var p engine.ProductInfo
		var sku sql.NullString
		var raw string
		if err := rows.Scan(&p.ID, &sku, &p.Name, &p.Category, &raw); err != nil {
			return nil, err
		}
		p.SKU = sku.String
		if p.UnitValue, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("bad unit value for product %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetStockLevel sets the absolute on-hand level for a (warehouse, product)
// pair, outside any count session.
func (s *Store) SetStockLevel(ctx context.Context, warehouseID engine.WarehouseID, productID engine.ProductID, qty int64) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", engine.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE id = ?", productID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: product %s", engine.ErrNotFound, productID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_levels (warehouse_id, product_id, quantity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(warehouse_id, product_id) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at`,
		warehouseID, productID, qty, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to set stock level: %w", err)
	}
	return nil
}

// Movement is one row of the movement log.
type Movement struct {
	ID          int64
	WarehouseID engine.WarehouseID
	ProductID   engine.ProductID
	Quantity    int64
	Reference   string
	Reason      string
	CreatedAt   time.Time
}

// ListMovements returns movements for a warehouse, newest first.
func (s *Store) ListMovements(ctx context.Context, warehouseID engine.WarehouseID) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, warehouse_id, product_id, quantity, reference, reason, created_at
		FROM stock_movements
		WHERE warehouse_id = ?
		ORDER BY id DESC`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		var reference, reason sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Quantity, &reference, &reason, &createdAt); err != nil {
			return nil, err
		}
		m.Reference = reference.String
		m.Reason = reason.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*engine.StockCount, error) {
	var sc engine.StockCount
	var countDate, createdAt, updatedAt string
	var notes sql.NullString

	err := row.Scan(&sc.ID, &sc.CountNumber, &sc.WarehouseID, &countDate, &notes, &sc.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sc.Notes = notes.String
	sc.CountDate, _ = time.Parse(time.RFC3339, countDate)
	sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sc, nil
}

func scanItem(rows *sql.Rows) (engine.StockCountItem, error) {
	var item engine.StockCountItem
	var notes sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&item.ID, &item.CountID, &item.ProductID, &item.Expected, &item.Counted, &notes, &createdAt, &updatedAt)
	if err != nil {
		return item, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Notes = notes.String
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return item, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireRow(res sql.Result, notFound error) error {
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
