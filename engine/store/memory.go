// Package store provides in-memory SessionStore and StockLedger
// implementations for tests and dev mode.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/count-engine/engine"
)

// =============================================================================
// MEMORY SESSION STORE
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	sessions map[engine.CountID]*engine.StockCount
	nextSeq  int
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[engine.CountID]*engine.StockCount)}
}

func (m *Memory) CreateSession(_ context.Context, sc *engine.StockCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(sc)
}

func (m *Memory) createLocked(sc *engine.StockCount) error {
	if _, ok := m.sessions[sc.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", engine.ErrConflict, sc.ID)
	}
	if sc.CountNumber == "" {
		m.nextSeq++
		sc.CountNumber = fmt.Sprintf("SC-%04d", m.nextSeq)
	}
	m.sessions[sc.ID] = cloneSession(sc)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id engine.CountID) (*engine.StockCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id engine.CountID) (*engine.StockCount, error) {
	sc, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
	}
	return cloneSession(sc), nil
}

func (m *Memory) ListSessions(_ context.Context, status engine.Status) ([]engine.StockCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.StockCount
	for _, sc := range m.sessions {
		if status != "" && sc.Status != status {
			continue
		}
		c := cloneSession(sc)
		c.Items = nil
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CountNumber > out[j].CountNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateSession(_ context.Context, sc *engine.StockCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSessionLocked(sc)
}

func (m *Memory) updateSessionLocked(sc *engine.StockCount) error {
	stored, ok := m.sessions[sc.ID]
	if !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, sc.ID)
	}
	stored.CountDate = sc.CountDate
	stored.Notes = sc.Notes
	stored.UpdatedAt = sc.UpdatedAt
	return nil
}

func (m *Memory) SetStatus(_ context.Context, id engine.CountID, from []engine.Status, to engine.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatusLocked(id, from, to)
}

func (m *Memory) setStatusLocked(id engine.CountID, from []engine.Status, to engine.Status) error {
	sc, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, id)
	}
	for _, f := range from {
		if sc.Status == f {
			sc.Status = to
			sc.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: session %s is %s", engine.ErrInvalidState, id, sc.Status)
}

func (m *Memory) InsertItem(_ context.Context, item *engine.StockCountItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertItemLocked(item)
}

func (m *Memory) insertItemLocked(item *engine.StockCountItem) error {
	sc, ok := m.sessions[item.CountID]
	if !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, item.CountID)
	}
	if sc.Item(item.ProductID) != nil {
		return &engine.DuplicateProductError{CountID: item.CountID, ProductID: item.ProductID}
	}
	sc.Items = append(sc.Items, *item)
	return nil
}

func (m *Memory) UpdateItem(_ context.Context, item *engine.StockCountItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateItemLocked(item)
}

func (m *Memory) updateItemLocked(item *engine.StockCountItem) error {
	sc, ok := m.sessions[item.CountID]
	if !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, item.CountID)
	}
	for i := range sc.Items {
		if sc.Items[i].ID == item.ID {
			sc.Items[i] = *item
			return nil
		}
	}
	return fmt.Errorf("%w: item %s", engine.ErrNotFound, item.ID)
}

func (m *Memory) DeleteItem(_ context.Context, countID engine.CountID, itemID engine.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteItemLocked(countID, itemID)
}

func (m *Memory) deleteItemLocked(countID engine.CountID, itemID engine.ItemID) error {
	sc, ok := m.sessions[countID]
	if !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, countID)
	}
	for i := range sc.Items {
		if sc.Items[i].ID == itemID {
			sc.Items = append(sc.Items[:i], sc.Items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: item %s", engine.ErrNotFound, itemID)
}

func (m *Memory) DeleteItems(_ context.Context, countID engine.CountID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteItemsLocked(countID)
}

func (m *Memory) deleteItemsLocked(countID engine.CountID) (int, error) {
	sc, ok := m.sessions[countID]
	if !ok {
		return 0, fmt.Errorf("%w: session %s", engine.ErrNotFound, countID)
	}
	n := len(sc.Items)
	sc.Items = nil
	return n, nil
}

// WithTx executes fn within a transaction, simulated with a snapshot +
// rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(engine.SessionStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *Memory) snapshot() map[engine.CountID]*engine.StockCount {
	c := make(map[engine.CountID]*engine.StockCount, len(m.sessions))
	for id, sc := range m.sessions {
		c[id] = cloneSession(sc)
	}
	return c
}

func (m *Memory) restore(snapshot map[engine.CountID]*engine.StockCount) {
	m.sessions = snapshot
}

func cloneSession(sc *engine.StockCount) *engine.StockCount {
	c := *sc
	c.Items = append([]engine.StockCountItem(nil), sc.Items...)
	return &c
}

// txMemoryView runs against the parent's state without re-locking; the
// parent holds the write lock for the whole transaction.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateSession(_ context.Context, sc *engine.StockCount) error {
	return tv.parent.createLocked(sc)
}

func (tv *txMemoryView) GetSession(_ context.Context, id engine.CountID) (*engine.StockCount, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) ListSessions(ctx context.Context, status engine.Status) ([]engine.StockCount, error) {
	var out []engine.StockCount
	for _, sc := range tv.parent.sessions {
		if status == "" || sc.Status == status {
			c := cloneSession(sc)
			c.Items = nil
			out = append(out, *c)
		}
	}
	return out, nil
}

func (tv *txMemoryView) UpdateSession(_ context.Context, sc *engine.StockCount) error {
	return tv.parent.updateSessionLocked(sc)
}

func (tv *txMemoryView) SetStatus(_ context.Context, id engine.CountID, from []engine.Status, to engine.Status) error {
	return tv.parent.setStatusLocked(id, from, to)
}

func (tv *txMemoryView) InsertItem(_ context.Context, item *engine.StockCountItem) error {
	return tv.parent.insertItemLocked(item)
}

func (tv *txMemoryView) UpdateItem(_ context.Context, item *engine.StockCountItem) error {
	return tv.parent.updateItemLocked(item)
}

func (tv *txMemoryView) DeleteItem(_ context.Context, countID engine.CountID, itemID engine.ItemID) error {
	return tv.parent.deleteItemLocked(countID, itemID)
}

func (tv *txMemoryView) DeleteItems(_ context.Context, countID engine.CountID) (int, error) {
	return tv.parent.deleteItemsLocked(countID)
}

// =============================================================================
// MEMORY STOCK LEDGER
// =============================================================================

// MemoryLedger is a self-contained stock ledger: product catalog, per
// (warehouse, product) on-hand levels, and an append-only movement log.
type MemoryLedger struct {
	mu        sync.RWMutex
	products  map[engine.ProductID]engine.ProductInfo
	levels    map[levelKey]int64
	movements []Movement

	// FailNext forces the next adjustment write to fail. Test hook for
	// rollback behavior.
	FailNext error
}

type levelKey struct {
	Warehouse engine.WarehouseID
	Product   engine.ProductID
}

// Movement is one recorded stock movement.
type Movement struct {
	WarehouseID engine.WarehouseID
	ProductID   engine.ProductID
	Quantity    int64
	Reference   string
	Reason      string
	At          time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products: make(map[engine.ProductID]engine.ProductInfo),
		levels:   make(map[levelKey]int64),
	}
}

// SetProduct registers or replaces a catalog entry.
func (l *MemoryLedger) SetProduct(p engine.ProductInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[p.ID] = p
}

// SetStock sets the on-hand level for a (warehouse, product) pair.
func (l *MemoryLedger) SetStock(warehouseID engine.WarehouseID, productID engine.ProductID, qty int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[levelKey{warehouseID, productID}] = qty
}

// Movements returns a copy of the movement log.
func (l *MemoryLedger) Movements() []Movement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Movement(nil), l.movements...)
}

func (l *MemoryLedger) OnHandQuantities(_ context.Context, warehouseID engine.WarehouseID, category string) (map[engine.ProductID]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[engine.ProductID]int64)
	for k, qty := range l.levels {
		if k.Warehouse != warehouseID {
			continue
		}
		if category != "" {
			p, ok := l.products[k.Product]
			if !ok || p.Category != category {
				continue
			}
		}
		out[k.Product] = qty
	}
	return out, nil
}

func (l *MemoryLedger) OnHandQuantity(_ context.Context, warehouseID engine.WarehouseID, productID engine.ProductID) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.products[productID]; !ok {
		return 0, fmt.Errorf("%w: product %s", engine.ErrNotFound, productID)
	}
	return l.levels[levelKey{warehouseID, productID}], nil
}

func (l *MemoryLedger) UnitValue(_ context.Context, productID engine.ProductID) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.products[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: product %s", engine.ErrNotFound, productID)
	}
	return p.UnitValue, nil
}

func (l *MemoryLedger) RecordAdjustment(ctx context.Context, adj engine.Adjustment) error {
	return l.ApplyAdjustments(ctx, []engine.Adjustment{adj})
}

// ApplyAdjustments applies the batch under one lock: all or nothing.
func (l *MemoryLedger) ApplyAdjustments(_ context.Context, adjs []engine.Adjustment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailNext != nil {
		err := l.FailNext
		l.FailNext = nil
		failed := engine.Adjustment{}
		if len(adjs) > 0 {
			failed = adjs[0]
		}
		return &engine.LedgerOpError{Adjustment: failed, Err: err}
	}

	now := time.Now().UTC()
	for _, adj := range adjs {
		l.levels[levelKey{adj.WarehouseID, adj.ProductID}] += adj.Quantity
		l.movements = append(l.movements, Movement{
			WarehouseID: adj.WarehouseID,
			ProductID:   adj.ProductID,
			Quantity:    adj.Quantity,
			Reference:   adj.Reference,
			Reason:      adj.Reason,
			At:          now,
		})
	}
	return nil
}
