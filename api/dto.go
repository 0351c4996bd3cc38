/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in the engine, not in DTOs. DTOs are pure data
  carriers; the handlers only translate shapes.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/reconcile.go: SessionSummary is serialized as-is
*/
package api

import (
	"time"

	"github.com/tally/count-engine/engine"
)

// =============================================================================
// SESSION TYPES
// =============================================================================

// StockCountDTO represents a count session in API responses.
type StockCountDTO struct {
	ID          string              `json:"id"`
	CountNumber string              `json:"count_number"`
	WarehouseID string              `json:"warehouse_id"`
	CountDate   string              `json:"count_date"`
	Notes       string              `json:"notes,omitempty"`
	Status      string              `json:"status"`
	Items       []StockCountItemDTO `json:"items,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// StockCountItemDTO represents one count line. Difference is derived on
// serialization, never read from storage.
type StockCountItemDTO struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Expected   int64  `json:"expected_quantity"`
	Counted    int64  `json:"counted_quantity"`
	Difference int64  `json:"difference"`
	Notes      string `json:"notes,omitempty"`
}

// CreateCountRequest opens a new session.
type CreateCountRequest struct {
	WarehouseID string `json:"warehouse_id"`
	CountDate   string `json:"count_date,omitempty"` // 2006-01-02
	Notes       string `json:"notes,omitempty"`
}

// UpdateCountRequest edits session metadata.
type UpdateCountRequest struct {
	CountDate string `json:"count_date,omitempty"`
	Notes     string `json:"notes"`
}

// AddItemRequest adds one line. ExpectedQuantity nil means "snapshot the
// ledger's current on-hand quantity".
type AddItemRequest struct {
	ProductID        string `json:"product_id"`
	ExpectedQuantity *int64 `json:"expected_quantity,omitempty"`
	CountedQuantity  int64  `json:"counted_quantity"`
	Notes            string `json:"notes,omitempty"`
}

// UpdateItemRequest sets the counted quantity on a line.
type UpdateItemRequest struct {
	CountedQuantity int64 `json:"counted_quantity"`
}

// GenerateRequest controls bulk line generation.
type GenerateRequest struct {
	IncludeZeroStock bool   `json:"include_zero_stock"`
	Overwrite        bool   `json:"overwrite"`
	Category         string `json:"category,omitempty"`
}

// AutoFillResponse reports a bulk auto-fill.
type AutoFillResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// LEDGER ADMIN TYPES
// =============================================================================

// ProductRequest upserts a catalog entry.
type ProductRequest struct {
	ID        string `json:"id"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	UnitValue string `json:"unit_value,omitempty"` // decimal string
}

// ProductDTO represents a catalog entry.
type ProductDTO struct {
	ID        string `json:"id"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	UnitValue string `json:"unit_value"`
}

// StockLevelRequest sets the on-hand level for a (warehouse, product) pair.
type StockLevelRequest struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
}

// StockLevelDTO represents one on-hand level.
type StockLevelDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// MovementDTO represents one movement log row.
type MovementDTO struct {
	ID          int64  `json:"id"`
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	Reference   string `json:"reference,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCountDTO(sc *engine.StockCount) StockCountDTO {
	dto := StockCountDTO{
		ID:          string(sc.ID),
		CountNumber: sc.CountNumber,
		WarehouseID: string(sc.WarehouseID),
		CountDate:   sc.CountDate.Format("2006-01-02"),
		Notes:       sc.Notes,
		Status:      string(sc.Status),
		CreatedAt:   sc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   sc.UpdatedAt.Format(time.RFC3339),
	}
	for _, it := range sc.Items {
		dto.Items = append(dto.Items, toItemDTO(it))
	}
	return dto
}

func toItemDTO(it engine.StockCountItem) StockCountItemDTO {
	return StockCountItemDTO{
		ID:         string(it.ID),
		ProductID:  string(it.ProductID),
		Expected:   it.Expected,
		Counted:    it.Counted,
		Difference: it.Difference(),
		Notes:      it.Notes,
	}
}
