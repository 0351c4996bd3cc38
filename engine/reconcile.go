/*
reconcile.go - Discrepancy and valuation summaries

PURPOSE:
  Derives per-item and session-level reconciliation figures on demand from
  the current line rows. Nothing here is persisted or cached - a summary is
  always computed from what the store returns right now, so it can never go
  stale against the lines.

SIGN CONVENTION:
  Surplus-positive throughout: difference = counted - expected. A positive
  net difference means the warehouse holds more than the system recorded.

VALUATION:
  Quantities are exact integers. Values multiply quantities by the catalog
  unit value using decimal arithmetic - no floats anywhere in the money
  path. A product missing from the catalog values at zero rather than
  failing the whole summary.

SEE ALSO:
  - ledger.go: UnitValue source
  - types.go: StockCountItem.Difference
*/
package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY TYPES
// =============================================================================

// Statistics counts lines by match outcome.
type Statistics struct {
	ItemsMatched         int     `json:"items_matched"`
	ItemsWithDiscrepancy int     `json:"items_with_discrepancy"`
	ItemsSurplus         int     `json:"items_surplus"`
	ItemsDeficit         int     `json:"items_deficit"`
	MatchRate            float64 `json:"match_rate"` // percent, 0 for an empty session
}

// Quantities aggregates raw unit counts.
type Quantities struct {
	TotalExpected int64 `json:"total_expected"`
	TotalCounted  int64 `json:"total_counted"`
	NetDifference int64 `json:"net_difference"` // TotalCounted - TotalExpected, exactly
}

// Values aggregates quantities through catalog unit values.
type Values struct {
	TotalExpectedValue decimal.Decimal `json:"total_expected_value"`
	TotalCountedValue  decimal.Decimal `json:"total_counted_value"`
	ValueDifference    decimal.Decimal `json:"value_difference"`
}

// SessionSummary is the full reconciliation picture for one session.
type SessionSummary struct {
	CountID    CountID    `json:"count_id"`
	TotalItems int        `json:"total_items"`
	Statistics Statistics `json:"statistics"`
	Quantities Quantities `json:"quantities"`
	Values     Values     `json:"values"`
}

// =============================================================================
// PURE CALCULATORS
// =============================================================================

// Summarize computes the reconciliation summary for a loaded session.
// unitValues prices the value aggregates; products absent from the map
// value at zero.
func Summarize(sc *StockCount, unitValues map[ProductID]decimal.Decimal) SessionSummary {
	summary := SessionSummary{
		CountID:    sc.ID,
		TotalItems: len(sc.Items),
		Values: Values{
			TotalExpectedValue: decimal.Zero,
			TotalCountedValue:  decimal.Zero,
			ValueDifference:    decimal.Zero,
		},
	}

	for _, it := range sc.Items {
		diff := it.Difference()
		switch {
		case diff == 0:
			summary.Statistics.ItemsMatched++
		case diff > 0:
			summary.Statistics.ItemsSurplus++
		default:
			summary.Statistics.ItemsDeficit++
		}

		summary.Quantities.TotalExpected += it.Expected
		summary.Quantities.TotalCounted += it.Counted

		value := unitValues[it.ProductID]
		summary.Values.TotalExpectedValue = summary.Values.TotalExpectedValue.Add(value.Mul(decimal.NewFromInt(it.Expected)))
		summary.Values.TotalCountedValue = summary.Values.TotalCountedValue.Add(value.Mul(decimal.NewFromInt(it.Counted)))
	}

	summary.Statistics.ItemsWithDiscrepancy = summary.Statistics.ItemsSurplus + summary.Statistics.ItemsDeficit
	summary.Quantities.NetDifference = summary.Quantities.TotalCounted - summary.Quantities.TotalExpected
	summary.Values.ValueDifference = summary.Values.TotalCountedValue.Sub(summary.Values.TotalExpectedValue)

	if summary.TotalItems > 0 {
		summary.Statistics.MatchRate = float64(summary.Statistics.ItemsMatched) / float64(summary.TotalItems) * 100
	}
	return summary
}

// DiscrepantItems returns the lines whose counted quantity differs from the
// expected snapshot, in the session's line order.
func DiscrepantItems(sc *StockCount) []StockCountItem {
	var out []StockCountItem
	for _, it := range sc.Items {
		if it.Difference() != 0 {
			out = append(out, it)
		}
	}
	return out
}

// =============================================================================
// SERVICE QUERIES
// =============================================================================

// Summary loads a session and prices its reconciliation summary with
// current catalog unit values.
func (s *Service) Summary(ctx context.Context, id CountID) (*SessionSummary, error) {
	sc, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	unitValues := make(map[ProductID]decimal.Decimal, len(sc.Items))
	for _, it := range sc.Items {
		value, err := s.Ledger.UnitValue(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // unpriced product, values at zero
			}
			return nil, err
		}
		unitValues[it.ProductID] = value
	}

	summary := Summarize(sc, unitValues)
	return &summary, nil
}

// Discrepancies returns the session's discrepant lines.
func (s *Service) Discrepancies(ctx context.Context, id CountID) ([]StockCountItem, error) {
	sc, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return DiscrepantItems(sc), nil
}
