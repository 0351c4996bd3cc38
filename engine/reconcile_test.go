package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tally/count-engine/engine"
)

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummary_MixedMatchAndDeficit(t *testing.T) {
	// GIVEN: A session with one matched line (10/10) and one deficit (5/3)
	svc, ledger := newTestService()
	seedProduct(ledger, "prod-a", "", "2.50", 10)
	seedProduct(ledger, "prod-b", "", "4.00", 5)
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 10, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddItem(ctx, sc.ID, "prod-b", 5, 3, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	// WHEN: The summary is computed
	summary, err := svc.Summary(ctx, sc.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	// THEN: Counts, rate, quantities and values all line up
	if summary.TotalItems != 2 {
		t.Errorf("total items %d, want 2", summary.TotalItems)
	}
	if summary.Statistics.ItemsMatched != 1 || summary.Statistics.ItemsDeficit != 1 || summary.Statistics.ItemsSurplus != 0 {
		t.Errorf("statistics %+v, want matched=1 deficit=1 surplus=0", summary.Statistics)
	}
	if summary.Statistics.ItemsWithDiscrepancy != 1 {
		t.Errorf("discrepancy count %d, want 1", summary.Statistics.ItemsWithDiscrepancy)
	}
	if summary.Statistics.MatchRate != 50 {
		t.Errorf("match rate %v, want 50", summary.Statistics.MatchRate)
	}
	if summary.Quantities.TotalExpected != 15 || summary.Quantities.TotalCounted != 13 {
		t.Errorf("quantities %+v, want expected=15 counted=13", summary.Quantities)
	}
	if summary.Quantities.NetDifference != -2 {
		t.Errorf("net difference %d, want -2", summary.Quantities.NetDifference)
	}

	// 10*2.50 + 5*4.00 = 45.00 expected, 10*2.50 + 3*4.00 = 37.00 counted
	wantExpected := mustDecimal("45")
	wantCounted := mustDecimal("37")
	wantDiff := mustDecimal("-8")
	if !summary.Values.TotalExpectedValue.Equal(wantExpected) {
		t.Errorf("expected value %s, want %s", summary.Values.TotalExpectedValue, wantExpected)
	}
	if !summary.Values.TotalCountedValue.Equal(wantCounted) {
		t.Errorf("counted value %s, want %s", summary.Values.TotalCountedValue, wantCounted)
	}
	if !summary.Values.ValueDifference.Equal(wantDiff) {
		t.Errorf("value difference %s, want %s", summary.Values.ValueDifference, wantDiff)
	}
}

func TestSummary_EmptySession(t *testing.T) {
	svc, _ := newTestService()
	sc := newSession(t, svc)

	summary, err := svc.Summary(context.Background(), sc.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// No lines means a zero match rate, not a division by zero.
	if summary.TotalItems != 0 || summary.Statistics.MatchRate != 0 {
		t.Errorf("empty session summary %+v, want all zero", summary)
	}
	if !summary.Values.ValueDifference.Equal(decimal.Zero) {
		t.Errorf("value difference %s, want 0", summary.Values.ValueDifference)
	}
}

func TestSummary_UnpricedProductValuesAtZero(t *testing.T) {
	svc, ledger := newTestService()
	seedProduct(ledger, "priced", "", "3", 4)
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "priced", 4, 4, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	// A line can reference a product the catalog no longer knows. The
	// quantities still aggregate; only its value contribution is zero.
	if _, err := svc.AddItem(ctx, sc.ID, "ghost", 2, 1, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	summary, err := svc.Summary(ctx, sc.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Quantities.TotalExpected != 6 || summary.Quantities.TotalCounted != 5 {
		t.Errorf("quantities %+v, want expected=6 counted=5", summary.Quantities)
	}
	if !summary.Values.TotalExpectedValue.Equal(mustDecimal("12")) {
		t.Errorf("expected value %s, want 12", summary.Values.TotalExpectedValue)
	}
}

func TestSummary_UnknownSession(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Summary(context.Background(), "nope"); !engine.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// =============================================================================
// DISCREPANCIES
// =============================================================================

func TestDiscrepancies_ReturnsOnlyNonzeroDifferences(t *testing.T) {
	svc, ledger := newTestService()
	seedProduct(ledger, "prod-a", "", "1", 0)
	seedProduct(ledger, "prod-b", "", "1", 0)
	seedProduct(ledger, "prod-c", "", "1", 0)
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 10, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddItem(ctx, sc.ID, "prod-b", 5, 8, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddItem(ctx, sc.ID, "prod-c", 7, 2, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := svc.Discrepancies(ctx, sc.ID)
	if err != nil {
		t.Fatalf("discrepancies: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d discrepant lines, want 2", len(items))
	}
	if items[0].ProductID != "prod-b" || items[0].Difference() != 3 {
		t.Errorf("first line %s diff=%d, want prod-b +3", items[0].ProductID, items[0].Difference())
	}
	if items[1].ProductID != "prod-c" || items[1].Difference() != -5 {
		t.Errorf("second line %s diff=%d, want prod-c -5", items[1].ProductID, items[1].Difference())
	}
}

func TestDiscrepancies_NoneWhenAllMatch(t *testing.T) {
	svc, ledger := newTestService()
	seedProduct(ledger, "prod-a", "", "1", 0)
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 3, 3, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := svc.Discrepancies(ctx, sc.ID)
	if err != nil {
		t.Fatalf("discrepancies: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d lines, want none", len(items))
	}
}
