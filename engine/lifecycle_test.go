package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tally/count-engine/engine"
)

// advance drives a fresh session to the given status.
func advance(t *testing.T, svc *engine.Service, id engine.CountID, to engine.Status) {
	t.Helper()
	ctx := context.Background()

	steps := map[engine.Status][]func(context.Context, engine.CountID) (*engine.StockCount, error){
		engine.StatusInProgress: {svc.Start},
		engine.StatusCompleted:  {svc.Start, svc.Complete},
		engine.StatusValidated:  {svc.Start, svc.Complete, svc.Validate},
	}
	for _, step := range steps[to] {
		if _, err := step(ctx, id); err != nil {
			t.Fatalf("advancing to %s: %v", to, err)
		}
	}
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestLifecycle_TransitionTable(t *testing.T) {
	type op struct {
		name string
		call func(*engine.Service, context.Context, engine.CountID) (*engine.StockCount, error)
	}
	start := op{"start", func(s *engine.Service, ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
		return s.Start(ctx, id)
	}}
	complete := op{"complete", func(s *engine.Service, ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
		return s.Complete(ctx, id)
	}}
	validate := op{"validate", func(s *engine.Service, ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
		return s.Validate(ctx, id)
	}}
	cancel := op{"cancel", func(s *engine.Service, ctx context.Context, id engine.CountID) (*engine.StockCount, error) {
		return s.Cancel(ctx, id)
	}}

	tests := []struct {
		name    string
		from    engine.Status
		op      op
		wantTo  engine.Status
		wantErr bool
	}{
		{"start from planned", engine.StatusPlanned, start, engine.StatusInProgress, false},
		{"complete from in_progress", engine.StatusInProgress, complete, engine.StatusCompleted, false},
		{"validate from completed", engine.StatusCompleted, validate, engine.StatusValidated, false},
		{"cancel from planned", engine.StatusPlanned, cancel, engine.StatusCancelled, false},
		{"cancel from in_progress", engine.StatusInProgress, cancel, engine.StatusCancelled, false},

		{"start from in_progress", engine.StatusInProgress, start, "", true},
		{"start from completed", engine.StatusCompleted, start, "", true},
		{"complete from planned", engine.StatusPlanned, complete, "", true},
		{"validate from planned", engine.StatusPlanned, validate, "", true},
		{"validate from in_progress", engine.StatusInProgress, validate, "", true},
		{"cancel from completed", engine.StatusCompleted, cancel, "", true},
		{"start from validated", engine.StatusValidated, start, "", true},
		{"cancel from validated", engine.StatusValidated, cancel, "", true},
		{"validate twice", engine.StatusValidated, validate, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			sc := newSession(t, svc)
			advance(t, svc, sc.ID, tt.from)

			got, err := tt.op.call(svc, context.Background(), sc.ID)
			if tt.wantErr {
				if !errors.Is(err, engine.ErrInvalidState) {
					t.Fatalf("expected ErrInvalidState, got %v", err)
				}
				// No side effect: status unchanged.
				loaded, _ := svc.GetSession(context.Background(), sc.ID)
				if loaded.Status != tt.from {
					t.Errorf("status changed to %s despite error", loaded.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.wantTo {
				t.Errorf("returned status %s, want %s", got.Status, tt.wantTo)
			}
		})
	}
}

func TestLifecycle_StartAcceptsDraftSynonym(t *testing.T) {
	svc, _ := newTestService()
	sc := newSession(t, svc)

	// Legacy rows use draft instead of planned.
	if err := svc.Store.SetStatus(context.Background(), sc.ID, []engine.Status{engine.StatusPlanned}, engine.StatusDraft); err != nil {
		t.Fatalf("seeding draft: %v", err)
	}

	got, err := svc.Start(context.Background(), sc.ID)
	if err != nil {
		t.Fatalf("start from draft: %v", err)
	}
	if got.Status != engine.StatusInProgress {
		t.Errorf("got %s, want in_progress", got.Status)
	}
}

// =============================================================================
// VALIDATION COMMIT
// =============================================================================

func TestValidate_CommitsDiscrepanciesToLedger(t *testing.T) {
	// GIVEN: A completed session with one deficit, one surplus, one match
	svc, ledger := newTestService()
	seedProduct(ledger, "prod-a", "", "2.50", 10)
	seedProduct(ledger, "prod-b", "", "1.00", 5)
	seedProduct(ledger, "prod-c", "", "4.00", 7)

	ctx := context.Background()
	sc := newSession(t, svc)
	mustAdd := func(p engine.ProductID, expected, counted int64) {
		if _, err := svc.AddItem(ctx, sc.ID, p, expected, counted, ""); err != nil {
			t.Fatalf("add %s: %v", p, err)
		}
	}
	mustAdd("prod-a", 10, 8)  // deficit -2
	mustAdd("prod-b", 5, 9)   // surplus +4
	mustAdd("prod-c", 7, 7)   // match
	advance(t, svc, sc.ID, engine.StatusCompleted)

	// WHEN: The session is validated
	got, err := svc.Validate(ctx, sc.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Status != engine.StatusValidated {
		t.Fatalf("status %s, want validated", got.Status)
	}

	// THEN: On-hand now equals the counted quantity for each discrepant
	// product, and the matched product saw no movement.
	for _, tc := range []struct {
		product engine.ProductID
		want    int64
	}{{"prod-a", 8}, {"prod-b", 9}, {"prod-c", 7}} {
		qty, err := ledger.OnHandQuantity(ctx, testWarehouse, tc.product)
		if err != nil {
			t.Fatalf("on-hand %s: %v", tc.product, err)
		}
		if qty != tc.want {
			t.Errorf("on-hand for %s = %d, want %d", tc.product, qty, tc.want)
		}
	}

	movements := ledger.Movements()
	if len(movements) != 2 {
		t.Fatalf("expected 2 adjustment movements, got %d", len(movements))
	}
	for _, m := range movements {
		if m.Reference != string(sc.ID) {
			t.Errorf("movement reference %q, want session id", m.Reference)
		}
	}
}

func TestValidate_FromInProgress_NoLedgerWrites(t *testing.T) {
	svc, ledger := newTestService()
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 3, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	advance(t, svc, sc.ID, engine.StatusInProgress)

	_, err := svc.Validate(ctx, sc.ID)
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if n := len(ledger.Movements()); n != 0 {
		t.Errorf("expected no ledger writes, got %d movements", n)
	}
}

func TestValidate_LedgerFailureRollsBack(t *testing.T) {
	// GIVEN: A completed session whose ledger will reject the adjustment
	svc, ledger := newTestService()
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 3, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	advance(t, svc, sc.ID, engine.StatusCompleted)
	ledger.FailNext = errors.New("ledger unavailable")

	// WHEN: Validation runs
	_, err := svc.Validate(ctx, sc.ID)

	// THEN: The failure surfaces as LedgerError and the session stays
	// completed with no movements recorded.
	if !errors.Is(err, engine.ErrLedgerError) {
		t.Fatalf("expected ErrLedgerError, got %v", err)
	}
	loaded, _ := svc.GetSession(ctx, sc.ID)
	if loaded.Status != engine.StatusCompleted {
		t.Errorf("status %s after failed validate, want completed", loaded.Status)
	}
	if n := len(ledger.Movements()); n != 0 {
		t.Errorf("expected no movements, got %d", n)
	}

	// A retry succeeds once the ledger recovers.
	if _, err := svc.Validate(ctx, sc.ID); err != nil {
		t.Fatalf("retry validate: %v", err)
	}
}

func TestValidate_NoDiscrepancies_NoMovements(t *testing.T) {
	svc, ledger := newTestService()
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 10, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	advance(t, svc, sc.ID, engine.StatusCompleted)

	if _, err := svc.Validate(ctx, sc.ID); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if n := len(ledger.Movements()); n != 0 {
		t.Errorf("matched count should write nothing, got %d movements", n)
	}
}

func TestValidate_ConcurrentCalls_ExactlyOneWins(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sc := newSession(t, svc)
	if _, err := svc.AddItem(ctx, sc.ID, "prod-a", 10, 3, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	advance(t, svc, sc.ID, engine.StatusCompleted)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, sc.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, engine.ErrInvalidState):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d (losses %d)", wins, losses)
	}
}
