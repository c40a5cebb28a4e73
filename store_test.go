package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// Both store implementations must behave identically, so every test runs
// against each of them.

func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	factories := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"sqlite", func(t *testing.T) Store {
			st, err := OpenSQLiteStore(":memory:", NewSilentLogger())
			if err != nil {
				t.Fatalf("opening sqlite: %v", err)
			}
			return st
		}},
	}

	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			st := f.open(t)
			defer st.Close()
			fn(t, st)
		})
	}
}

func storedReference(t *testing.T, st Store, id string, created time.Time) *StrategyConfig {
	t.Helper()
	s := referenceStrategy()
	s.ID = id
	s.CreatedAt = created
	s.UpdatedAt = created
	if err := st.SaveStrategy(context.Background(), s); err != nil {
		t.Fatalf("saving %s: %v", id, err)
	}
	return s
}

func assertLedgersEqual(t *testing.T, want, got []LedgerEntry) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := &want[i], &got[i]
		if w.Month != g.Month || !w.CalendarMonth.Equal(g.CalendarMonth) ||
			w.StrategyStopped != g.StrategyStopped || w.StopReason != g.StopReason {
			t.Fatalf("entry %d header differs: %+v vs %+v", i, w, g)
		}
		for _, f := range ledgerMoneyFields {
			if !f.Ref(w).Equal(*f.Ref(g)) {
				t.Fatalf("entry %d %s: expected %s, got %s", i, f.Name, f.Ref(w), f.Ref(g))
			}
		}
	}
}

// =============================================================================
// Strategy Persistence Tests
// =============================================================================

func TestStore_StrategyNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if _, err := st.Strategy(ctx, "missing"); !errors.Is(err, ErrStrategyNotFound) {
			t.Errorf("expected ErrStrategyNotFound, got %v", err)
		}
		if _, err := st.Ledger(ctx, "missing", ScenarioBaseline); !errors.Is(err, ErrStrategyNotFound) {
			t.Errorf("ledger of a missing strategy: expected ErrStrategyNotFound, got %v", err)
		}
		if _, err := st.Ledgers(ctx, "missing"); !errors.Is(err, ErrStrategyNotFound) {
			t.Errorf("ledgers of a missing strategy: expected ErrStrategyNotFound, got %v", err)
		}
	})
}

func TestStore_SaveAndLoadStrategy(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
		want := storedReference(t, st, "s-1", created)

		got, err := st.Strategy(context.Background(), "s-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != want.Name || got.Kind != want.Kind || got.Status != want.Status {
			t.Errorf("strategy header differs: %+v", got)
		}
		if !got.PrimaryMortgage.Balance.Equal(want.PrimaryMortgage.Balance) ||
			!got.HELOC.CreditLimit.Equal(want.HELOC.CreditLimit) ||
			!got.MonthlyRentalIncome.Equal(want.MonthlyRentalIncome) {
			t.Error("monetary fields did not survive the round trip")
		}
		if len(got.AutoStopRules) != 1 || got.AutoStopRules[0].Kind != RulePrimaryPaidOff {
			t.Errorf("auto-stop rules did not survive the round trip: %+v", got.AutoStopRules)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("created_at: expected %s, got %s", created, got.CreatedAt)
		}
	})
}

func TestStore_SaveStrategyUpdatesInPlace(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		s := storedReference(t, st, "s-1", time.Now().UTC())
		s.Name = "Renamed"
		s.Status = StatusActive
		if err := st.SaveStrategy(ctx, s); err != nil {
			t.Fatal(err)
		}

		all, err := st.Strategies(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 || all[0].Name != "Renamed" || all[0].Status != StatusActive {
			t.Errorf("expected one renamed active strategy, got %+v", all)
		}
	})
}

func TestStore_StrategiesOrderedByCreation(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		storedReference(t, st, "third", base.Add(2*time.Hour))
		storedReference(t, st, "first", base)
		storedReference(t, st, "second", base.Add(time.Hour))

		all, err := st.Strategies(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, s := range all {
			ids = append(ids, s.ID)
		}
		if len(ids) != 3 || ids[0] != "first" || ids[1] != "second" || ids[2] != "third" {
			t.Errorf("expected creation order, got %v", ids)
		}
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	st := NewMemoryStore()
	storedReference(t, st, "s-1", time.Now())

	got, _ := st.Strategy(context.Background(), "s-1")
	got.Name = "changed"
	got.PrimaryMortgage.TermMonths = 1

	again, _ := st.Strategy(context.Background(), "s-1")
	if again.Name == "changed" || again.PrimaryMortgage.TermMonths == 1 {
		t.Error("mutating a returned strategy should not change the stored copy")
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	st := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.SaveStrategy(ctx, referenceStrategy()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// Ledger Persistence Tests
// =============================================================================

func TestStore_ReplaceLedgersRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		s := storedReference(t, st, "reference", time.Now().UTC())
		s.SimulationMonths = 24
		s.AutoStopRules = []AutoStopRule{{Kind: RuleMaxMonths, Threshold: d("18"), Enabled: true}}
		ledgers := RunScenarios(referenceInput(s))

		if err := st.ReplaceLedgers(ctx, s.ID, ledgers); err != nil {
			t.Fatalf("replace: %v", err)
		}

		loaded, err := st.Ledgers(ctx, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(loaded) != 3 {
			t.Fatalf("expected 3 scenarios, got %d", len(loaded))
		}
		for _, scenario := range AllScenarios {
			assertLedgersEqual(t, ledgers[scenario], loaded[scenario])
		}

		last := loaded[ScenarioModifiedSmith][len(loaded[ScenarioModifiedSmith])-1]
		if !last.StrategyStopped || last.StopReason == "" || last.Month != 18 {
			t.Errorf("stop marker lost: month %d stopped=%v reason=%q", last.Month, last.StrategyStopped, last.StopReason)
		}
	})
}

func TestStore_ReplaceLedgersDropsMissingScenarios(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		s := storedReference(t, st, "reference", time.Now().UTC())
		s.SimulationMonths = 12
		ledgers := RunScenarios(referenceInput(s))
		if err := st.ReplaceLedgers(ctx, s.ID, ledgers); err != nil {
			t.Fatal(err)
		}

		// A later run of a baseline strategy only produces two scenarios
		delete(ledgers, ScenarioModifiedSmith)
		if err := st.ReplaceLedgers(ctx, s.ID, ledgers); err != nil {
			t.Fatal(err)
		}
		smith, err := st.Ledger(ctx, s.ID, ScenarioModifiedSmith)
		if err != nil {
			t.Fatal(err)
		}
		if len(smith) != 0 {
			t.Errorf("stale Smith ledger should be gone, got %d entries", len(smith))
		}

		loaded, _ := st.Ledgers(ctx, s.ID)
		if _, ok := loaded[ScenarioModifiedSmith]; ok || len(loaded) != 2 {
			t.Errorf("Ledgers should omit empty scenarios, got %d", len(loaded))
		}
	})
}

func TestStore_LedgersNeverMixRuns(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		s := storedReference(t, st, "reference", time.Now().UTC())

		s.SimulationMonths = 6
		short := RunScenarios(referenceInput(s))
		s.SimulationMonths = 12
		long := RunScenarios(referenceInput(s))
		if err := st.ReplaceLedgers(ctx, s.ID, short); err != nil {
			t.Fatal(err)
		}

		done := make(chan struct{})
		var wg sync.WaitGroup
		defer func() {
			close(done)
			wg.Wait()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			versions := []map[ScenarioKind][]LedgerEntry{long, short}
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				if err := st.ReplaceLedgers(ctx, s.ID, versions[i%2]); err != nil {
					t.Errorf("replace: %v", err)
					return
				}
			}
		}()

		for i := 0; i < 300; i++ {
			loaded, err := st.Ledgers(ctx, s.ID)
			if err != nil {
				t.Fatal(err)
			}
			n := len(loaded[ScenarioBaseline])
			if n != 6 && n != 12 {
				t.Fatalf("read %d: baseline has %d months", i, n)
			}
			for scenario, entries := range loaded {
				if len(entries) != n {
					t.Fatalf("read %d: %s has %d months but baseline has %d", i, scenario, len(entries), n)
				}
			}
		}
	})
}

func TestSQLiteStore_FailedReplaceKeepsPreviousLedgers(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLiteStore(":memory:", NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s := storedReference(t, st, "reference", time.Now().UTC())
	s.SimulationMonths = 6
	previous := RunScenarios(referenceInput(s))
	if err := st.ReplaceLedgers(ctx, s.ID, previous); err != nil {
		t.Fatal(err)
	}

	// A repeated month violates the (strategy, month, scenario) key part way through the insert
	s.SimulationMonths = 12
	broken := RunScenarios(referenceInput(s))
	broken[ScenarioModifiedSmith] = append(broken[ScenarioModifiedSmith], broken[ScenarioModifiedSmith][3])
	if err := st.ReplaceLedgers(ctx, s.ID, broken); err == nil {
		t.Fatal("duplicate months should fail the replace")
	}

	loaded, err := st.Ledgers(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected the 3 previous scenarios, got %d", len(loaded))
	}
	for _, scenario := range AllScenarios {
		assertLedgersEqual(t, previous[scenario], loaded[scenario])
	}
}

func TestStore_ReplaceLedgersUnknownStrategy(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		err := st.ReplaceLedgers(context.Background(), "ghost", map[ScenarioKind][]LedgerEntry{})
		if !errors.Is(err, ErrStrategyNotFound) {
			t.Errorf("expected ErrStrategyNotFound, got %v", err)
		}
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smith.db")
	ctx := context.Background()

	st, err := OpenSQLiteStore(path, NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}
	s := storedReference(t, st, "durable", time.Now().UTC())
	s.SimulationMonths = 6
	ledgers := RunScenarios(referenceInput(s))
	if err := st.ReplaceLedgers(ctx, s.ID, ledgers); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLiteStore(path, NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Ledger(ctx, "durable", ScenarioPrepayOnly)
	if err != nil {
		t.Fatal(err)
	}
	assertLedgersEqual(t, ledgers[ScenarioPrepayOnly], got)
}
