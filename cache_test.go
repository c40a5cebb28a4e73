package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"
)

func referenceSummary(t *testing.T) *SummaryReport {
	t.Helper()
	s := referenceStrategy()
	s.SimulationMonths = 24
	return Summarize(RunScenarios(referenceInput(s)), s.SimulationMonths)
}

func TestMemorySummaryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySummaryCache(time.Minute)

	if _, ok := c.Get(ctx, "reference"); ok {
		t.Fatal("empty cache should miss")
	}

	report := referenceSummary(t)
	if err := c.Set(ctx, "reference", report); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get(ctx, "reference")
	if !ok || !got.NetBenefit.Equal(report.NetBenefit) || len(got.Scenarios) != len(report.Scenarios) {
		t.Fatal("expected the stored report back")
	}
	if _, ok := c.Get(ctx, "other"); ok {
		t.Error("entries are keyed by strategy ID")
	}

	if err := c.Invalidate(ctx, "reference"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "reference"); ok {
		t.Error("invalidated entry should miss")
	}
	// Invalidating an absent key is not an error
	if err := c.Invalidate(ctx, "never-set"); err != nil {
		t.Errorf("invalidate of a missing key: %v", err)
	}
}

func TestMemorySummaryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySummaryCache(time.Minute)
	report := referenceSummary(t)
	want := report.NetBenefit
	if err := c.Set(ctx, "reference", report); err != nil {
		t.Fatal(err)
	}

	// Changes to the caller's report after Set do not reach the cache
	report.NetBenefit = d("1")
	got, _ := c.Get(ctx, "reference")
	if !got.NetBenefit.Equal(want) {
		t.Fatalf("cached net benefit changed to %s", got.NetBenefit)
	}

	got.NetBenefit = d("2")
	got.Scenarios[ScenarioModifiedSmith].Months = 1
	got.Scenarios[ScenarioModifiedSmith].Final.TotalDebt = d("3")
	delete(got.Scenarios, ScenarioBaseline)

	again, _ := c.Get(ctx, "reference")
	if !again.NetBenefit.Equal(want) || len(again.Scenarios) != 3 {
		t.Errorf("mutating a returned report changed the cache: net %s, %d scenarios", again.NetBenefit, len(again.Scenarios))
	}
	smith := again.Scenarios[ScenarioModifiedSmith]
	if smith.Months == 1 || smith.Final.TotalDebt.Equal(d("3")) {
		t.Error("scenario outcomes should be copied too")
	}
}

func TestMemorySummaryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySummaryCache(20 * time.Millisecond)
	if err := c.Set(ctx, "reference", referenceSummary(t)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get(ctx, "reference"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedisSummaryKey(t *testing.T) {
	if got := redisSummaryKey("abc"); got != "smith:summary:abc" {
		t.Errorf("unexpected key %q", got)
	}
}

// The Redis cache stores summaries as JSON, so a report must survive encoding
// with its scenario-keyed map intact.
func TestSummaryReport_JSONPayload(t *testing.T) {
	report := referenceSummary(t)
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}

	var decoded SummaryReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ComparedScenario != ScenarioModifiedSmith || len(decoded.Scenarios) != 3 {
		t.Fatalf("decoded report lost its scenarios: %+v", decoded)
	}
	if !decoded.NetBenefit.Equal(report.NetBenefit) || decoded.MonthsAccelerated != report.MonthsAccelerated {
		t.Errorf("decoded totals differ: %s vs %s", decoded.NetBenefit, report.NetBenefit)
	}
	smith := decoded.Scenarios[ScenarioModifiedSmith]
	if smith == nil || smith.Final == nil || smith.Final.Month != 24 {
		t.Errorf("Smith outcome did not survive encoding: %+v", smith)
	}
}

// Runs only when a Redis server is available, e.g. SMITH_TEST_REDIS_ADDR=localhost:6379
func TestRedisSummaryCache(t *testing.T) {
	addr := os.Getenv("SMITH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SMITH_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisSummaryCache(addr, time.Minute)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	id := "test-" + time.Now().Format("150405.000000")
	defer c.Invalidate(ctx, id)

	report := referenceSummary(t)
	if err := c.Set(ctx, id, report); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get(ctx, id)
	if !ok || !got.NetBenefit.Equal(report.NetBenefit) {
		t.Fatalf("expected cached report, got %v %v", got, ok)
	}
	if err := c.Invalidate(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, id); ok {
		t.Error("invalidated entry should miss")
	}
}
