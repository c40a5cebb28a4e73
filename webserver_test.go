package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*WebServer, http.Handler) {
	t.Helper()
	config, err := LoadDefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	config.Strategy.StartDate = "2025-01"
	config.Server.RequestsPerMinute = 6000
	config.Server.Burst = 1000

	orch := NewOrchestrator(NewMemoryStore(), testRegistry(t), NewMemorySummaryCache(time.Minute), nil)
	ws := NewWebServer(orch, config, nil)
	ws.now = func() time.Time { return fixedNow }
	return ws, ws.Handler()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

// postReference creates the reference strategy through the API and returns its ID
func postReference(t *testing.T, h http.Handler, months int) string {
	t.Helper()
	s := referenceStrategy()
	s.ID = ""
	s.SimulationMonths = months
	rec := doRequest(t, h, http.MethodPost, "/api/strategies", s)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[StrategyConfig](t, rec).ID
}

// =============================================================================
// Strategy Endpoint Tests
// =============================================================================

func TestAPI_GetConfig(t *testing.T) {
	_, h := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	config := decodeBody[Config](t, rec)
	if config.Jurisdiction.Code != "CA" || config.Strategy.StartDate != "2025-01" {
		t.Errorf("unexpected config %+v", config.Jurisdiction)
	}
}

func TestAPI_CreateFromStrategy(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 24)

	rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	s := decodeBody[StrategyConfig](t, rec)
	if s.Status != StatusDraft || s.Kind != StrategyModifiedSmith {
		t.Errorf("expected a draft Smith strategy, got %s %s", s.Status, s.Kind)
	}
	if !s.PrimaryMortgage.Balance.Equal(d("400000")) {
		t.Errorf("primary balance: %s", s.PrimaryMortgage.Balance)
	}

	list := decodeBody[[]StrategyConfig](t, doRequest(t, h, http.MethodGet, "/api/strategies", nil))
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("list: %+v", list)
	}
}

func TestAPI_CreateFromConfigDocument(t *testing.T) {
	_, h := newTestServer(t)
	config, _ := LoadDefaultConfig()
	rec := doRequest(t, h, http.MethodPost, "/api/strategies", config)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	s := decodeBody[StrategyConfig](t, rec)
	if s.Name != config.Strategy.Name || !s.Readvanceable || len(s.AutoStopRules) != 4 {
		t.Errorf("config document not converted: %+v", s)
	}
}

func TestAPI_CreateErrors(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/strategies", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	s := referenceStrategy()
	s.SimulationMonths = 0
	s.HELOC.CreditLimit = d("-1")
	rec = doRequest(t, h, http.MethodPost, "/api/strategies", s)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid strategy: expected 422, got %d", rec.Code)
	}
	body := decodeBody[APIError](t, rec)
	if len(body.Fields) != 2 {
		t.Errorf("expected 2 field errors, got %+v", body.Fields)
	}
}

func TestAPI_UpdateStrategy(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 24)

	edit := referenceStrategy()
	edit.Name = "Renamed over HTTP"
	rec := doRequest(t, h, http.MethodPut, "/api/strategies/"+id, edit)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if s := decodeBody[StrategyConfig](t, rec); s.ID != id || s.Name != "Renamed over HTTP" {
		t.Errorf("path ID should win over body ID, got %s %q", s.ID, s.Name)
	}
}

func TestAPI_NotFound(t *testing.T) {
	_, h := newTestServer(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/strategies/missing"},
		{http.MethodPost, "/api/strategies/missing/run"},
		{http.MethodGet, "/api/strategies/missing/summary"},
		{http.MethodGet, "/api/strategies/missing/csv"},
		{http.MethodPost, "/api/strategies/missing/activate"},
	}
	for _, p := range paths {
		if rec := doRequest(t, h, p.method, p.path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", p.method, p.path, rec.Code)
		}
	}
}

// =============================================================================
// Simulation Endpoint Tests
// =============================================================================

func TestAPI_RunAndReport(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 24)

	rec := doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: status %d, body %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[APIRunResponse](t, rec)
	if !run.Success || run.MarginalRate != "0.3716" || run.Summary.ComparedScenario != ScenarioModifiedSmith {
		t.Errorf("unexpected run response %+v", run)
	}

	summary := decodeBody[SummaryReport](t, doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/summary", nil))
	if !summary.NetBenefit.Equal(run.Summary.NetBenefit) {
		t.Errorf("summary net benefit %s != run %s", summary.NetBenefit, run.Summary.NetBenefit)
	}

	series := decodeBody[APISeriesResponse](t,
		doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/series?field=total_debt,heloc_balance&field=net_monthly_cost", nil))
	if len(series.Series) != 9 {
		t.Errorf("expected 9 series, got %d", len(series.Series))
	}
	points := series.Series["modified_smith.heloc_balance"]
	if len(points) != 24 || points[0].Date != "2025-01" || points[1].Value != 1002.92 {
		t.Errorf("Smith HELOC series: %+v", points[:2])
	}

	audit := decodeBody[AuditReport](t, doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/audit", nil))
	if audit.Scenario != ScenarioModifiedSmith || len(audit.Years) != 2 {
		t.Errorf("audit: scenario %s with %d years", audit.Scenario, len(audit.Years))
	}
}

func TestAPI_RunStartMonth(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 6)

	if rec := doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run?start=2027-03", nil); rec.Code != http.StatusOK {
		t.Fatalf("run: status %d", rec.Code)
	}
	series := decodeBody[APISeriesResponse](t, doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/series?field=total_debt", nil))
	if got := series.Series["baseline.total_debt"][0].Date; got != "2027-03" {
		t.Errorf("query start should win, first month %s", got)
	}

	if rec := doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run?start=March", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed start: expected 400, got %d", rec.Code)
	}
}

func TestAPI_SeriesUnknownField(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 6)
	doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run", nil)

	if rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/series?field=shoe_size", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAPI_ExportCSV(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 12)

	// Nothing to export before the first run
	if rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/csv", nil); rec.Code != http.StatusNotFound {
		t.Errorf("before run: expected 404, got %d", rec.Code)
	}
	doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run", nil)

	rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/csv?scenario=prepay_only", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "prepay_only-2025-05-17.csv") {
		t.Errorf("content disposition %s", cd)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil || len(rows) != 13 {
		t.Errorf("expected header and 12 rows, got %d (%v)", len(rows), err)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/csv?scenario=sideways", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scenario: expected 400, got %d", rec.Code)
	}
}

func TestAPI_ExportPDF(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 12)
	doRequest(t, h, http.MethodPost, "/api/strategies/"+id+"/run", nil)

	rec := doRequest(t, h, http.MethodGet, "/api/strategies/"+id+"/pdf", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("expected a PDF document")
	}
}

// =============================================================================
// Lifecycle Endpoint Tests
// =============================================================================

func TestAPI_Lifecycle(t *testing.T) {
	_, h := newTestServer(t)
	id := postReference(t, h, 12)
	base := "/api/strategies/" + id

	if rec := doRequest(t, h, http.MethodPost, base+"/activate", nil); rec.Code != http.StatusConflict {
		t.Errorf("activate draft: expected 409, got %d", rec.Code)
	}
	doRequest(t, h, http.MethodPost, base+"/run", nil)
	if rec := doRequest(t, h, http.MethodPost, base+"/activate", nil); rec.Code != http.StatusOK {
		t.Errorf("activate: expected 200, got %d", rec.Code)
	}
	rec := doRequest(t, h, http.MethodPost, base+"/complete", nil)
	if rec.Code != http.StatusOK || decodeBody[StrategyConfig](t, rec).Status != StatusCompleted {
		t.Errorf("complete: status %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, base+"/run", nil); rec.Code != http.StatusConflict {
		t.Errorf("run completed: expected 409, got %d", rec.Code)
	}
}

func TestAPI_RateLimit(t *testing.T) {
	config, _ := LoadDefaultConfig()
	config.Server.RequestsPerMinute = 1
	config.Server.Burst = 2
	orch := NewOrchestrator(NewMemoryStore(), testRegistry(t), nil, nil)
	h := NewWebServer(orch, config, nil).Handler()

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, h, http.MethodGet, "/api/strategies", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := doRequest(t, h, http.MethodGet, "/api/strategies", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the burst is spent, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ValidationErrors{{Field: "name", Message: "required"}}, http.StatusUnprocessableEntity},
		{ErrStrategyNotFound, http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrUnknownJurisdiction, http.StatusUnprocessableEntity},
		{&SimulationError{StrategyID: "x", Cause: ErrStrategyNotFound}, http.StatusNotFound},
		{&SimulationError{StrategyID: "x", Cause: http.ErrHandlerTimeout}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
