package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"
)

// WebServer serves the strategy JSON API
type WebServer struct {
	orch    *Orchestrator
	config  *Config
	addr    string
	log     *log.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(orch *Orchestrator, config *Config, logger *log.Logger) *WebServer {
	if logger == nil {
		logger = NewSilentLogger()
	}
	perMinute := config.Server.GetRequestsPerMinute()
	return &WebServer{
		orch:    orch,
		config:  config,
		addr:    config.Server.GetAddr(),
		log:     logger,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), config.Server.GetBurst()),
		now:     time.Now,
	}
}

// APIError is the body of every failed request
type APIError struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// APIRunResponse is returned by the run endpoint
type APIRunResponse struct {
	Success      bool           `json:"success"`
	StrategyID   string         `json:"strategy_id"`
	MarginalRate string         `json:"marginal_rate"`
	Summary      *SummaryReport `json:"summary"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// APISeriesResponse carries chart series keyed "<scenario>.<field>"
type APISeriesResponse struct {
	StrategyID string                   `json:"strategy_id"`
	Series     map[string][]SeriesPoint `json:"series"`
}

// Handler builds the routed and rate-limited handler
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", ws.handleGetConfig)
	mux.HandleFunc("GET /api/strategies", ws.handleListStrategies)
	mux.HandleFunc("POST /api/strategies", ws.handleCreateStrategy)
	mux.HandleFunc("GET /api/strategies/{id}", ws.handleGetStrategy)
	mux.HandleFunc("PUT /api/strategies/{id}", ws.handleUpdateStrategy)
	mux.HandleFunc("POST /api/strategies/{id}/run", ws.handleRun)
	mux.HandleFunc("GET /api/strategies/{id}/summary", ws.handleSummary)
	mux.HandleFunc("GET /api/strategies/{id}/series", ws.handleSeries)
	mux.HandleFunc("GET /api/strategies/{id}/audit", ws.handleAudit)
	mux.HandleFunc("GET /api/strategies/{id}/csv", ws.handleExportCSV)
	mux.HandleFunc("GET /api/strategies/{id}/pdf", ws.handleExportPDF)
	mux.HandleFunc("POST /api/strategies/{id}/activate", ws.handleActivate)
	mux.HandleFunc("POST /api/strategies/{id}/complete", ws.handleComplete)

	return ws.logRequests(ws.rateLimit(mux))
}

// Start listens on the configured address and serves until ctx is cancelled
func (ws *WebServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ws.log.Info().Str("addr", listener.Addr().String()).Msg("web server listening")
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.log.Info().Msg("web server shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

func (ws *WebServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ws.limiter.Allow() {
			ws.log.Warn().Str("method", r.Method).Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).Msg("rate limit exceeded")
			sendJSONError(w, http.StatusTooManyRequests, errors.New(http.StatusText(http.StatusTooManyRequests)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (ws *WebServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ws.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("elapsed", time.Since(began)).Msg("request")
	})
}

// handleGetConfig returns the loaded configuration
func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if ws.config == nil {
		defaultConfig, err := LoadDefaultConfig()
		if err != nil {
			sendJSONError(w, http.StatusInternalServerError, err)
			return
		}
		sendJSON(w, http.StatusOK, defaultConfig)
		return
	}
	sendJSON(w, http.StatusOK, ws.config)
}

func (ws *WebServer) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	list, err := ws.orch.Strategies(r.Context())
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleCreateStrategy accepts either a full Config document or a bare strategy
func (ws *WebServer) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeStrategyBody(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err)
		return
	}
	s, err := ws.orch.CreateStrategy(r.Context(), cfg)
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusCreated, s)
}

func (ws *WebServer) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeStrategyBody(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err)
		return
	}
	cfg.ID = r.PathValue("id")
	s, err := ws.orch.UpdateStrategy(r.Context(), cfg)
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, s)
}

// decodeStrategyBody reads a request body holding either a Config (with a
// "strategy" section) or a StrategyConfig
func decodeStrategyBody(r *http.Request) (*StrategyConfig, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	data, _ := json.Marshal(raw)

	if _, ok := raw["accounts"]; ok {
		var config Config
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return config.ToStrategy(), nil
	}

	var s StrategyConfig
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}
	return &s, nil
}

func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := ws.orch.Strategy(r.Context(), r.PathValue("id"))
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, s)
}

// handleRun simulates the strategy from ?start=YYYY-MM, the configured start
// date, or the current month, in that order
func (ws *WebServer) handleRun(w http.ResponseWriter, r *http.Request) {
	start, err := ws.startMonth(r.URL.Query().Get("start"))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err)
		return
	}

	result, err := ws.orch.Run(r.Context(), r.PathValue("id"), start)
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, APIRunResponse{
		Success:      true,
		StrategyID:   result.StrategyID,
		MarginalRate: result.MarginalRate.String(),
		Summary:      result.Summary,
		Warnings:     result.Warnings,
	})
}

func (ws *WebServer) startMonth(query string) (time.Time, error) {
	if query != "" {
		t, err := parseMonth(query)
		if err != nil {
			return time.Time{}, fmt.Errorf("start: %w", err)
		}
		return t, nil
	}
	if ws.config != nil {
		return ws.config.Strategy.GetStartDate(ws.now())
	}
	return firstOfMonth(ws.now()), nil
}

func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := ws.orch.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, report)
}

// handleSeries returns chart series; ?field= may repeat or be comma separated
func (ws *WebServer) handleSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ledgers, err := ws.orch.Ledgers(r.Context(), id)
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}

	var fields []string
	for _, f := range r.URL.Query()["field"] {
		for _, part := range strings.Split(f, ",") {
			if part = strings.TrimSpace(part); part != "" {
				fields = append(fields, part)
			}
		}
	}

	series, err := BuildSeriesSet(ledgers, fields...)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err)
		return
	}
	sendJSON(w, http.StatusOK, APISeriesResponse{StrategyID: id, Series: series})
}

// scenarioLedger loads the ledger named by ?scenario=, defaulting to the
// strategy's most complete scenario
func (ws *WebServer) scenarioLedger(r *http.Request) (*StrategyConfig, ScenarioKind, []LedgerEntry, int, error) {
	id := r.PathValue("id")
	s, err := ws.orch.Strategy(r.Context(), id)
	if err != nil {
		return nil, 0, nil, statusFor(err), err
	}

	scenarios := s.Kind.Scenarios()
	scenario := scenarios[len(scenarios)-1]
	if name := r.URL.Query().Get("scenario"); name != "" {
		scenario, err = ParseScenarioKind(name)
		if err != nil {
			return nil, 0, nil, http.StatusBadRequest, err
		}
	}

	ledgers, err := ws.orch.Ledgers(r.Context(), id)
	if err != nil {
		return nil, 0, nil, statusFor(err), err
	}
	entries, ok := ledgers[scenario]
	if !ok {
		return nil, 0, nil, http.StatusNotFound, fmt.Errorf("no %s ledger for strategy %s; run it first", scenario, id)
	}
	return s, scenario, entries, http.StatusOK, nil
}

func (ws *WebServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	s, scenario, entries, status, err := ws.scenarioLedger(r)
	if err != nil {
		sendJSONError(w, status, err)
		return
	}
	sendJSON(w, http.StatusOK, BuildAuditReport(s, scenario, entries))
}

// handleExportCSV streams a scenario ledger as CSV
func (ws *WebServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s, scenario, entries, status, err := ws.scenarioLedger(r)
	if err != nil {
		sendJSONError(w, status, err)
		return
	}
	filename := fmt.Sprintf("smith-%s-%s-%s.csv", s.ID, scenario, ws.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := WriteLedgerCSV(w, entries); err != nil {
		ws.log.Error().Str("strategy", s.ID).Err(err).Msg("csv export failed")
	}
}

// handleExportPDF returns the interest deduction audit as a PDF
func (ws *WebServer) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s, scenario, entries, status, err := ws.scenarioLedger(r)
	if err != nil {
		sendJSONError(w, status, err)
		return
	}

	summary, err := ws.orch.Summary(r.Context(), s.ID)
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	data, err := GenerateAuditPDF(s, BuildAuditReport(s, scenario, entries), summary)
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, fmt.Errorf("generating PDF: %w", err))
		return
	}

	filename := fmt.Sprintf("smith-audit-%s-%s.pdf", s.ID, scenario)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

func (ws *WebServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	s, err := ws.orch.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, s)
}

func (ws *WebServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	s, err := ws.orch.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		sendJSONError(w, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, s)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var verrs ValidationErrors
	var simErr *SimulationError
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStrategyNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownJurisdiction):
		return http.StatusUnprocessableEntity
	case errors.As(err, &simErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendJSONError sends a JSON error response
func sendJSONError(w http.ResponseWriter, status int, err error) {
	body := APIError{Error: err.Error()}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = verrs
	}
	sendJSON(w, status, body)
}
