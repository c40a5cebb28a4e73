package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a lifecycle change is not allowed from the current status
var ErrInvalidTransition = errors.New("invalid status transition")

// SimulationError reports a failed run. Ledgers committed by earlier runs are untouched.
type SimulationError struct {
	StrategyID string
	Cause      error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation of strategy %s failed: %v", e.StrategyID, e.Cause)
}

func (e *SimulationError) Unwrap() error {
	return e.Cause
}

// RunResult is what one orchestrated run produced
type RunResult struct {
	StrategyID   string                         `json:"strategy_id"`
	Ledgers      map[ScenarioKind][]LedgerEntry `json:"ledgers"`
	Summary      *SummaryReport                 `json:"summary"`
	MarginalRate decimal.Decimal                `json:"marginal_rate"`
	Warnings     []string                       `json:"warnings,omitempty"`
}

// Orchestrator owns strategy configurations, runs their simulations and
// persists the resulting ledgers
type Orchestrator struct {
	store         Store
	jurisdictions *JurisdictionRegistry
	cache         SummaryCache
	log           *log.Logger
	now           func() time.Time
	engine        func(SimulationInput) map[ScenarioKind][]LedgerEntry
}

// NewOrchestrator wires the orchestrator. cache may be nil.
func NewOrchestrator(store Store, jurisdictions *JurisdictionRegistry, cache SummaryCache, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &Orchestrator{
		store:         store,
		jurisdictions: jurisdictions,
		cache:         cache,
		log:           logger,
		now:           time.Now,
		engine:        RunScenarios,
	}
}

// CreateStrategy validates and stores a new draft strategy, assigning its ID
func (o *Orchestrator) CreateStrategy(ctx context.Context, cfg *StrategyConfig) (*StrategyConfig, error) {
	s := cfg.Clone()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = StatusDraft
	s.Summary = StrategySummary{}
	s.LastSimulatedAt = nil
	now := o.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := ValidateStrategy(s, o.jurisdictions); err != nil {
		return nil, err
	}
	if err := o.store.SaveStrategy(ctx, s); err != nil {
		return nil, fmt.Errorf("saving strategy: %w", err)
	}
	o.log.Info().Str("strategy", s.ID).Str("kind", s.Kind.String()).Msg("strategy created")
	return s, nil
}

// UpdateStrategy saves edits to an existing strategy. Lifecycle fields and
// cached results are kept from the stored copy.
func (o *Orchestrator) UpdateStrategy(ctx context.Context, cfg *StrategyConfig) (*StrategyConfig, error) {
	existing, err := o.store.Strategy(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: strategy %s is completed", ErrInvalidTransition, cfg.ID)
	}

	s := cfg.Clone()
	s.Status = existing.Status
	s.Summary = existing.Summary
	s.LastSimulatedAt = existing.LastSimulatedAt
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = o.now().UTC()

	if err := ValidateStrategy(s, o.jurisdictions); err != nil {
		return nil, err
	}
	if err := o.store.SaveStrategy(ctx, s); err != nil {
		return nil, fmt.Errorf("saving strategy: %w", err)
	}
	return s, nil
}

// Strategy returns a stored strategy
func (o *Orchestrator) Strategy(ctx context.Context, id string) (*StrategyConfig, error) {
	return o.store.Strategy(ctx, id)
}

// Strategies lists every stored strategy
func (o *Orchestrator) Strategies(ctx context.Context) ([]*StrategyConfig, error) {
	return o.store.Strategies(ctx)
}

// Run simulates every scenario for the strategy starting at the given month,
// then replaces its stored ledgers in one atomic write. Nothing is written if
// the simulation fails or ctx is cancelled first.
func (o *Orchestrator) Run(ctx context.Context, id string, start time.Time) (*RunResult, error) {
	s, err := o.store.Strategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: strategy %s is completed", ErrInvalidTransition, id)
	}
	if err := ValidateStrategy(s, o.jurisdictions); err != nil {
		return nil, err
	}

	rate, warning, err := o.jurisdictions.MarginalRateFor(s.Jurisdiction, s.Province, s.HouseholdIncome)
	if err != nil {
		return nil, err
	}
	j, err := o.jurisdictions.Lookup(s.Jurisdiction)
	if err != nil {
		return nil, err
	}

	result := &RunResult{StrategyID: s.ID, MarginalRate: rate}
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	in := SimulationInput{
		Strategy:           s,
		Start:              firstOfMonth(start),
		MarginalRate:       rate,
		InterestDeductible: j.InterestDeductible,
	}

	began := time.Now()
	o.log.Info().Str("strategy", s.ID).Str("kind", s.Kind.String()).Int("months", s.SimulationMonths).Msg("simulation started")

	ledgers, err := runGuarded(o.engine, in)
	if err != nil {
		o.log.Error().Str("strategy", s.ID).Err(err).Msg("simulation failed")
		return nil, &SimulationError{StrategyID: s.ID, Cause: err}
	}

	// Last point at which a caller can abandon the run
	if err := ctx.Err(); err != nil {
		return nil, &SimulationError{StrategyID: s.ID, Cause: err}
	}
	if err := o.store.ReplaceLedgers(ctx, s.ID, ledgers); err != nil {
		o.log.Error().Str("strategy", s.ID).Err(err).Msg("ledger write failed")
		return nil, &SimulationError{StrategyID: s.ID, Cause: err}
	}

	summary := Summarize(ledgers, s.SimulationMonths)
	now := o.now().UTC()
	s.Summary = summary.StrategySummary()
	s.LastSimulatedAt = &now
	s.UpdatedAt = now
	if s.Status == StatusDraft {
		s.Status = StatusSimulated
	}
	if err := o.store.SaveStrategy(ctx, s); err != nil {
		return nil, &SimulationError{StrategyID: s.ID, Cause: fmt.Errorf("saving summary: %w", err)}
	}
	o.refreshCache(ctx, s.ID, summary)

	result.Ledgers = ledgers
	result.Summary = summary
	o.log.Info().Str("strategy", s.ID).Dur("elapsed", time.Since(began)).
		Str("net_benefit", summary.NetBenefit.StringFixed(2)).
		Int("months_accelerated", summary.MonthsAccelerated).Msg("simulation finished")
	return result, nil
}

// runGuarded converts a panic anywhere in the engine into an error
func runGuarded(engine func(SimulationInput) map[ScenarioKind][]LedgerEntry, in SimulationInput) (ledgers map[ScenarioKind][]LedgerEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			ledgers = nil
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return engine(in), nil
}

func (o *Orchestrator) refreshCache(ctx context.Context, id string, summary *SummaryReport) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Invalidate(ctx, id); err != nil {
		o.log.Warn().Str("strategy", id).Err(err).Msg("summary cache invalidate failed")
	}
	if err := o.cache.Set(ctx, id, summary); err != nil {
		o.log.Warn().Str("strategy", id).Err(err).Msg("summary cache write failed")
	}
}

// Ledgers returns the stored ledgers of a strategy keyed by scenario
func (o *Orchestrator) Ledgers(ctx context.Context, id string) (map[ScenarioKind][]LedgerEntry, error) {
	return o.store.Ledgers(ctx, id)
}

// Summary returns the cross-scenario summary, from cache when possible
func (o *Orchestrator) Summary(ctx context.Context, id string) (*SummaryReport, error) {
	if o.cache != nil {
		if report, ok := o.cache.Get(ctx, id); ok {
			return report, nil
		}
	}

	s, err := o.store.Strategy(ctx, id)
	if err != nil {
		return nil, err
	}
	ledgers, err := o.Ledgers(ctx, id)
	if err != nil {
		return nil, err
	}
	report := Summarize(ledgers, s.SimulationMonths)
	if o.cache != nil && len(ledgers) > 0 {
		if err := o.cache.Set(ctx, id, report); err != nil {
			o.log.Warn().Str("strategy", id).Err(err).Msg("summary cache write failed")
		}
	}
	return report, nil
}

// Activate marks a simulated strategy as being followed
func (o *Orchestrator) Activate(ctx context.Context, id string) (*StrategyConfig, error) {
	return o.transition(ctx, id, StatusSimulated, StatusActive)
}

// Complete closes an active strategy; it can no longer be edited or re-run
func (o *Orchestrator) Complete(ctx context.Context, id string) (*StrategyConfig, error) {
	return o.transition(ctx, id, StatusActive, StatusCompleted)
}

func (o *Orchestrator) transition(ctx context.Context, id string, from, to StrategyStatus) (*StrategyConfig, error) {
	s, err := o.store.Strategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != from {
		return nil, fmt.Errorf("%w: %s to %s (want %s)", ErrInvalidTransition, s.Status, to, from)
	}
	s.Status = to
	s.UpdatedAt = o.now().UTC()
	if err := o.store.SaveStrategy(ctx, s); err != nil {
		return nil, fmt.Errorf("saving strategy: %w", err)
	}
	o.log.Info().Str("strategy", id).Str("status", to.String()).Msg("strategy status changed")
	return s, nil
}
