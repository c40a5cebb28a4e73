package main

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrStrategyNotFound is returned when no strategy has the requested ID
var ErrStrategyNotFound = errors.New("strategy not found")

// Store persists strategy configurations and their ledgers.
//
// ReplaceLedgers swaps every given scenario partition of a strategy in one
// atomic step: readers observe either the previous ledgers or the new ones.
// Scenarios not present in the map are deleted for that strategy. Ledgers
// reads every scenario from one snapshot, so it never pairs partitions from
// two different runs; empty scenarios are omitted.
type Store interface {
	SaveStrategy(ctx context.Context, s *StrategyConfig) error
	Strategy(ctx context.Context, id string) (*StrategyConfig, error)
	Strategies(ctx context.Context) ([]*StrategyConfig, error)
	ReplaceLedgers(ctx context.Context, strategyID string, ledgers map[ScenarioKind][]LedgerEntry) error
	Ledger(ctx context.Context, strategyID string, scenario ScenarioKind) ([]LedgerEntry, error)
	Ledgers(ctx context.Context, strategyID string) (map[ScenarioKind][]LedgerEntry, error)
	Close() error
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[string]*StrategyConfig
	ledgers    map[string]map[ScenarioKind][]LedgerEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strategies: make(map[string]*StrategyConfig),
		ledgers:    make(map[string]map[ScenarioKind][]LedgerEntry),
	}
}

func (m *MemoryStore) SaveStrategy(ctx context.Context, s *StrategyConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Strategy(ctx context.Context, id string) (*StrategyConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Strategies(ctx context.Context) ([]*StrategyConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*StrategyConfig, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ReplaceLedgers(ctx context.Context, strategyID string, ledgers map[ScenarioKind][]LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Copy outside the lock so the swap itself is a single assignment
	fresh := make(map[ScenarioKind][]LedgerEntry, len(ledgers))
	for scenario, entries := range ledgers {
		cp := make([]LedgerEntry, len(entries))
		copy(cp, entries)
		fresh[scenario] = cp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[strategyID]; !ok {
		return ErrStrategyNotFound
	}
	m.ledgers[strategyID] = fresh
	return nil
}

func (m *MemoryStore) Ledger(ctx context.Context, strategyID string, scenario ScenarioKind) ([]LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.strategies[strategyID]; !ok {
		return nil, ErrStrategyNotFound
	}
	entries := m.ledgers[strategyID][scenario]
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryStore) Ledgers(ctx context.Context, strategyID string) (map[ScenarioKind][]LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.strategies[strategyID]; !ok {
		return nil, ErrStrategyNotFound
	}
	out := make(map[ScenarioKind][]LedgerEntry)
	for scenario, entries := range m.ledgers[strategyID] {
		if len(entries) == 0 {
			continue
		}
		cp := make([]LedgerEntry, len(entries))
		copy(cp, entries)
		out[scenario] = cp
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
