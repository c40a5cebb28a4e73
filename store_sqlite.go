package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS strategies (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	config TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	scenario TEXT NOT NULL,
	month INTEGER NOT NULL,
	calendar_month TEXT NOT NULL,
	%s,
	strategy_stopped BOOLEAN NOT NULL DEFAULT FALSE,
	stop_reason TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(strategy_id) REFERENCES strategies(id),
	UNIQUE(strategy_id, month, scenario)
);

CREATE INDEX IF NOT EXISTS idx_ledger_strategy_scenario ON ledger_entries(strategy_id, scenario, month);
`

// SQLiteStore persists strategies and ledgers in a SQLite database
type SQLiteStore struct {
	db  *sql.DB
	log *log.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLiteStore(path string, logger *log.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}
	// One writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ledgerSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("database tables ensured")
	}
	return &SQLiteStore{db: db, log: logger}, nil
}

func ledgerSchema() string {
	cols := make([]string, len(ledgerMoneyFields))
	for i, f := range ledgerMoneyFields {
		cols[i] = f.Name + " TEXT NOT NULL DEFAULT '0'"
	}
	return fmt.Sprintf(sqliteSchema, strings.Join(cols, ",\n\t"))
}

func (s *SQLiteStore) SaveStrategy(ctx context.Context, cfg *StrategyConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding strategy %s: %w", cfg.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, household_id, name, kind, status, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			household_id = excluded.household_id,
			name = excluded.name,
			kind = excluded.kind,
			status = excluded.status,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		cfg.ID, cfg.HouseholdID, cfg.Name, cfg.Kind.String(), cfg.Status.String(), string(blob),
		cfg.CreatedAt.UTC(), cfg.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving strategy %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Strategy(ctx context.Context, id string) (*StrategyConfig, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, "SELECT config FROM strategies WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStrategyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading strategy %s: %w", id, err)
	}
	return decodeStrategy(blob)
}

func (s *SQLiteStore) Strategies(ctx context.Context) ([]*StrategyConfig, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT config FROM strategies ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []*StrategyConfig
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		cfg, err := decodeStrategy(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func decodeStrategy(blob string) (*StrategyConfig, error) {
	var cfg StrategyConfig
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		return nil, fmt.Errorf("decoding strategy: %w", err)
	}
	return &cfg, nil
}

// ReplaceLedgers deletes and re-inserts the strategy's ledgers in one transaction
func (s *SQLiteStore) ReplaceLedgers(ctx context.Context, strategyID string, ledgers map[ScenarioKind][]LedgerEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger replace: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM strategies WHERE id = ?", strategyID).Scan(&exists); err != nil {
		return fmt.Errorf("checking strategy %s: %w", strategyID, err)
	}
	if exists == 0 {
		return ErrStrategyNotFound
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE strategy_id = ?", strategyID); err != nil {
		return fmt.Errorf("deleting ledgers for %s: %w", strategyID, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertLedgerSQL())
	if err != nil {
		return fmt.Errorf("preparing ledger insert: %w", err)
	}
	defer stmt.Close()

	for _, scenario := range AllScenarios {
		for i := range ledgers[scenario] {
			e := &ledgers[scenario][i]
			args := make([]any, 0, len(ledgerMoneyFields)+6)
			args = append(args, strategyID, scenario.String(), e.Month, e.CalendarMonth.Format(monthLayout))
			for _, f := range ledgerMoneyFields {
				args = append(args, f.Ref(e).String())
			}
			args = append(args, e.StrategyStopped, e.StopReason)
			if _, err = stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("inserting %s month %d: %w", scenario, e.Month, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing ledgers for %s: %w", strategyID, err)
	}
	if s.log != nil {
		s.log.Debug().Str("strategy", strategyID).Int("scenarios", len(ledgers)).Msg("ledgers replaced")
	}
	return nil
}

func insertLedgerSQL() string {
	cols := []string{"strategy_id", "scenario", "month", "calendar_month"}
	for _, f := range ledgerMoneyFields {
		cols = append(cols, f.Name)
	}
	cols = append(cols, "strategy_stopped", "stop_reason")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO ledger_entries (%s) VALUES (%s)", strings.Join(cols, ", "), marks)
}

func (s *SQLiteStore) Ledger(ctx context.Context, strategyID string, scenario ScenarioKind) ([]LedgerEntry, error) {
	if _, err := s.Strategy(ctx, strategyID); err != nil {
		return nil, err
	}
	return queryLedger(ctx, s.db, strategyID, scenario)
}

// Ledgers reads every scenario inside one read transaction
func (s *SQLiteStore) Ledgers(ctx context.Context, strategyID string) (map[ScenarioKind][]LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning ledger read: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM strategies WHERE id = ?", strategyID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking strategy %s: %w", strategyID, err)
	}
	if exists == 0 {
		return nil, ErrStrategyNotFound
	}

	ledgers := make(map[ScenarioKind][]LedgerEntry)
	for _, scenario := range AllScenarios {
		entries, err := queryLedger(ctx, tx, strategyID, scenario)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			ledgers[scenario] = entries
		}
	}
	return ledgers, tx.Commit()
}

// ledgerQuerier is satisfied by both *sql.DB and *sql.Tx
type ledgerQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryLedger(ctx context.Context, q ledgerQuerier, strategyID string, scenario ScenarioKind) ([]LedgerEntry, error) {
	cols := []string{"month", "calendar_month"}
	for _, f := range ledgerMoneyFields {
		cols = append(cols, f.Name)
	}
	cols = append(cols, "strategy_stopped", "stop_reason")
	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE strategy_id = ? AND scenario = ? ORDER BY month",
		strings.Join(cols, ", "))

	rows, err := q.QueryContext(ctx, query, strategyID, scenario.String())
	if err != nil {
		return nil, fmt.Errorf("loading %s ledger for %s: %w", scenario, strategyID, err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		e := LedgerEntry{StrategyID: strategyID, Scenario: scenario}
		var calendar string
		dest := []any{&e.Month, &calendar}
		for _, f := range ledgerMoneyFields {
			dest = append(dest, f.Ref(&e))
		}
		dest = append(dest, &e.StrategyStopped, &e.StopReason)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		t, err := time.Parse(monthLayout, calendar)
		if err != nil {
			return nil, fmt.Errorf("ledger row month %d: %w", e.Month, err)
		}
		e.CalendarMonth = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
