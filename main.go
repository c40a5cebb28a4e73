package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Smith Manoeuvre Debt Optimisation Simulator

Simulates a household's mortgages and HELOC month by month and compares three
scenarios over the same horizon:

  baseline        scheduled payments only
  prepay_only     rental surplus prepays the primary mortgage
  modified_smith  rental expenses are paid from the HELOC so the full rental
                  income prepays the primary mortgage; HELOC interest is
                  capitalised and claimed as investment interest

Auto-stop rules in the config halt the Smith scenario when they first trigger.

Usage:
  %s [options]

Options:
`, os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  %s                           Compare scenarios using config.yaml
  %s -config my.yaml           Use custom configuration file
  %s -start 2026-01            Simulate from January 2026
  %s -details                  Print yearly ledger rows (-monthly for every month)
  %s -csv smith.csv            Export the Smith ledger as CSV
  %s -csv base.csv -scenario baseline
  %s -pdf audit.pdf            Export the interest deduction audit
  %s -html report.html         Write an HTML comparison with yearly ledgers
  %s -sensitivity              Net benefit across HELOC rates and incomes
  %s -web -addr :8080          Serve the JSON API
  %s -save-default config.yaml Write the default configuration and exit
  %s -interactive              Answer prompts to create config.yaml, then run

Environment (.env is read when present):
  SMITH_DB_PATH          SQLite database file (switches storage to sqlite)
  SMITH_REDIS_ADDR       Redis address for the summary cache
  SMITH_LOG_LEVEL        trace, debug, info, warn or error
  SMITH_ADDR             Web server address
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	}

	// Command line flags
	configFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	startMonth := flag.String("start", "", "First simulated month, YYYY-MM (default: config start_date or current month)")
	showDetails := flag.Bool("details", false, "Print the ledger of each scenario")
	everyMonth := flag.Bool("monthly", false, "With -details, print every month instead of every January")
	csvFile := flag.String("csv", "", "Write a scenario ledger to this CSV file")
	pdfFile := flag.String("pdf", "", "Write the interest deduction audit PDF to this file")
	htmlFile := flag.String("html", "", "Write an HTML comparison report to this file")
	scenarioName := flag.String("scenario", "", "Scenario for -csv and -pdf (baseline, prepay_only, modified_smith)")
	runSensitivity := flag.Bool("sensitivity", false, "Tabulate net benefit across HELOC rates and household incomes")
	webMode := flag.Bool("web", false, "Start the JSON API server")
	webAddr := flag.String("addr", "", "Web server address (overrides config server.addr)")
	saveDefault := flag.String("save-default", "", "Write the default configuration to this file and exit")
	interactive := flag.Bool("interactive", false, "Build the configuration with prompts and save it to -config")
	flag.Parse()

	if *saveDefault != "" {
		config, err := LoadDefaultConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading default config: %v\n", err)
			os.Exit(1)
		}
		if err := SaveConfig(config, *saveDefault); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration saved to %s\n", *saveDefault)
		return
	}

	var config *Config
	var err error
	if *interactive {
		config = NewInteractiveConfigBuilder(os.Stdin, os.Stdout).Build()
		if err := SaveConfig(config, *configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nConfiguration saved to %s\n", *configFile)
		fmt.Println("You can edit this file to adjust settings for future runs.")
		fmt.Println()
	} else if config, err = loadConfigOrDefault(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	ApplyEnvOverrides(config)
	if *webAddr != "" {
		config.Server.Addr = *webAddr
	}

	logger := NewLogger(config.Logging.GetLevel(), os.Stderr, !*webMode)
	orch, cleanup, err := buildOrchestrator(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Web server mode
	if *webMode {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		server := NewWebServer(orch, config, logger)
		if err := server.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Web server error: %v\n", err)
			cleanup()
			os.Exit(1)
		}
		return
	}

	if *runSensitivity {
		if err := runSensitivityMode(orch, config, *startMonth); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			cleanup()
			os.Exit(1)
		}
		return
	}

	if err := runConsoleMode(orch, config, consoleOptions{
		start:      *startMonth,
		details:    *showDetails,
		everyMonth: *everyMonth,
		csvFile:    *csvFile,
		pdfFile:    *pdfFile,
		htmlFile:   *htmlFile,
		scenario:   *scenarioName,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cleanup()
		os.Exit(1)
	}
}

// loadConfigOrDefault reads the config file, falling back to the embedded
// default when the file does not exist
func loadConfigOrDefault(filename string) (*Config, error) {
	config, err := LoadConfig(filename)
	if err == nil {
		return config, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "%s not found, using the default configuration (see -save-default)\n", filename)
	return LoadDefaultConfig()
}

// buildOrchestrator wires storage, cache and tax tables from the config
func buildOrchestrator(config *Config, logger *log.Logger) (*Orchestrator, func(), error) {
	registry, err := LoadJurisdictions(logger, config.JurisdictionFiles...)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn().Err(err).Msg("close failed")
			}
		}
		closers = nil
	}

	var store Store
	switch config.Storage.GetDriver() {
	case "sqlite":
		sqlStore, err := OpenSQLiteStore(config.Storage.GetPath(), logger)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q (want memory or sqlite)", config.Storage.Driver)
	}
	closers = append(closers, store.Close)

	var cache SummaryCache
	if config.Cache.RedisAddr != "" {
		redisCache := NewRedisSummaryCache(config.Cache.RedisAddr, config.Cache.GetTTL())
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := redisCache.Ping(ctx)
		cancel()
		if err != nil {
			logger.Warn().Str("addr", config.Cache.RedisAddr).Err(err).Msg("redis unavailable, using in-process summary cache")
			redisCache.Close()
			cache = NewMemorySummaryCache(config.Cache.GetTTL())
		} else {
			cache = redisCache
			closers = append(closers, redisCache.Close)
		}
	} else {
		cache = NewMemorySummaryCache(config.Cache.GetTTL())
	}

	return NewOrchestrator(store, registry, cache, logger), cleanup, nil
}

type consoleOptions struct {
	start      string
	details    bool
	everyMonth bool
	csvFile    string
	pdfFile    string
	htmlFile   string
	scenario   string
}

func consoleStart(config *Config, flagValue string) (time.Time, error) {
	if flagValue != "" {
		return parseMonth(flagValue)
	}
	return config.Strategy.GetStartDate(time.Now())
}

// runSensitivityMode prints the HELOC rate / income grid for the configured strategy
func runSensitivityMode(orch *Orchestrator, config *Config, startFlag string) error {
	start, err := consoleStart(config, startFlag)
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	analysis, err := RunSensitivityAnalysis(config.ToStrategy(), config.Sensitivity, orch.jurisdictions, start)
	if err != nil {
		return err
	}
	PrintSensitivityAnalysis(analysis)
	return nil
}

// runConsoleMode creates the configured strategy, runs it once and prints the comparison
func runConsoleMode(orch *Orchestrator, config *Config, opts consoleOptions) error {
	ctx := context.Background()

	start, err := consoleStart(config, opts.start)
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}

	s, err := orch.CreateStrategy(ctx, config.ToStrategy())
	if err != nil {
		return err
	}
	result, err := orch.Run(ctx, s.ID, start)
	if err != nil {
		return err
	}
	if s, err = orch.Strategy(ctx, s.ID); err != nil {
		return err
	}

	PrintHeader(s, result)
	PrintComparison(result.Summary)

	if opts.details {
		for _, scenario := range AllScenarios {
			if entries, ok := result.Ledgers[scenario]; ok {
				PrintLedgerDetails(scenario, entries, opts.everyMonth)
			}
		}
	}

	if opts.htmlFile != "" {
		if err := GenerateHTMLReportFile(opts.htmlFile, s, result.Summary, result.Ledgers); err != nil {
			return fmt.Errorf("writing HTML report: %w", err)
		}
		fmt.Printf("HTML report written to %s\n", opts.htmlFile)
	}

	if opts.csvFile == "" && opts.pdfFile == "" {
		return nil
	}

	scenario := result.Summary.ComparedScenario
	if opts.scenario != "" {
		if scenario, err = ParseScenarioKind(opts.scenario); err != nil {
			return err
		}
	}
	entries, ok := result.Ledgers[scenario]
	if !ok {
		return fmt.Errorf("scenario %s was not simulated for a %s strategy", scenario, s.Kind)
	}

	if opts.csvFile != "" {
		f, err := os.Create(opts.csvFile)
		if err != nil {
			return err
		}
		if err := WriteLedgerCSV(f, entries); err != nil {
			f.Close()
			return fmt.Errorf("writing CSV: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("%s ledger written to %s\n", scenario.Label(), opts.csvFile)
	}

	if opts.pdfFile != "" {
		data, err := GenerateAuditPDF(s, BuildAuditReport(s, scenario, entries), result.Summary)
		if err != nil {
			return fmt.Errorf("generating PDF: %w", err)
		}
		if err := os.WriteFile(opts.pdfFile, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Audit report written to %s\n", opts.pdfFile)
	}
	return nil
}
