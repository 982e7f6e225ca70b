package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/claimscrub/internal/core/config"
	"github.com/solatis/claimscrub/internal/core/db"
	"github.com/solatis/claimscrub/internal/core/logging"
	"github.com/solatis/claimscrub/internal/rules"
)

// addConfigFlags registers the named config override flags on c. Defaults
// mirror config.DefaultScrubAPIConfig; only changed flags override the
// config file and environment.
func addConfigFlags(c *cobra.Command, names ...string) {
	d := config.DefaultScrubAPIConfig()
	f := c.Flags()
	for _, name := range names {
		switch name {
		case "host":
			f.String(name, d.Host, "gRPC server host")
		case "port":
			f.Int(name, d.Port, "gRPC server port")
		case "data-dir":
			f.String(name, d.DataDir, "directory for JSONL report files")
		case "metrics-port":
			f.Int(name, d.MetricsPort, "prometheus metrics port (0 disables)")
		case "stop-on-deny":
			f.Bool(name, d.StopOnDeny, "skip lower-priority rules once a claim is denied")
		case "workers":
			f.Int(name, d.Workers, "parallel claim evaluations")
		case "max-batch":
			f.Int(name, d.MaxBatchSize, "maximum claims per scrub request")
		case "budget":
			f.Int(name, d.ConflictBudget, "conflict detection cost budget (0 = unlimited)")
		case "max-samples":
			f.Int(name, d.MaxSampleSize, "maximum sample claims per test run")
		case "test-timeout":
			f.Duration(name, d.TestTimeout, "test run deadline")
		case "conflict-wait":
			f.Duration(name, d.ConflictTimeout, "conflict detection deadline")
		default:
			panic("unknown config flag " + name)
		}
	}
}

// app holds what every database-backed command needs.
type app struct {
	cfg    *config.ScrubAPIConfig
	logger *slog.Logger
	db     *sqlx.DB
	store  *db.Store
	q      *db.Queries
}

func (a *app) Close() error {
	return a.db.Close()
}

// newLogger builds the logger from the root flags.
func newLogger() (*slog.Logger, error) {
	return logging.New(os.Stderr, logLevel, logFormat)
}

// openDB opens --db-url (or CS_DB_URL).
func openDB() (*sqlx.DB, error) {
	url := dbURL
	if url == "" {
		url = os.Getenv("CS_DB_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// setup loads config, logger and a migrated database for c.
func setup(ctx context.Context, c *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(configFile, c.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	database, err := openDB()
	if err != nil {
		return nil, err
	}

	pending, err := db.Pending(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	if pending {
		database.Close()
		return nil, fmt.Errorf("database schema out of date - run 'claimscrub migrate up' first")
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: database, store: db.NewStore(queries), q: queries}, nil
}

// engine builds an empty engine from config.
func (a *app) engine() *rules.Engine {
	return rules.NewEngine(
		rules.WithLogger(a.logger),
		rules.WithStopOnDeny(a.cfg.StopOnDeny),
		rules.WithWorkers(a.cfg.Workers),
		rules.WithDetectorOptions(rules.DetectorOptions{Budget: a.cfg.ConflictBudget}),
		rules.WithHarnessOptions(rules.HarnessOptions{MaxSampleSize: a.cfg.MaxSampleSize}),
	)
}

// loadedEngine builds an engine and loads every stored rule into it.
func (a *app) loadedEngine(ctx context.Context) (*rules.Engine, error) {
	engine := a.engine()
	stored, err := a.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if err := engine.Load(stored); err != nil {
		a.logger.Warn("rule set loaded with errors", "error", err)
	}
	return engine, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
