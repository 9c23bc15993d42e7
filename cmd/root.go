package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatali-fataliyev/finance_analytics/api"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/config"
	"github.com/fatali-fataliyev/finance_analytics/internal/storage"
	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/spf13/cobra"
)

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "finance-analytics",
		Short: "Spending analytics over a personal transaction ledger",
		Long: `Finance Analytics serves totals, top categories, daily series and
month end forecasts of a user's transactions over HTTP, or prints them as
one-off reports.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional toml config file")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newReportCmd(&configPath))
	return rootCmd
}

// application is everything a command needs once storage is up.
type application struct {
	cfg     *config.Config
	tracker budget.BudgetTracker
	engine  *analytics.Engine
	api     *api.Api
	close   func() error
}

// loadConfig reads the config and sets up logging with console output on w.
// It runs before storage is opened so every log line lands on w.
func loadConfig(configPath string, w io.Writer) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.InitWithConsole(cfg.LogLevel, cfg.AppEnv, cfg.LogDir, w); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func bootstrap(cfg *config.Config) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, close: func() error { return nil }}

	var store interface {
		budget.Storage
		analytics.Store
	}
	switch cfg.StorageType {
	case config.StorageMySQL:
		db, err := storage.InitMySQL(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sqlStore := storage.NewSQLStorage(db, config.StorageMySQL)
		store, app.close = sqlStore, sqlStore.Close
	case config.StorageSQLite:
		db, err := storage.InitSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		sqlStore := storage.NewSQLStorage(db, config.StorageSQLite)
		store, app.close = sqlStore, sqlStore.Close
	case config.StorageInMemory:
		logging.Logger.Warn("inmemory storage is in use, data is lost on exit")
		store = storage.NewInMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.StorageType)
	}
	logging.Logger.Infof("storage %s is ready", store.GetStorageType())

	app.tracker = budget.NewBudgetTracker(store)
	app.engine = analytics.NewEngine(store, analytics.WithLocation(loc))
	app.api = api.NewApi(&app.tracker, app.engine, loc)
	return app, nil
}
