package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
	"github.com/TobiSchelling/leadflow/internal/logging"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = logging.Nop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "leadflow",
	Short:         "Lead intake, daily call lists and outreach KPIs",
	Long:          "leadflow merges lead lists into one customer base, builds each agent's daily call list, records outreach outcomes and aggregates KPIs.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.Setup("info", verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = logging.Setup(cfg.Logging.Level, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(validateFeedsCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(debugTargetsCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(appointmentCmd)
	rootCmd.AddCommand(kpiCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("leadflow", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/leadflow/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, agents and outcome codes.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n", database.FormatDate(db.Now()))
		fmt.Printf("Database: %s\n\n", db.Path())

		fmt.Println("Customers:")
		fmt.Printf("  Total: %s\n", humanize.Comma(int64(stats.Customers)))
		for _, s := range sortedKeys(stats.CustomersByState) {
			fmt.Printf("  %s: %s\n", s, humanize.Comma(int64(stats.CustomersByState[s])))
		}
		fmt.Printf("  Lead sources: %s\n", humanize.Comma(int64(stats.LeadSources)))

		fmt.Println("\nOutreach:")
		fmt.Printf("  Calls: %s\n", humanize.Comma(int64(stats.CallLogs)))
		fmt.Printf("  Appointments: %s\n", humanize.Comma(int64(stats.Appointments)))
		fmt.Printf("  Target sheets: %d\n", stats.TargetSheets)

		fmt.Println("\nKPI:")
		fmt.Printf("  Daily rows: %s\n", humanize.Comma(int64(stats.DailyKPIRows)))
		fmt.Printf("  List rows: %s\n", humanize.Comma(int64(stats.ListKPIRows)))

		if t, ok := database.ParseTime(stats.LastRunAt); ok {
			fmt.Printf("\nLast run: %s (%s)\n", stats.LastRunAt, humanize.Time(t))
		} else {
			fmt.Println("\nLast run: never")
		}
		return nil
	},
}

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent entries of the logs table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.RecentLogs(logsLimit)
		if err != nil {
			return fmt.Errorf("reading logs: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No log entries.")
			return nil
		}
		// Oldest first reads naturally in a terminal.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			fmt.Printf("%s %-5s %-12s %s\n", e.Timestamp, e.Level, e.FunctionName, e.Message)
			if e.Stacktrace != "" {
				fmt.Printf("    %s\n", e.Stacktrace)
			}
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 50, "Number of entries to show")
}

// openDB opens the store in the data directory and, when enabled, mirrors
// log events into its logs table.
func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(filepath.Join(dataDir, "leadflow.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.Logging.Table {
		logger = logging.Setup(cfg.Logging.Level, verbose, logging.NewTableSink(db))
	}
	return db, nil
}

// asOfFlag parses a --date value, defaulting to the store's clock.
func asOfFlag(db *database.DB, value string) (time.Time, error) {
	if value == "" {
		return db.Now(), nil
	}
	t, ok := database.ParseTime(value)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fail logs err and returns it with a pointer to the logs table.
func fail(what string, err error) error {
	logger.Error().Stack().Err(err).Msg(what)
	return fmt.Errorf("%s: %w (see 'leadflow logs')", what, err)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
