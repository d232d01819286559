package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockvault/blockvault/internal/logging"
	"github.com/blockvault/blockvault/internal/store"
	"github.com/blockvault/blockvault/pkg/config"
)

var (
	// Version is set during build.
	Version = "0.1.0"

	cfgFile  string
	logLevel string
	quiet    bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "blockvault",
	Short: "Content-addressed block store for DAGs of immutable blocks",
	Long: `blockvault stores immutable, hash-identified blocks and the directed
acyclic graph of links between them, on top of an embedded SQLite database.

Examples:
  blockvault put <hash> --payload-file block.bin --link <hex> --link <hex>
  blockvault get <hash>
  blockvault descendants <hash>
  blockvault alias root <hash>
  blockvault gc --start
  blockvault stats`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "has no effect: commands print the same output with or without it")
}

// loadConfig loads the configuration, applying the --log_level override and
// initializing the logging package.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log_level") {
		cfg.Logging.Level = logLevel
	}
	logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	return cfg, nil
}

// openStore loads configuration and opens the block store, creating its
// containing directory first if needed.
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := cfg.EnsureConfigDir(); err != nil {
			return nil, nil, err
		}
	}

	s, err := store.Open(cfg.Database.Path, cfg.Database.Memory)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
