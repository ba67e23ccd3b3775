// Package main provides the cellar CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cellar/cmd/cellar/ui"
	"cellar/internal/client"
	"cellar/internal/config"
)

var (
	// Global flags
	cfgPath   string
	serverURL string
	verbose   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cellar",
	Short: "cellar - an age-gated item keeper",
	Long: `cellar keeps named items and refuses to delete them before they have
rested five full days.

The server half ("cellar serve") persists items in SQLite and enforces the
age gate. The client half (the bare "cellar" command and the add/list/rm
subcommands) talks to a running server over HTTP.

Run without arguments to start the interactive browser.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for the interactive browser (it has its own UI)
		if cmd.Use == "cellar" && cmd.CalledAs() == "cellar" {
			return nil
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBrowser()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Add commands to root
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Client.BaseURL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvedConfigPath is the path loadConfig read from, for the reload watcher.
func resolvedConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

// newAPIClient builds the HTTP client from config.
func newAPIClient(cfg *config.Config) *client.Client {
	return client.New(client.Config{
		BaseURL: cfg.Client.BaseURL,
		Timeout: cfg.GetClientTimeout(),
	})
}

// runBrowser starts the interactive item browser.
func runBrowser() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	api := newAPIClient(cfg)
	return ui.Run(api, ui.Config{
		MinAgeDays: cfg.Store.MinAgeDays,
		Timeout:    cfg.GetClientTimeout(),
		DarkMode:   os.Getenv("CELLAR_DARK_MODE") == "1",
	})
}
