package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DistributedCollective/Sovryn-Node-sub000/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
		logFormat  string
	)

	root := &cobra.Command{
		Use:           "sovryn-node",
		Short:         "Liquidation, rollover and arbitrage agent for the Sovryn protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&logFormat, "format", "", "log format: text|json (overrides config)")

	// loadConfig is shared by every subcommand that needs configuration.
	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err, "path", configPath)
			return nil, err
		}
		setupLogger(logSettings(cfg.Log, verbose, logFormat))
		return cfg, nil
	}

	root.AddCommand(
		newRunCmd(loadConfig),
		newReportCmd(loadConfig),
		newVersionCmd(),
	)
	return root
}

// logSettings applies the command line flags on top of a copy of the configured log settings.
func logSettings(base config.LogConfig, verbose bool, format string) config.LogConfig {
	if verbose {
		base.Level = "debug"
	}
	if format != "" {
		base.Format = format
	}
	return base
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
