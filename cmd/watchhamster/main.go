package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillcoder/watchhamster/internal/app"
	"github.com/skillcoder/watchhamster/internal/config"
	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/logging"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/infra/shutdown"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
)

func main() {
	appStart := time.Now()
	// Start listening for signals immediately as first thing, before any other initialization
	signals := shutdown.Notify()
	ctx := context.Background()

	if err := newRootCmd(signals, appStart).ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to run", "reason", err)
		// Give the logger some time to flush
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "bye")
}

func newRootCmd(signals <-chan os.Signal, appStart time.Time) *cobra.Command {
	var configFile string

	runE := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), configFile, signals, appStart)
	}

	root := &cobra.Command{
		Use:           "watchhamster",
		Short:         "Keeps processes alive, watches host resources and delivers alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to the YAML config file (overrides WATCHHAMSTER_CONFIG_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the daemon until SIGTERM or SIGINT",
			Args:  cobra.NoArgs,
			RunE:  runE,
		},
		&cobra.Command{
			Use:   "validate-configs",
			Short: "Check and heal the configuration documents once, then exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return validateConfigs(cmd, configFile)
			},
		},
	)

	return root
}

func run(ctx context.Context, configFile string, signals <-chan os.Signal, appStart time.Time) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	pingers := pinger.New(logger, cfg.PingerInterval)
	appState := appstate.New(logger, appStart, cfg.TerminationFile, signals, pingers)

	if shutdown.CheckTerminationFile(ctx, logger, cfg.TerminationFile) {
		return nil
	}

	application, err := app.New(logger, cfg, appState, pingers)
	if err != nil {
		return fmt.Errorf("new application: %w", err)
	}

	return application.Run(ctx)
}

func validateConfigs(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	findings, err := app.ValidateConfigs(cmd.Context(), logger, cfg)
	if err != nil {
		return fmt.Errorf("validate configs: %w", err)
	}

	if findings == nil {
		findings = []stability.Finding{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err := enc.Encode(findings); err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}

	return nil
}
