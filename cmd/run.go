package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/browser"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/collector"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/config"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/driver"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/observability"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/orchestrator"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/rawlog"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var headful bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs N probe iterations against the target page under one behavior profile",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so CLI values override the
			// config file and environment with the right precedence.
			for flag, key := range map[string]string{
				"mode":           "probe.mode",
				"iterations":     "probe.iterations",
				"fixed-delay-ms": "probe.fixed_delay_ms",
				"url":            "probe.url",
				"phrase":         "probe.phrase",
				"seed":           "probe.seed",
				"out-dir":        "probe.output_dir",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			// --headful is the inverse of browser.headless, so it cannot be
			// bound directly.
			if cmd.Flags().Changed("headful") {
				viper.Set("browser.headless", !headful)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound.
			finalCfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg = finalCfg

			profile, err := cfg.Profile()
			if err != nil {
				return err
			}

			records, err := executeRun(ctx, logger, cfg, profile)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by stop signal",
						zap.Int("completed_iterations", len(records)))
					return nil
				}
				return err
			}

			failed := 0
			for _, r := range records {
				if r.Status == probe.StatusFailed {
					failed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed %d iterations (%d failed); raw logs in %s\n",
				len(records), failed, cfg.Probe.OutputDir)
			return nil
		},
	}

	runCmd.Flags().String("mode", string(probe.ProfileHumanLike),
		"behavior profile: human_like, bot_obvious or superhuman")
	runCmd.Flags().Int("iterations", 1, "number of probe iterations")
	runCmd.Flags().Int("fixed-delay-ms", 5, "per-key delay for bot_obvious mode")
	runCmd.Flags().String("url", "", "target page URL (defaults to config)")
	runCmd.Flags().String("phrase", "", "fixed phrase to type instead of reading it off the page")
	runCmd.Flags().Int64("seed", 0, "RNG seed for reproducible runs (0 = derive from clock)")
	runCmd.Flags().String("out-dir", "", "directory for raw iteration logs")
	runCmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")

	return runCmd
}

// executeRun assembles the collaborators and hands control to the
// orchestrator. Returned records include failed iterations.
func executeRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, profile probe.BehaviorProfile) ([]probe.OutcomeRecord, error) {
	raw, err := rawlog.NewWriter(cfg.Probe.OutputDir, cfg.Probe.OutPrefix, logger)
	if err != nil {
		return nil, err
	}

	var outcomeStore orchestrator.Store
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect outcome database: %w", err)
		}
		defer pool.Close()

		st, err := store.New(ctx, pool, logger)
		if err != nil {
			return nil, err
		}
		outcomeStore = st
	}

	manager, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	defer manager.Shutdown()

	orch := orchestrator.New(
		logger,
		cfg,
		driver.New(logger),
		collector.New(logger, cfg.Probe.ResultWait, cfg.Probe.ResultPoll),
		raw,
		outcomeStore,
	)
	return orch.Run(ctx, manager, profile, cfg.Probe.Iterations)
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
