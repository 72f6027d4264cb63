package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/browser"
	"github.com/xkilldash9x/webgym/internal/config"
	"github.com/xkilldash9x/webgym/internal/env"
	"github.com/xkilldash9x/webgym/internal/evaluator"
	"github.com/xkilldash9x/webgym/internal/observability"
	"github.com/xkilldash9x/webgym/internal/reward"
	"github.com/xkilldash9x/webgym/internal/rollout"
	"github.com/xkilldash9x/webgym/internal/store"
	"github.com/xkilldash9x/webgym/internal/taskgen"
)

// newRolloutCmd creates and configures the `rollout` command.
func newRolloutCmd() *cobra.Command {
	rolloutCmd := &cobra.Command{
		Use:   "rollout",
		Short: "Runs a batch of episodes with a masked random policy",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			for key, flag := range map[string]string{
				"rollout.episodes": "episodes",
				"rollout.parallel": "parallel",
				"rollout.project":  "project",
				"rollout.seed":     "seed",
				"browser.headless": "headless",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound in PreRunE.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}
			restrictToProject(cfg)

			logger.Info("Starting rollout run.",
				zap.Int("episodes", cfg.Rollout.Episodes),
				zap.Int("parallel", cfg.Rollout.Parallel),
				zap.Strings("projects", cfg.Tasks.Projects),
				zap.String("provider", cfg.Tasks.Provider),
				zap.Bool("headless", cfg.Browser.Headless))

			components, err := initializeRolloutComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize rollout components: %w", err)
			}
			defer components.Shutdown()

			summary, err := components.Runner.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Rollout aborted gracefully.")
					return err
				}
				logger.Error("Rollout failed.", zap.Error(err))
				return err
			}

			fmt.Printf("\nRollout complete. %d/%d episodes succeeded (%.0f%%), %d steps total.\n",
				summary.Successes, summary.Episodes, summary.SuccessRate()*100, summary.Steps)
			return nil
		},
	}

	rolloutCmd.Flags().IntP("episodes", "n", 1, "Number of episodes to run. (Overrides config/env)")
	rolloutCmd.Flags().IntP("parallel", "p", 1, "Number of parallel environments. (Overrides config/env)")
	rolloutCmd.Flags().String("project", "", "Restrict tasks to a single project. (Overrides config/env)")
	rolloutCmd.Flags().Int64("seed", 0, "Random policy seed; 0 derives one from the clock. (Overrides config/env)")
	rolloutCmd.Flags().Bool("headless", true, "Run Chrome headless. (Overrides config/env)")

	return rolloutCmd
}

// restrictToProject narrows task generation to a single project when one is
// selected on the command line.
func restrictToProject(cfg *config.Config) {
	if cfg.Rollout.Project != "" {
		cfg.Tasks.Projects = []string{cfg.Rollout.Project}
	}
}

// rolloutComponents holds the initialized collaborators for one run.
type rolloutComponents struct {
	Runner *rollout.Runner
	Sink   schemas.EpisodeSink
}

// Shutdown releases everything the run held open. Environments close
// themselves; only the sink outlives the runner.
func (rc *rolloutComponents) Shutdown() {
	if rc.Sink != nil {
		rc.Sink.Close()
	}
}

// initializeRolloutComponents handles dependency injection for the rollout
// command.
func initializeRolloutComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rolloutComponents, error) {
	components := &rolloutComponents{}

	provider, err := taskgen.FromConfig(ctx, cfg.Tasks, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task provider: %w", err)
	}

	rewardModel, err := reward.FromConfig(cfg.Reward, logger)
	if err != nil {
		// A broken checkpoint degrades to unshaped rewards rather than
		// blocking the run.
		logger.Warn("Reward checkpoint unavailable; rewards stay unshaped.", zap.Error(err))
		rewardModel = nil
	}

	if cfg.Store.DSN != "" {
		sink, err := store.Open(ctx, cfg.Store.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open episode store: %w", err)
		}
		components.Sink = sink
	}

	sessions := newSessionFactory(cfg, logger)
	factory := func() (rollout.Environment, error) {
		return env.New(cfg, logger, provider, sessions, rewardModel)
	}

	runner, err := rollout.New(cfg.Rollout, factory, components.Sink, logger)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.Runner = runner

	return components, nil
}

// newSessionFactory opens one browser-backed session per episode. The driver
// serves as both the evaluator's page handle and the ranker's querier; the
// evaluator owns its teardown.
func newSessionFactory(cfg *config.Config, logger *zap.Logger) env.SessionFactory {
	return func(ctx context.Context, task schemas.Task) (*env.Session, error) {
		driver, err := browser.New(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, fmt.Errorf("launching browser session: %w", err)
		}
		return &env.Session{
			Evaluator: evaluator.New(task, driver, logger),
			Querier:   driver,
		}, nil
	}
}
