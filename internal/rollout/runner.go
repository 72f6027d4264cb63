// Package rollout runs batches of episodes against parallel environments
// using a masked uniform-random policy. It exists to exercise the full
// stack end to end and to collect traces; it is not a training loop.
package rollout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
	"github.com/xkilldash9x/webgym/internal/env"
)

// Environment is the surface the runner drives. *env.Env satisfies it.
type Environment interface {
	Reset(ctx context.Context, task *schemas.Task) (schemas.Observation, env.Info, error)
	Step(ctx context.Context, action int) (env.StepResult, error)
	ActionMask() []bool
	Episode() schemas.EpisodeRecord
	Close() error
}

// EnvFactory builds one environment per worker. Each worker owns its
// environment for the lifetime of the run.
type EnvFactory func() (Environment, error)

// Summary aggregates the outcome of one Run call.
type Summary struct {
	Episodes    int
	Successes   int
	Truncated   int
	Steps       int
	TotalReward float64
}

// SuccessRate is the fraction of completed episodes that succeeded.
func (s Summary) SuccessRate() float64 {
	if s.Episodes == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Episodes)
}

// Runner executes a fixed number of episodes across parallel workers.
type Runner struct {
	cfg     config.RolloutConfig
	factory EnvFactory
	sink    schemas.EpisodeSink
	logger  *zap.Logger
}

// New builds a runner. The sink is optional; the factory is not.
func New(cfg config.RolloutConfig, factory EnvFactory, sink schemas.EpisodeSink, logger *zap.Logger) (*Runner, error) {
	if factory == nil {
		return nil, fmt.Errorf("rollout: environment factory must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		factory: factory,
		sink:    sink,
		logger:  logger.Named("rollout"),
	}, nil
}

// Run executes the configured number of episodes and blocks until they all
// finish or a worker fails. Episode indices are claimed from a shared counter
// so workers that finish early pick up the remaining work.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	total := r.cfg.Episodes
	workers := r.cfg.Parallel
	if workers > total {
		workers = total
	}

	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r.logger.Info("Starting rollout.",
		zap.Int("episodes", total),
		zap.Int("workers", workers),
		zap.Int64("seed", seed))

	var (
		mu      sync.Mutex
		summary Summary
		next    atomic.Int64
	)

	g, groupCtx := errgroup.WithContext(ctx)
	for worker := 0; worker < workers; worker++ {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(worker+1)))
		g.Go(func() error {
			e, err := r.factory()
			if err != nil {
				return fmt.Errorf("building environment for worker %d: %w", worker, err)
			}
			defer func() {
				if closeErr := e.Close(); closeErr != nil {
					r.logger.Warn("Environment close reported an error.",
						zap.Int("worker", worker),
						zap.Error(closeErr))
				}
			}()

			for {
				claim := next.Add(1)
				if claim > int64(total) {
					return nil
				}
				out, err := r.runEpisode(groupCtx, e, rng, worker, int(claim))
				if err != nil {
					return err
				}
				r.persist(groupCtx, out.record)

				mu.Lock()
				summary.Episodes++
				summary.Steps += out.steps
				summary.TotalReward += out.reward
				if out.record.Success {
					summary.Successes++
				}
				if out.record.Truncated {
					summary.Truncated++
				}
				mu.Unlock()

				r.logger.Info("Episode complete.",
					zap.Int("worker", worker),
					zap.Int("episode", int(claim)),
					zap.String("episode_id", out.record.ID),
					zap.Int("steps", out.steps),
					zap.Float64("reward", out.reward),
					zap.Float64("final_score", out.record.FinalScore),
					zap.Bool("success", out.record.Success),
					zap.Bool("truncated", out.record.Truncated))
			}
		})
	}

	err := g.Wait()
	r.logger.Info("Rollout finished.",
		zap.Int("episodes", summary.Episodes),
		zap.Int("successes", summary.Successes),
		zap.Int("truncated", summary.Truncated),
		zap.Int("steps", summary.Steps),
		zap.Float64("success_rate", summary.SuccessRate()))
	return summary, err
}

type episodeOutcome struct {
	record schemas.EpisodeRecord
	reward float64
	steps  int
}

// runEpisode resets the environment and samples mask-legal actions until the
// episode terminates or truncates. The environment bounds episode length, so
// the loop always ends; cancellation is checked each step so a shutdown
// signal does not strand a worker mid-episode.
func (r *Runner) runEpisode(ctx context.Context, e Environment, rng *rand.Rand, worker, episode int) (episodeOutcome, error) {
	_, info, err := e.Reset(ctx, nil)
	if err != nil {
		return episodeOutcome{}, fmt.Errorf("resetting environment for episode %d: %w", episode, err)
	}

	var out episodeOutcome
	for {
		if err := ctx.Err(); err != nil {
			return episodeOutcome{}, err
		}

		action := sampleAction(rng, maskFrom(info, e.ActionMask))
		res, err := e.Step(ctx, action)
		if err != nil {
			return episodeOutcome{}, fmt.Errorf("stepping episode %d: %w", episode, err)
		}
		out.steps++
		out.reward += res.Reward

		r.logger.Debug("Step executed.",
			zap.Int("worker", worker),
			zap.Int("episode", episode),
			zap.Int("step", out.steps),
			zap.Int("action", action),
			zap.Any("action_desc", res.Info[env.InfoActionDesc]),
			zap.Any("invalid", res.Info[env.InfoInvalid]),
			zap.Float64("reward", res.Reward))

		info = res.Info
		if res.Terminated || res.Truncated {
			out.record = e.Episode()
			return out, nil
		}
	}
}

// persist hands the finished episode to the sink. Persistence failures are
// logged and swallowed; they must never stop the rollout.
func (r *Runner) persist(ctx context.Context, record schemas.EpisodeRecord) {
	if r.sink == nil {
		return
	}
	if err := r.sink.PersistEpisode(ctx, record); err != nil {
		r.logger.Warn("Failed to persist episode; continuing.",
			zap.String("episode_id", record.ID),
			zap.Error(err))
	}
}

// maskFrom prefers the mask published in step info and falls back to asking
// the environment directly.
func maskFrom(info env.Info, fallback func() []bool) []bool {
	if mask, ok := info[env.InfoActionMask].([]bool); ok && len(mask) > 0 {
		return mask
	}
	return fallback()
}

// sampleAction draws uniformly from the legal actions. Noop is always legal,
// so a well-formed mask never leaves the draw empty.
func sampleAction(rng *rand.Rand, mask []bool) int {
	legal := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			legal = append(legal, i)
		}
	}
	if len(legal) == 0 {
		return 0
	}
	return legal[rng.IntN(len(legal))]
}
