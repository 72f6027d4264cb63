package schemas

import (
	"context"
	"time"
)

// -- Task Provider --

// TaskProvider produces tasks for a named project. The environment consumes
// it on reset only when the caller did not supply a task explicitly. An error
// here is fatal to the reset: an environment cannot run without a task.
type TaskProvider interface {
	GenerateTask(ctx context.Context, project string) (Task, error)
}

// -- Evaluator --

// Evaluator owns the live page for one episode. It executes resolved
// operations, captures snapshots, scores progress against the task's checks,
// and keeps an append-only execution history whose entries carry the page
// snapshot and any backend events emitted during the operation.
//
// Implementations must tolerate operation failures: a failed or timed-out
// operation is recorded in the history and reported as an error, but the
// evaluator stays usable for the rest of the episode.
type Evaluator interface {
	// Reset navigates to the task's entry point and clears history.
	Reset(ctx context.Context) error
	// ExecuteAction performs one resolved operation and appends a record.
	ExecuteAction(ctx context.Context, op Op) error
	// RunWithTimeout executes the operation under its own deadline.
	RunWithTimeout(ctx context.Context, op Op, timeout time.Duration) error
	// Snapshot captures the current page HTML and URL.
	Snapshot(ctx context.Context) (PageSnapshot, error)
	// PartialScore evaluates the task's checks against the live page.
	PartialScore(ctx context.Context) (PartialScore, error)
	// History returns the append-only execution records in order.
	History() []ExecutionRecord
	// Close releases the underlying session. Idempotent.
	Close() error
}

// -- Reward Model --

// RewardModel optionally reshapes the environment's base reward from page
// state. Scoring failures are non-fatal by contract: the caller silently
// falls back to the unshaped reward.
type RewardModel interface {
	// Reset clears any per-episode state.
	Reset()
	// StepReward returns the shaped reward for the current page given the
	// already-computed base reward.
	StepReward(ctx context.Context, url, html string, baseReward float64) (float64, error)
}

// -- Episode Sink --

// EpisodeSink persists completed episodes. Persistence failures must never
// terminate an episode loop; callers log and continue.
type EpisodeSink interface {
	PersistEpisode(ctx context.Context, episode EpisodeRecord) error
	Close()
}
