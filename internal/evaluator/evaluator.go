// Package evaluator owns the live page for one episode. It executes resolved
// operations against the browser, keeps the append-only execution history,
// and scores the task's declared checks into a partial-success signal.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
)

// PageDriver is the slice of browser operations the evaluator consumes.
// *browser.Driver satisfies it; tests substitute fakes.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Apply(ctx context.Context, op schemas.Op) error
	Snapshot(ctx context.Context) (schemas.PageSnapshot, error)
	SelectorExists(ctx context.Context, selector string) (bool, error)
	DrainEvents() []schemas.BackendEvent
	Close() error
}

// Evaluator implements schemas.Evaluator for one task on one live page.
// Operation failures are recorded and reported, never fatal: the evaluator
// stays usable for the remainder of the episode.
type Evaluator struct {
	task   schemas.Task
	driver PageDriver
	logger *zap.Logger

	mu      sync.Mutex
	history []schemas.ExecutionRecord
	// events accumulates every backend event seen this episode, so
	// event_emitted checks can match emissions from any earlier step.
	events []schemas.BackendEvent

	closeOnce sync.Once
	closeErr  error
}

// New builds an evaluator for the task. The driver is owned by the evaluator
// from here on: Close tears it down.
func New(task schemas.Task, driver PageDriver, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		task:   task,
		driver: driver,
		logger: logger.Named("evaluator"),
	}
}

// Reset navigates to the task's entry URL and clears the episode state.
func (e *Evaluator) Reset(ctx context.Context) error {
	e.mu.Lock()
	e.history = nil
	e.events = nil
	e.driver.DrainEvents()
	e.mu.Unlock()

	if e.task.EntryURL == "" {
		return nil
	}
	if err := e.driver.Navigate(ctx, e.task.EntryURL); err != nil {
		return fmt.Errorf("navigating to entry url %q: %w", e.task.EntryURL, err)
	}
	return nil
}

// ExecuteAction performs one resolved operation and appends an execution
// record carrying the post-operation snapshot and any backend events the page
// emitted meanwhile. The record is appended even when the operation fails.
func (e *Evaluator) ExecuteAction(ctx context.Context, op schemas.Op) error {
	start := time.Now()
	execErr := e.driver.Apply(ctx, op)

	// Best effort: a dead page still yields a record, just an empty one.
	snap, snapErr := e.driver.Snapshot(ctx)
	if snapErr != nil {
		e.logger.Debug("Post-operation snapshot failed.", zap.Error(snapErr))
		snap = schemas.PageSnapshot{}
	}

	e.mu.Lock()
	batch := e.drainLocked()
	record := schemas.ExecutionRecord{
		Seq:      len(e.history),
		Op:       op,
		Snapshot: snap,
		Events:   batch,
		Duration: time.Since(start),
		At:       start.UTC(),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	e.history = append(e.history, record)
	e.mu.Unlock()

	if execErr != nil {
		return fmt.Errorf("executing %s: %w", op, execErr)
	}
	return nil
}

// RunWithTimeout executes the operation under its own deadline.
func (e *Evaluator) RunWithTimeout(ctx context.Context, op schemas.Op, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.ExecuteAction(ctx, op)
}

// Snapshot captures the current page HTML and URL.
func (e *Evaluator) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	return e.driver.Snapshot(ctx)
}

// History returns the execution records in append order.
func (e *Evaluator) History() []schemas.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]schemas.ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// Close releases the browser session. Idempotent.
func (e *Evaluator) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.driver.Close()
	})
	return e.closeErr
}

// drainLocked folds freshly harvested events into the episode accumulator and
// returns the new batch. Callers hold e.mu.
func (e *Evaluator) drainLocked() []schemas.BackendEvent {
	batch := e.driver.DrainEvents()
	if len(batch) > 0 {
		e.events = append(e.events, batch...)
	}
	return batch
}
