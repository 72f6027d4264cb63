package evaluator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/htmltext"
)

// PartialScore evaluates the task's declared checks against the live page.
// The raw score is the passed fraction; success requires every check to pass
// and at least one check to exist. Tasks without checks score zero forever.
func (e *Evaluator) PartialScore(ctx context.Context) (schemas.PartialScore, error) {
	total := len(e.task.Checks)
	if total == 0 {
		return schemas.PartialScore{}, nil
	}

	snap, err := e.driver.Snapshot(ctx)
	if err != nil {
		return schemas.PartialScore{}, fmt.Errorf("scoring snapshot: %w", err)
	}

	e.mu.Lock()
	e.drainLocked()
	events := make([]schemas.BackendEvent, len(e.events))
	copy(events, e.events)
	e.mu.Unlock()

	pageText := strings.ToLower(htmltext.Extract(snap.HTML))

	passed := 0
	for _, check := range e.task.Checks {
		ok, err := e.evaluateCheck(ctx, check, snap, pageText, events)
		if err != nil {
			return schemas.PartialScore{}, err
		}
		if ok {
			passed++
		}
	}

	return schemas.PartialScore{
		RawScore:    float64(passed) / float64(total),
		TestsPassed: passed,
		TotalTests:  total,
		Success:     passed == total,
	}, nil
}

func (e *Evaluator) evaluateCheck(ctx context.Context, check schemas.Check, snap schemas.PageSnapshot, pageText string, events []schemas.BackendEvent) (bool, error) {
	switch check.Kind {
	case schemas.CheckURLContains:
		return strings.Contains(snap.URL, check.Value), nil
	case schemas.CheckTextPresent:
		return strings.Contains(pageText, strings.ToLower(check.Value)), nil
	case schemas.CheckSelectorExists:
		ok, err := e.driver.SelectorExists(ctx, check.Value)
		if err != nil {
			return false, fmt.Errorf("selector check %q: %w", check.Value, err)
		}
		return ok, nil
	case schemas.CheckEventEmitted:
		return eventMatches(events, check.Value), nil
	default:
		e.logger.Warn("Unknown check kind counts as failed.", zap.String("kind", string(check.Kind)))
		return false, nil
	}
}

// eventMatches reports whether any harvested event carries the value as its
// name or anywhere in its payload.
func eventMatches(events []schemas.BackendEvent, value string) bool {
	for _, ev := range events {
		if ev.Name == value || strings.Contains(ev.Payload, value) {
			return true
		}
	}
	return false
}
