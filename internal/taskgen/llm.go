package taskgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
)

// textGenerator is the narrow generation surface the LLM provider consumes.
// The gemini adapter satisfies it; tests script it.
type textGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// LLM generates novel tasks through a text model, rate limited, with the
// static catalog as fallback for any generation or parse failure. Task
// generation must never fail an episode reset as long as the catalog can
// serve the project.
type LLM struct {
	gen      textGenerator
	fallback *Static
	limiter  *rate.Limiter
	baseURL  string
	logger   *zap.Logger
}

// NewLLM wires a generator with its fallback. Rate limiting follows
// tasks.rate_per_min with no burst beyond a single request.
func NewLLM(gen textGenerator, fallback *Static, cfg config.TasksConfig, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 6
	}
	return &LLM{
		gen:      gen,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Limit(perMin/60.0), 1),
		baseURL:  cfg.BaseURL,
		logger:   logger.Named("taskgen.llm"),
	}
}

// generatedTask is the JSON shape the model is asked to produce.
type generatedTask struct {
	Goal      string `json:"goal"`
	Path      string `json:"path"`
	InputText string `json:"input_text"`
	Checks    []struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	} `json:"checks"`
}

// GenerateTask asks the model for a task and falls back to the catalog on
// any failure.
func (l *LLM) GenerateTask(ctx context.Context, project string) (schemas.Task, error) {
	task, err := l.generate(ctx, project)
	if err == nil {
		return task, nil
	}
	l.logger.Warn("LLM task generation failed; using the static catalog.",
		zap.String("project", project),
		zap.Error(err),
	)
	return l.fallback.GenerateTask(ctx, project)
}

func (l *LLM) generate(ctx context.Context, project string) (schemas.Task, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return schemas.Task{}, fmt.Errorf("rate limiter: %w", err)
	}

	raw, err := l.gen.GenerateJSON(ctx, taskPrompt(project))
	if err != nil {
		return schemas.Task{}, err
	}

	var gen generatedTask
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return schemas.Task{}, fmt.Errorf("parsing generated task: %w", err)
	}
	if strings.TrimSpace(gen.Goal) == "" {
		return schemas.Task{}, fmt.Errorf("generated task has no goal")
	}

	task := schemas.Task{
		ID:       uuid.NewString(),
		Project:  project,
		Goal:     strings.TrimSpace(gen.Goal),
		EntryURL: joinURL(l.baseURL, gen.Path),
	}
	if text := strings.TrimSpace(gen.InputText); text != "" {
		task.Aux = map[string]string{schemas.AuxInputText: text}
	}
	for _, c := range gen.Checks {
		kind := schemas.CheckKind(c.Kind)
		switch kind {
		case schemas.CheckURLContains, schemas.CheckTextPresent,
			schemas.CheckSelectorExists, schemas.CheckEventEmitted:
			task.Checks = append(task.Checks, schemas.Check{Kind: kind, Value: c.Value})
		default:
			l.logger.Debug("Dropping generated check of unknown kind.", zap.String("kind", c.Kind))
		}
	}

	l.logger.Info("Generated task.",
		zap.String("project", project),
		zap.String("goal", task.Goal),
		zap.Int("checks", len(task.Checks)),
	)
	return task, nil
}

func taskPrompt(project string) string {
	return fmt.Sprintf(`You write tasks for a reinforcement-learning agent that operates a web
application through clicks, typing, and scrolling. The application under test
is a demo %q site served locally.

Produce ONE task as a single JSON object with these fields:
  goal        - one imperative sentence a human could follow on the site
  path        - the URL path the episode starts on, beginning with "/"
  input_text  - literal text the agent should type if the goal involves typing, else ""
  checks      - 1 to 3 verifiable conditions, each {"kind": ..., "value": ...},
                kind one of "url_contains", "text_present", "selector_exists", "event_emitted"

The goal must be achievable within 30 interactions. Respond with only the JSON object.`, project)
}
