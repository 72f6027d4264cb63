// Package taskgen produces the tasks an environment resets onto: a
// deterministic static catalog per project, and an optional LLM-backed
// generator that falls back to the catalog whenever generation fails.
package taskgen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
)

// Static serves the seed catalog, cycling through each project's tasks from
// the configured start index. Generation is deterministic apart from the
// task IDs.
type Static struct {
	baseURL    string
	startIndex int
	logger     *zap.Logger

	mu   sync.Mutex
	next map[string]int
}

// NewStatic builds the catalog-backed provider.
func NewStatic(cfg config.TasksConfig, logger *zap.Logger) *Static {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{
		baseURL:    cfg.BaseURL,
		startIndex: cfg.StartIndex,
		logger:     logger.Named("taskgen.static"),
		next:       make(map[string]int),
	}
}

// GenerateTask returns the project's next catalog task.
func (s *Static) GenerateTask(_ context.Context, project string) (schemas.Task, error) {
	seeds, ok := seedCatalog[project]
	if !ok || len(seeds) == 0 {
		return schemas.Task{}, fmt.Errorf("no task catalog for project %q", project)
	}

	s.mu.Lock()
	idx, seen := s.next[project]
	if !seen {
		idx = s.startIndex
	}
	seed := seeds[idx%len(seeds)]
	s.next[project] = idx + 1
	s.mu.Unlock()

	task := schemas.Task{
		ID:       uuid.NewString(),
		Project:  project,
		Goal:     seed.goal,
		EntryURL: joinURL(s.baseURL, seed.path),
		Aux:      seed.aux,
		Checks:   seed.checks,
	}
	s.logger.Debug("Serving catalog task.",
		zap.String("project", project),
		zap.String("goal", task.Goal),
	)
	return task, nil
}

// FromConfig builds the provider selected by tasks.provider.
func FromConfig(ctx context.Context, cfg config.TasksConfig, logger *zap.Logger) (schemas.TaskProvider, error) {
	static := NewStatic(cfg, logger)

	switch cfg.Provider {
	case "", "static":
		return static, nil
	case "llm":
		gen, err := newGeminiGenerator(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("building llm task provider: %w", err)
		}
		return NewLLM(gen, static, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown task provider %q, supported: [static, llm]", cfg.Provider)
	}
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
