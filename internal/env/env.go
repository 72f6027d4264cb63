// Package env implements the episodic browser environment: a Gym-style
// reset/step loop over a live page, with a fixed discrete action space and
// fixed-shape observations.
package env

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
	"github.com/xkilldash9x/webgym/internal/encode"
	"github.com/xkilldash9x/webgym/internal/htmltext"
	"github.com/xkilldash9x/webgym/internal/rank"
)

// Sentinel errors for lifecycle misuse. Everything else that can go wrong
// mid-episode degrades to safe defaults instead of erroring.
var (
	// ErrNoTask is returned by Reset when no task could be obtained. An
	// environment cannot run without one.
	ErrNoTask = errors.New("env: no task available")
	// ErrNotReady is returned by Step before the first successful Reset.
	ErrNotReady = errors.New("env: reset required before step")
	// ErrEpisodeDone is returned by Step after termination or truncation.
	ErrEpisodeDone = errors.New("env: episode finished, reset required")
	// ErrClosed is returned by Reset and Step after Close.
	ErrClosed = errors.New("env: environment closed")
)

// maxReward is the terminal reward on success. It overrides any shaping.
const maxReward = 1.0

// featureDim is the length of each candidate's numeric feature vector:
// role class, five affordance flags, text length, and the two normalized
// center coordinates.
const featureDim = 9

// Session bundles the live collaborators backing one episode. The factory
// creates a fresh one per reset and the environment owns its teardown.
type Session struct {
	Evaluator schemas.Evaluator
	Querier   rank.PageQuerier
}

// SessionFactory opens a live browser session prepared for the given task.
type SessionFactory func(ctx context.Context, task schemas.Task) (*Session, error)

// Info carries per-call diagnostics alongside observations. The action mask
// under InfoActionMask is the only sanctioned way for a policy to discover
// action legality.
type Info map[string]any

// Info keys.
const (
	InfoActionMask   = "action_mask"
	InfoActionDesc   = "action_desc"
	InfoInvalid      = "invalid"
	InfoRawScore     = "raw_score"
	InfoTestsPassed  = "tests_passed"
	InfoTotalTests   = "total_tests"
	InfoRewardBase   = "reward_base"
	InfoRewardShaped = "reward_shaped"
	InfoEpisodeID    = "episode_id"
	InfoURL          = "url"
	InfoGoal         = "goal"
)

// StepResult is the full outcome of one environment step.
type StepResult struct {
	Observation schemas.Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        Info
}

type phase int

const (
	phaseUninitialized phase = iota
	phaseReady
	phaseTerminal
	phaseClosed
)

// Env is the episodic browser environment. All methods are safe for
// concurrent use, though an environment serves one episode at a time.
type Env struct {
	cfg      config.EnvConfig
	browser  config.BrowserConfig
	tasks    config.TasksConfig
	logger   *zap.Logger
	encoder  *encode.Encoder
	provider schemas.TaskProvider
	factory  SessionFactory
	reward   schemas.RewardModel
	layout   Layout

	mu        sync.Mutex
	phase     phase
	session   *Session
	ranker    *rank.Ranker
	task      schemas.Task
	episodeID string
	episodes  int
	stepCount int
	ring      *actionRing
	last      rank.Result
	lastScore schemas.PartialScore
	lastSnap  schemas.PageSnapshot
	record    schemas.EpisodeRecord
}

// New builds an environment from its configuration and collaborators. The
// reward model is optional; provider and factory are not.
func New(cfg *config.Config, logger *zap.Logger, provider schemas.TaskProvider, factory SessionFactory, reward schemas.RewardModel) (*Env, error) {
	if cfg == nil {
		return nil, errors.New("env: config must not be nil")
	}
	if provider == nil {
		return nil, errors.New("env: task provider must not be nil")
	}
	if factory == nil {
		return nil, errors.New("env: session factory must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		cfg:      cfg.Env,
		browser:  cfg.Browser,
		tasks:    cfg.Tasks,
		logger:   logger.Named("env"),
		encoder:  encode.New(nil),
		provider: provider,
		factory:  factory,
		reward:   reward,
		layout:   NewLayout(cfg.Env.TopK),
	}, nil
}

// Layout exposes the fixed action-space layout.
func (e *Env) Layout() Layout {
	return e.layout
}

// Task returns the task of the current or most recent episode.
func (e *Env) Task() schemas.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task
}

// Reset tears down any live session, obtains a task (the supplied one, or a
// generated one when task is nil), opens a fresh session, and returns the
// initial observation. A missing task is fatal; page-level failures during
// the initial capture degrade to empty observation fields.
func (e *Env) Reset(ctx context.Context, task *schemas.Task) (schemas.Observation, Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == phaseClosed {
		return schemas.Observation{}, nil, ErrClosed
	}

	e.teardownSessionLocked()

	next, err := e.obtainTask(ctx, task)
	if err != nil {
		return schemas.Observation{}, nil, err
	}

	session, err := e.factory(ctx, next)
	if err != nil {
		return schemas.Observation{}, nil, fmt.Errorf("env: opening session for task %q: %w", next.ID, err)
	}

	if e.reward != nil {
		e.reward.Reset()
	}

	e.task = next
	e.session = session
	e.ranker = rank.New(session.Querier, e.browser.WindowWidth, e.browser.WindowHeight, e.logger)
	e.episodeID = uuid.NewString()
	e.episodes++
	e.stepCount = 0
	e.ring = newActionRing(e.cfg.HistoryLen)
	e.last = rank.Result{}
	e.lastScore = schemas.PartialScore{}
	e.lastSnap = schemas.PageSnapshot{}
	e.record = schemas.EpisodeRecord{
		ID:        e.episodeID,
		TaskID:    next.ID,
		Project:   next.Project,
		Goal:      next.Goal,
		StartedAt: time.Now().UTC(),
	}
	e.phase = phaseReady

	if err := session.Evaluator.Reset(ctx); err != nil {
		e.logger.Warn("Entry navigation failed; starting episode from a blank page.",
			zap.String("episode_id", e.episodeID),
			zap.String("entry_url", next.EntryURL),
			zap.Error(err))
	}

	e.refreshPageStateLocked(ctx)

	e.logger.Info("Environment reset.",
		zap.String("episode_id", e.episodeID),
		zap.String("task_id", next.ID),
		zap.String("project", next.Project),
		zap.String("goal", next.Goal),
		zap.Int("candidates", len(e.last.Candidates)))

	info := e.baseInfoLocked()
	info[InfoGoal] = next.Goal
	return e.buildObservationLocked(), info, nil
}

// Step applies one discrete action and advances the episode. It returns the
// next observation, the reward, and the termination/truncation flags. Step
// itself only errors on lifecycle misuse; in-episode failures are folded into
// the invalid flag and safe defaults.
func (e *Env) Step(ctx context.Context, action int) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case phaseClosed:
		return StepResult{}, ErrClosed
	case phaseUninitialized:
		return StepResult{}, ErrNotReady
	case phaseTerminal:
		return StepResult{}, ErrEpisodeDone
	}

	e.ring.Push(action)

	op := e.layout.Resolve(action, e.last.Candidates, e.task)
	invalid := op.IsNoop()
	if !invalid {
		if err := e.session.Evaluator.RunWithTimeout(ctx, op, e.cfg.ActionTimeout); err != nil {
			e.logger.Debug("Action execution failed; counting the step as invalid.",
				zap.String("episode_id", e.episodeID),
				zap.Int("action", action),
				zap.String("op", op.String()),
				zap.Error(err))
			invalid = true
		}
	}

	e.refreshPageStateLocked(ctx)
	e.refreshScoreLocked(ctx)
	e.stepCount++

	penalty := e.cfg.StepPenalty
	if invalid {
		penalty += e.cfg.InvalidPenalty
	}
	base := math.Max(0, e.lastScore.RawScore-penalty)
	shaped := e.shapedRewardLocked(ctx, base)

	reward := shaped
	terminated := e.lastScore.Success
	truncated := e.stepCount >= e.cfg.MaxSteps
	if terminated {
		reward = maxReward
	}

	e.record.Steps = append(e.record.Steps, schemas.StepRecord{
		Index:      e.stepCount - 1,
		Action:     action,
		ActionDesc: op.String(),
		Invalid:    invalid,
		RawScore:   e.lastScore.RawScore,
		Reward:     reward,
		URL:        e.lastSnap.URL,
	})

	if terminated || truncated {
		e.phase = phaseTerminal
		e.record.FinishedAt = time.Now().UTC()
		e.record.FinalScore = e.lastScore.RawScore
		e.record.Success = terminated
		e.record.Truncated = truncated
		e.logger.Info("Episode finished.",
			zap.String("episode_id", e.episodeID),
			zap.Int("steps", e.stepCount),
			zap.Float64("final_score", e.lastScore.RawScore),
			zap.Bool("success", terminated),
			zap.Bool("truncated", truncated))
	}

	info := e.baseInfoLocked()
	info[InfoActionDesc] = op.String()
	info[InfoInvalid] = invalid
	info[InfoRewardBase] = base
	info[InfoRewardShaped] = shaped

	return StepResult{
		Observation: e.buildObservationLocked(),
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   truncated,
		Info:        info,
	}, nil
}

// ActionMask returns a fresh boolean mask over the full fixed action space.
// Index 0 (noop) is always legal; click slots mirror the current ranking's
// click mask; macro slots mirror the page-level macro availability.
func (e *Env) ActionMask() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actionMaskLocked()
}

// Episode returns a copy of the current episode's trace. Before the episode
// finishes the terminal fields are zero.
func (e *Env) Episode() schemas.EpisodeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.record
	rec.Steps = append([]schemas.StepRecord(nil), e.record.Steps...)
	return rec
}

// Close releases the live session and makes the environment permanently
// unusable. Close is idempotent and never fails.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseClosed {
		return nil
	}
	e.teardownSessionLocked()
	e.phase = phaseClosed
	e.logger.Debug("Environment closed.", zap.Int("episodes", e.episodes))
	return nil
}

func (e *Env) teardownSessionLocked() {
	if e.session == nil {
		return
	}
	if err := e.session.Evaluator.Close(); err != nil {
		e.logger.Warn("Session teardown reported an error; continuing.",
			zap.String("episode_id", e.episodeID),
			zap.Error(err))
	}
	e.session = nil
	e.ranker = nil
}

// obtainTask returns the override when supplied, otherwise asks the provider
// for the next project in round-robin order starting at the configured index.
func (e *Env) obtainTask(ctx context.Context, override *schemas.Task) (schemas.Task, error) {
	if override != nil {
		if override.Goal == "" {
			return schemas.Task{}, fmt.Errorf("%w: supplied task has no goal", ErrNoTask)
		}
		return *override, nil
	}
	if len(e.tasks.Projects) == 0 {
		return schemas.Task{}, fmt.Errorf("%w: no projects configured", ErrNoTask)
	}
	project := e.tasks.Projects[(e.tasks.StartIndex+e.episodes)%len(e.tasks.Projects)]
	task, err := e.provider.GenerateTask(ctx, project)
	if err != nil {
		return schemas.Task{}, fmt.Errorf("%w: generating task for project %q: %v", ErrNoTask, project, err)
	}
	if task.Goal == "" {
		return schemas.Task{}, fmt.Errorf("%w: provider returned a task with no goal for project %q", ErrNoTask, project)
	}
	return task, nil
}

// refreshPageStateLocked recaptures the snapshot and the ranking, each under
// its own budget. Failures substitute empty state and never propagate.
func (e *Env) refreshPageStateLocked(ctx context.Context) {
	snapCtx, cancel := context.WithTimeout(ctx, e.cfg.SnapshotTimeout)
	snap, err := e.session.Evaluator.Snapshot(snapCtx)
	cancel()
	if err != nil {
		e.logger.Debug("Snapshot failed; substituting an empty page.",
			zap.String("episode_id", e.episodeID),
			zap.Error(err))
		snap = schemas.PageSnapshot{}
	}
	e.lastSnap = snap

	rankCtx, cancel := context.WithTimeout(ctx, e.cfg.RankTimeout)
	e.last = e.ranker.TopK(rankCtx, e.task.Goal, e.cfg.TopK)
	cancel()
}

// refreshScoreLocked reevaluates the task checks. On failure the previous
// score is kept so progress never phantom-jumps on a transient error.
func (e *Env) refreshScoreLocked(ctx context.Context) {
	scoreCtx, cancel := context.WithTimeout(ctx, e.cfg.RankTimeout)
	defer cancel()
	score, err := e.session.Evaluator.PartialScore(scoreCtx)
	if err != nil {
		e.logger.Debug("Partial score unavailable; keeping the previous one.",
			zap.String("episode_id", e.episodeID),
			zap.Error(err))
		return
	}
	e.lastScore = score
}

// shapedRewardLocked blends in the reward model when configured. Any model
// failure silently falls back to the base reward.
func (e *Env) shapedRewardLocked(ctx context.Context, base float64) float64 {
	if e.reward == nil {
		return base
	}
	shaped, err := e.reward.StepReward(ctx, e.lastSnap.URL, e.lastSnap.HTML, base)
	if err != nil {
		e.logger.Debug("Reward model failed; using the base reward.",
			zap.String("episode_id", e.episodeID),
			zap.Error(err))
		return base
	}
	return shaped
}

func (e *Env) actionMaskLocked() []bool {
	mask := make([]bool, e.layout.Size())
	mask[0] = true
	for i := 0; i < e.layout.K && i < len(e.last.ClickMask); i++ {
		mask[1+i] = e.last.ClickMask[i]
	}
	for j, name := range e.layout.Macros {
		mask[1+e.layout.K+j] = e.last.Macros[name]
	}
	return mask
}

func (e *Env) baseInfoLocked() Info {
	return Info{
		InfoActionMask:  e.actionMaskLocked(),
		InfoEpisodeID:   e.episodeID,
		InfoURL:         e.lastSnap.URL,
		InfoRawScore:    e.lastScore.RawScore,
		InfoTestsPassed: e.lastScore.TestsPassed,
		InfoTotalTests:  e.lastScore.TotalTests,
	}
}

// buildObservationLocked renders the current page state into the fixed-shape
// observation. Every array is truncated or zero-padded to its configured
// length so the shape never varies with page size.
func (e *Env) buildObservationLocked() schemas.Observation {
	obs := schemas.Observation{
		GoalTokens:    e.encoder.EncodeText(e.task.Goal, e.cfg.GoalTokenLimit, e.cfg.GoalVocab),
		PageTokens:    e.encoder.EncodeText(htmltext.Extract(e.lastSnap.HTML), e.cfg.PageTokenLimit, e.cfg.PageVocab),
		ActionHistory: e.ring.Tokens(),
		Candidates:    make([]schemas.CandidateFeature, e.cfg.TopK),
		LastScore:     e.lastScore.RawScore,
	}
	// An empty URL (blank or failed page) keeps the zero padding token.
	if e.lastSnap.URL != "" {
		obs.URLToken = e.encoder.HashToken(e.lastSnap.URL, e.cfg.URLVocab)
	}
	for i := range obs.Candidates {
		if i < len(e.last.Candidates) {
			obs.Candidates[i] = e.candidateFeature(e.last.Candidates[i])
		} else {
			obs.Candidates[i] = schemas.CandidateFeature{
				Tokens:   make([]int32, e.cfg.CandTokenLimit),
				Features: make([]float64, featureDim),
			}
		}
	}
	return obs
}

func (e *Env) candidateFeature(c schemas.Candidate) schemas.CandidateFeature {
	f := make([]float64, featureDim)
	f[0] = float64(schemas.RoleClass(c.Role))
	f[1] = boolFeature(c.Clickable)
	f[2] = boolFeature(c.Focusable)
	f[3] = boolFeature(c.Editable)
	f[4] = boolFeature(c.Visible)
	f[5] = boolFeature(c.Enabled)
	f[6] = math.Min(1, float64(len([]rune(c.Text)))/64)
	if cx, cy, ok := c.BBox.Center(); ok && e.browser.WindowWidth > 0 && e.browser.WindowHeight > 0 {
		f[7] = clamp01(float64(cx) / float64(e.browser.WindowWidth))
		f[8] = clamp01(float64(cy) / float64(e.browser.WindowHeight))
	}
	return schemas.CandidateFeature{
		Tokens:   e.encoder.EncodeText(c.Text, e.cfg.CandTokenLimit, e.cfg.PageVocab),
		Features: f,
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
