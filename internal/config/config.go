package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/webgym/internal/observability"
)

// Config is the root configuration for the environment and its collaborators.
// Every field is optional and defaulted; a zero config file is a valid one.
type Config struct {
	Logger  observability.LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Env     EnvConfig                  `mapstructure:"env" yaml:"env"`
	Browser BrowserConfig              `mapstructure:"browser" yaml:"browser"`
	Tasks   TasksConfig                `mapstructure:"tasks" yaml:"tasks"`
	Reward  RewardConfig               `mapstructure:"reward" yaml:"reward"`
	Store   StoreConfig                `mapstructure:"store" yaml:"store"`
	Rollout RolloutConfig              `mapstructure:"rollout" yaml:"rollout"`
}

// EnvConfig shapes the action/observation contract of a single environment
// instance. These values are fixed for the lifetime of an instance: the
// action-space size and every observation array length derive from them.
type EnvConfig struct {
	TopK           int     `mapstructure:"top_k" yaml:"top_k"`
	MaxSteps       int     `mapstructure:"max_steps" yaml:"max_steps"`
	HistoryLen     int     `mapstructure:"history_len" yaml:"history_len"`
	GoalVocab      int     `mapstructure:"goal_vocab" yaml:"goal_vocab"`
	PageVocab      int     `mapstructure:"page_vocab" yaml:"page_vocab"`
	URLVocab       int     `mapstructure:"url_vocab" yaml:"url_vocab"`
	GoalTokenLimit int     `mapstructure:"goal_token_limit" yaml:"goal_token_limit"`
	PageTokenLimit int     `mapstructure:"page_token_limit" yaml:"page_token_limit"`
	CandTokenLimit int     `mapstructure:"cand_token_limit" yaml:"cand_token_limit"`
	StepPenalty    float64 `mapstructure:"step_penalty" yaml:"step_penalty"`
	InvalidPenalty float64 `mapstructure:"invalid_penalty" yaml:"invalid_penalty"`

	// Distinct budgets per browser-facing phase. A timeout substitutes the
	// safe empty default for that phase; it never aborts the episode.
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" yaml:"snapshot_timeout"`
	RankTimeout     time.Duration `mapstructure:"rank_timeout" yaml:"rank_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ActionSpaceSize is 1 (noop) + K click slots + the fixed macro count.
func (e EnvConfig) ActionSpaceSize(macros int) int {
	return 1 + e.TopK + macros
}

// BrowserConfig controls the Chrome session backing each episode.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizeTimeout  time.Duration `mapstructure:"stabilize_timeout" yaml:"stabilize_timeout"`
}

// TasksConfig selects and parameterizes the task provider.
type TasksConfig struct {
	// Provider is "static" (seed catalog) or "llm" (generated, with the
	// static catalog as fallback).
	Provider   string   `mapstructure:"provider" yaml:"provider"`
	Projects   []string `mapstructure:"projects" yaml:"projects"`
	StartIndex int      `mapstructure:"start_index" yaml:"start_index"`
	BaseURL    string   `mapstructure:"base_url" yaml:"base_url"`
	Model      string   `mapstructure:"model" yaml:"model"`
	APIKeyEnv  string   `mapstructure:"api_key_env" yaml:"api_key_env"`
	RatePerMin float64  `mapstructure:"rate_per_min" yaml:"rate_per_min"`
}

// RewardConfig wires the optional learned reward model.
type RewardConfig struct {
	CheckpointPath string  `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
	Blend          float64 `mapstructure:"blend" yaml:"blend"`
}

// StoreConfig wires the optional episode sink. An empty DSN disables it.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// RolloutConfig parameterizes the rollout command.
type RolloutConfig struct {
	Episodes int    `mapstructure:"episodes" yaml:"episodes"`
	Parallel int    `mapstructure:"parallel" yaml:"parallel"`
	Project  string `mapstructure:"project" yaml:"project"`
	Seed     int64  `mapstructure:"seed" yaml:"seed"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webgym")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Environment --
	v.SetDefault("env.top_k", 12)
	v.SetDefault("env.max_steps", 30)
	v.SetDefault("env.history_len", 8)
	v.SetDefault("env.goal_vocab", 50000)
	v.SetDefault("env.page_vocab", 50000)
	v.SetDefault("env.url_vocab", 10000)
	v.SetDefault("env.goal_token_limit", 32)
	v.SetDefault("env.page_token_limit", 256)
	v.SetDefault("env.cand_token_limit", 8)
	v.SetDefault("env.step_penalty", 0.01)
	v.SetDefault("env.invalid_penalty", 0.1)
	v.SetDefault("env.snapshot_timeout", "3s")
	v.SetDefault("env.rank_timeout", "10s")
	v.SetDefault("env.action_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.stabilize_timeout", "10s")

	// -- Tasks --
	v.SetDefault("tasks.provider", "static")
	v.SetDefault("tasks.projects", []string{"shop", "forum", "crm"})
	v.SetDefault("tasks.start_index", 0)
	v.SetDefault("tasks.base_url", "http://127.0.0.1:8080")
	v.SetDefault("tasks.model", "gemini-2.5-flash")
	v.SetDefault("tasks.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("tasks.rate_per_min", 6)

	// -- Reward --
	v.SetDefault("reward.checkpoint_path", "")
	v.SetDefault("reward.blend", 0.5)

	// -- Store --
	v.SetDefault("store.dsn", "")

	// -- Rollout --
	v.SetDefault("rollout.episodes", 1)
	v.SetDefault("rollout.parallel", 1)
	v.SetDefault("rollout.project", "")
	v.SetDefault("rollout.seed", 0)
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are authored here; failing to unmarshal them is a bug.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that already has defaults, file contents, and env bindings.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Malformed configuration
// is one of the two user-visible failure modes, so messages name the exact
// key.
func (c *Config) Validate() error {
	if c.Env.TopK <= 0 {
		return fmt.Errorf("env.top_k must be a positive integer")
	}
	if c.Env.MaxSteps <= 0 {
		return fmt.Errorf("env.max_steps must be a positive integer")
	}
	if c.Env.HistoryLen <= 0 {
		return fmt.Errorf("env.history_len must be a positive integer")
	}
	for key, val := range map[string]int{
		"env.goal_vocab":       c.Env.GoalVocab,
		"env.page_vocab":       c.Env.PageVocab,
		"env.url_vocab":        c.Env.URLVocab,
		"env.goal_token_limit": c.Env.GoalTokenLimit,
		"env.page_token_limit": c.Env.PageTokenLimit,
		"env.cand_token_limit": c.Env.CandTokenLimit,
	} {
		if val <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
	}
	if c.Env.StepPenalty < 0 || c.Env.InvalidPenalty < 0 {
		return fmt.Errorf("env.step_penalty and env.invalid_penalty must not be negative")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive")
	}
	switch c.Tasks.Provider {
	case "static", "llm":
	default:
		return fmt.Errorf("tasks.provider must be one of: static, llm")
	}
	if len(c.Tasks.Projects) == 0 {
		return fmt.Errorf("tasks.projects must name at least one project")
	}
	if c.Tasks.StartIndex < 0 {
		return fmt.Errorf("tasks.start_index must not be negative")
	}
	if c.Reward.Blend < 0 || c.Reward.Blend > 1 {
		return fmt.Errorf("reward.blend must be between 0.0 and 1.0")
	}
	if c.Rollout.Episodes <= 0 {
		return fmt.Errorf("rollout.episodes must be a positive integer")
	}
	if c.Rollout.Parallel <= 0 {
		return fmt.Errorf("rollout.parallel must be a positive integer")
	}
	return nil
}
