// Package reward loads and applies the optional learned reward model: a
// linear hashed-bag-of-words head over the rendered page text, blended with
// the environment's base reward.
package reward

import (
	"context"
	"fmt"
	"math"
	"os"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
	"github.com/xkilldash9x/webgym/internal/config"
	"github.com/xkilldash9x/webgym/internal/encode"
	"github.com/xkilldash9x/webgym/internal/htmltext"
)

const supportedVersion = 1

// checkpoint is the JSON layout produced by the offline training job.
type checkpoint struct {
	Version int       `json:"version"`
	Vocab   int       `json:"vocab"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Blend   float64   `json:"blend"`
}

// Model scores page text with a linear head over hashed token buckets. It is
// stateless across steps; Reset exists to satisfy the reward-model contract.
type Model struct {
	logger  *zap.Logger
	hasher  encode.TokenHasher
	vocab   int
	weights []float64
	bias    float64
	blend   float64
}

// Load reads and validates a checkpoint. A blend recorded in the checkpoint
// wins over the configured one; a checkpoint without one inherits it.
func Load(path string, blend float64, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reward checkpoint: %w", err)
	}

	var ck checkpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("parsing reward checkpoint %s: %w", path, err)
	}
	if ck.Version != supportedVersion {
		return nil, fmt.Errorf("unsupported reward checkpoint version %d, want %d", ck.Version, supportedVersion)
	}
	if ck.Vocab <= 0 {
		return nil, fmt.Errorf("reward checkpoint vocab must be positive, got %d", ck.Vocab)
	}
	if len(ck.Weights) != ck.Vocab {
		return nil, fmt.Errorf("reward checkpoint has %d weights for vocab %d", len(ck.Weights), ck.Vocab)
	}
	if ck.Blend < 0 || ck.Blend > 1 {
		return nil, fmt.Errorf("reward checkpoint blend must be in [0,1], got %v", ck.Blend)
	}
	if ck.Blend > 0 {
		blend = ck.Blend
	}

	logger.Named("reward").Info("Loaded reward checkpoint.",
		zap.String("path", path),
		zap.Int("vocab", ck.Vocab),
		zap.Float64("blend", blend),
	)

	return &Model{
		logger:  logger.Named("reward"),
		hasher:  encode.SHA256Hasher{},
		vocab:   ck.Vocab,
		weights: ck.Weights,
		bias:    ck.Bias,
		blend:   blend,
	}, nil
}

// FromConfig loads the configured model; an empty checkpoint path means no
// shaping and returns a nil interface.
func FromConfig(cfg config.RewardConfig, logger *zap.Logger) (schemas.RewardModel, error) {
	if cfg.CheckpointPath == "" {
		return nil, nil
	}
	model, err := Load(cfg.CheckpointPath, cfg.Blend, logger)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// Reset clears per-episode state. The linear head carries none.
func (m *Model) Reset() {}

// StepReward scores the page and blends it with the base reward.
func (m *Model) StepReward(ctx context.Context, url, html string, baseReward float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	score := m.score(html)
	shaped := m.blend*score + (1-m.blend)*baseReward
	m.logger.Debug("Shaped step reward.",
		zap.String("url", url),
		zap.Float64("model_score", score),
		zap.Float64("base", baseReward),
		zap.Float64("shaped", shaped),
	)
	return shaped, nil
}

// score sums bucket weights over every token occurrence, bag-of-words style,
// and squashes through a sigmoid into [0,1].
func (m *Model) score(html string) float64 {
	sum := m.bias
	for tok := range encode.Tokenize(htmltext.Extract(html)) {
		sum += m.weights[m.hasher.HashToken(tok, m.vocab)]
	}
	return sigmoid(sum)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
