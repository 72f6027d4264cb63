// Package store persists completed episodes to PostgreSQL. It is optional
// infrastructure: the environment never depends on it, and the rollout
// runner wires it only when a DSN is configured.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL episode sink.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New wraps an existing pool after verifying the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging episode store: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Open connects to the DSN and creates the episode tables when missing.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting episode store: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Each DDL statement runs as its own Exec: multi-statement strings do not
// survive the extended query protocol.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS episodes (
        id          TEXT PRIMARY KEY,
        task_id     TEXT NOT NULL,
        project     TEXT NOT NULL,
        goal        TEXT NOT NULL,
        started_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL,
        final_score DOUBLE PRECISION NOT NULL,
        success     BOOLEAN NOT NULL,
        truncated   BOOLEAN NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS episode_steps (
        episode_id  TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
        step_index  INTEGER NOT NULL,
        action      INTEGER NOT NULL,
        action_desc TEXT NOT NULL,
        invalid     BOOLEAN NOT NULL,
        raw_score   DOUBLE PRECISION NOT NULL,
        reward      DOUBLE PRECISION NOT NULL,
        url         TEXT NOT NULL,
        PRIMARY KEY (episode_id, step_index)
    );`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensuring episode schema: %w", err)
		}
	}
	return nil
}

const insertEpisodeSQL = `
    INSERT INTO episodes (id, task_id, project, goal, started_at, finished_at, final_score, success, truncated)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

var stepColumns = []string{"episode_id", "step_index", "action", "action_desc", "invalid", "raw_score", "reward", "url"}

// PersistEpisode writes the episode row and bulk-inserts its steps inside one
// transaction. Timestamps are normalized to UTC before insertion.
func (s *Store) PersistEpisode(ctx context.Context, episode schemas.EpisodeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning episode transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to roll back episode transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertEpisodeSQL,
		episode.ID, episode.TaskID, episode.Project, episode.Goal,
		episode.StartedAt.UTC(), episode.FinishedAt.UTC(),
		episode.FinalScore, episode.Success, episode.Truncated,
	); err != nil {
		return fmt.Errorf("inserting episode %s: %w", episode.ID, err)
	}

	if len(episode.Steps) > 0 {
		rows := make([][]interface{}, len(episode.Steps))
		for i, step := range episode.Steps {
			rows[i] = []interface{}{
				episode.ID, step.Index, step.Action, step.ActionDesc,
				step.Invalid, step.RawScore, step.Reward, step.URL,
			}
		}

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"episode_steps"}, stepColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copying %d episode steps: %w", len(episode.Steps), err)
		}
		if int(copied) != len(episode.Steps) {
			return fmt.Errorf("copied %d of %d episode steps", copied, len(episode.Steps))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing episode transaction: %w", err)
	}

	s.log.Debug("Persisted episode.",
		zap.String("episode_id", episode.ID),
		zap.Int("steps", len(episode.Steps)),
	)
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
