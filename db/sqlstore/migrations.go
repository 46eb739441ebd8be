package sqlstore

import (
	"context"
	"fmt"
	"time"
)

var createRunsTable = map[Dialect]string{
	Postgres: `
		CREATE TABLE IF NOT EXISTS optimization_runs (
			id            UUID PRIMARY KEY,
			model_version VARCHAR(128) NOT NULL,
			category      VARCHAR(128) NOT NULL,
			cogs          DOUBLE PRECISION NOT NULL,
			freight       DOUBLE PRECISION NOT NULL,
			comp1         DOUBLE PRECISION NOT NULL,
			comp2         DOUBLE PRECISION NOT NULL,
			comp3         DOUBLE PRECISION NOT NULL,
			score         DOUBLE PRECISION NOT NULL,
			customers     BIGINT NOT NULL,
			optimal_price NUMERIC(18, 4) NOT NULL,
			max_profit    NUMERIC(18, 4) NOT NULL,
			predicted_qty DOUBLE PRECISION NOT NULL,
			search_min    NUMERIC(18, 4) NOT NULL,
			search_max    NUMERIC(18, 4) NOT NULL,
			samples       INT NOT NULL,
			skipped       INT NOT NULL,
			duration_us   BIGINT NOT NULL,
			cache_hit     BOOLEAN NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		);
	`,
	MySQL: `
		CREATE TABLE IF NOT EXISTS optimization_runs (
			id            CHAR(36) PRIMARY KEY,
			model_version VARCHAR(128) NOT NULL,
			category      VARCHAR(128) NOT NULL,
			cogs          DOUBLE NOT NULL,
			freight       DOUBLE NOT NULL,
			comp1         DOUBLE NOT NULL,
			comp2         DOUBLE NOT NULL,
			comp3         DOUBLE NOT NULL,
			score         DOUBLE NOT NULL,
			customers     BIGINT NOT NULL,
			optimal_price DECIMAL(18, 4) NOT NULL,
			max_profit    DECIMAL(18, 4) NOT NULL,
			predicted_qty DOUBLE NOT NULL,
			search_min    DECIMAL(18, 4) NOT NULL,
			search_max    DECIMAL(18, 4) NOT NULL,
			samples       INT NOT NULL,
			skipped       INT NOT NULL,
			duration_us   BIGINT NOT NULL,
			cache_hit     BOOLEAN NOT NULL,
			created_at    DATETIME(3) NOT NULL,
			INDEX idx_runs_created_at (created_at)
		);
	`,
}

const createRunsIndexPostgres = `CREATE INDEX IF NOT EXISTS idx_runs_created_at ON optimization_runs (created_at)`

// EnsureSchema creates the runs table if it does not exist, retrying while
// the database is still starting.
func (s *Store) EnsureSchema(ctx context.Context, retries int) error {
	stmts := []string{createRunsTable[s.dialect]}
	if s.dialect == Postgres {
		stmts = append(stmts, createRunsIndexPostgres)
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = s.exec(ctx, stmts); err == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("failed to migrate optimization_runs: %w", err)
}

func (s *Store) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
