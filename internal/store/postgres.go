package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/analyst/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool, storing each job as JSONB.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, nowFunc: time.Now}, nil
}

func newPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, nowFunc: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_index (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_index_created ON analysis_index(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM analysis_jobs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	var job model.Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode job %s", id)
	}
	return &job, nil
}

const pgUpsertJob = `INSERT INTO analysis_jobs (id, doc, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

const pgUpsertEntry = `INSERT INTO analysis_index (id, company_name, status, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET company_name = EXCLUDED.company_name, status = EXCLUDED.status`

func (s *PostgresStore) PutJob(ctx context.Context, job *model.Job, updateIndex bool) error {
	job.UpdatedAt = s.nowFunc().UTC()
	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode job %s", job.ID)
	}

	if !updateIndex {
		_, err := s.pool.Exec(ctx, pgUpsertJob, job.ID, doc, string(job.Status), job.CreatedAt.UTC(), job.UpdatedAt)
		return eris.Wrapf(err, "postgres: upsert job %s", job.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, pgUpsertJob, job.ID, doc, string(job.Status), job.CreatedAt.UTC(), job.UpdatedAt); err != nil {
		return eris.Wrapf(err, "postgres: upsert job %s", job.ID)
	}
	if _, err := tx.Exec(ctx, pgUpsertEntry, job.ID, job.CompanyName, string(job.Status), job.CreatedAt.UTC()); err != nil {
		return eris.Wrapf(err, "postgres: upsert index entry %s", job.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete job %s", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM analysis_index WHERE id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete index entry %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) GetIndex(ctx context.Context) ([]model.IndexEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_name, status, created_at FROM analysis_index ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query index")
	}
	defer rows.Close()

	entries := []model.IndexEntry{}
	for rows.Next() {
		var e model.IndexEntry
		var status string
		if err := rows.Scan(&e.ID, &e.CompanyName, &status, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan index entry")
		}
		e.Status = model.JobStatus(status)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate index")
}

// PutIndex replaces the whole index in one transaction.
func (s *PostgresStore) PutIndex(ctx context.Context, entries []model.IndexEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM analysis_index`); err != nil {
		return eris.Wrap(err, "postgres: clear index")
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx, pgUpsertEntry, e.ID, e.CompanyName, string(e.Status), e.CreatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "postgres: insert index entry %s", e.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

var _ Store = (*PostgresStore)(nil)
