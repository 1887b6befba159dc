package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analyst/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_index (
	id           TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_index_created ON analysis_index(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM analysis_jobs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode job %s", id)
	}
	return &job, nil
}

const sqliteUpsertJob = `INSERT INTO analysis_jobs (id, doc, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, status = excluded.status, updated_at = excluded.updated_at`

const sqliteUpsertEntry = `INSERT INTO analysis_index (id, company_name, status, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET company_name = excluded.company_name, status = excluded.status`

func (s *SQLiteStore) PutJob(ctx context.Context, job *model.Job, updateIndex bool) error {
	job.UpdatedAt = s.nowFunc().UTC()
	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode job %s", job.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, sqliteUpsertJob,
		job.ID, string(doc), string(job.Status), job.CreatedAt.UTC(), job.UpdatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert job %s", job.ID)
	}
	if updateIndex {
		if _, err := tx.ExecContext(ctx, sqliteUpsertEntry,
			job.ID, job.CompanyName, string(job.Status), job.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert index entry %s", job.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete job %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_index WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete index entry %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) GetIndex(ctx context.Context) ([]model.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, status, created_at FROM analysis_index ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query index")
	}
	defer rows.Close() //nolint:errcheck

	entries := []model.IndexEntry{}
	for rows.Next() {
		var e model.IndexEntry
		if err := rows.Scan(&e.ID, &e.CompanyName, &e.Status, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan index entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate index")
}

// PutIndex replaces the whole index in one transaction.
func (s *SQLiteStore) PutIndex(ctx context.Context, entries []model.IndexEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_index`); err != nil {
		return eris.Wrap(err, "sqlite: clear index")
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, sqliteUpsertEntry,
			e.ID, e.CompanyName, string(e.Status), e.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert index entry %s", e.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

var _ Store = (*SQLiteStore)(nil)
