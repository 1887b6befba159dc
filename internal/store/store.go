// Package store persists analysis jobs and the denormalized job index.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analyst/internal/model"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = eris.New("store: job not found")

// Store is the Job Record Store. Writes replace the whole document; there
// is no field-level update and no locking.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// PutJob stamps UpdatedAt and writes the job. When updateIndex is set
	// the job's index entry is inserted or refreshed as well.
	PutJob(ctx context.Context, job *model.Job, updateIndex bool) error
	// DeleteJob removes the job and its index entry. Deleting a missing
	// job is not an error.
	DeleteJob(ctx context.Context, id string) error
	GetIndex(ctx context.Context) ([]model.IndexEntry, error)
	PutIndex(ctx context.Context, entries []model.IndexEntry) error

	Migrate(ctx context.Context) error
	Close() error
}

// Direct returns the uncached store behind s, or s itself.
func Direct(s Store) Store {
	if d, ok := s.(interface{ Direct() Store }); ok {
		return d.Direct()
	}
	return s
}

// UpsertEntry refreshes the entry for e.ID in place, or inserts e at the
// front when the job is not yet listed.
func UpsertEntry(entries []model.IndexEntry, e model.IndexEntry) []model.IndexEntry {
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = e
			return entries
		}
	}
	return append([]model.IndexEntry{e}, entries...)
}

// RemoveEntry drops the entry for id, reporting whether it was present.
func RemoveEntry(entries []model.IndexEntry, id string) ([]model.IndexEntry, bool) {
	for i := range entries {
		if entries[i].ID == id {
			return append(entries[:i:i], entries[i+1:]...), true
		}
	}
	return entries, false
}
