package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/model"
)

const (
	jobKeyPrefix = "analyses/"
	indexKey     = "analyses/index.json"
)

// BlobStore keeps one JSON document per job plus an index document in a
// blob bucket.
type BlobStore struct {
	bucket blob.Bucket

	// indexMu serializes index read-modify-write cycles within this
	// process. Other processes still race last-writer-wins.
	indexMu sync.Mutex
	nowFunc func() time.Time
}

// NewBlob creates a store over bucket.
func NewBlob(bucket blob.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket, nowFunc: time.Now}
}

func jobKey(id string) string {
	return jobKeyPrefix + id + ".json"
}

func (s *BlobStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.bucket.Get(ctx, jobKey(id))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get job %s", id)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrapf(err, "store: decode job %s", id)
	}
	return &job, nil
}

func (s *BlobStore) PutJob(ctx context.Context, job *model.Job, updateIndex bool) error {
	job.UpdatedAt = s.nowFunc().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrapf(err, "store: encode job %s", job.ID)
	}
	if err := s.bucket.Put(ctx, jobKey(job.ID), data, "application/json"); err != nil {
		return eris.Wrapf(err, "store: put job %s", job.ID)
	}
	if !updateIndex {
		return nil
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	entries, err := s.GetIndex(ctx)
	if err != nil {
		return err
	}
	return s.PutIndex(ctx, UpsertEntry(entries, job.IndexEntry()))
}

func (s *BlobStore) DeleteJob(ctx context.Context, id string) error {
	if err := s.bucket.Delete(ctx, jobKey(id)); err != nil {
		return eris.Wrapf(err, "store: delete job %s", id)
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	entries, err := s.GetIndex(ctx)
	if err != nil {
		return err
	}
	entries, removed := RemoveEntry(entries, id)
	if !removed {
		return nil
	}
	return s.PutIndex(ctx, entries)
}

// GetIndex returns the index document. A missing index is an empty list.
func (s *BlobStore) GetIndex(ctx context.Context) ([]model.IndexEntry, error) {
	data, err := s.bucket.Get(ctx, indexKey)
	if errors.Is(err, blob.ErrNotFound) {
		return []model.IndexEntry{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get index")
	}
	var entries []model.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "store: decode index")
	}
	return entries, nil
}

func (s *BlobStore) PutIndex(ctx context.Context, entries []model.IndexEntry) error {
	if entries == nil {
		entries = []model.IndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "store: encode index")
	}
	if err := s.bucket.Put(ctx, indexKey, data, "application/json"); err != nil {
		return eris.Wrap(err, "store: put index")
	}
	return nil
}

// Migrate is a no-op; buckets need no schema.
func (s *BlobStore) Migrate(context.Context) error { return nil }

func (s *BlobStore) Close() error { return nil }

var _ Store = (*BlobStore)(nil)
