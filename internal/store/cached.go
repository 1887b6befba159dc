package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/cache"
	"github.com/sells-group/analyst/internal/model"
)

// TTLs sets how long a cached job is served, keyed by its status.
type TTLs struct {
	Processing time.Duration
	Complete   time.Duration
	Error      time.Duration
}

// DefaultTTLs keep in-flight jobs nearly fresh and finished ones longer.
func DefaultTTLs() TTLs {
	return TTLs{
		Processing: 2 * time.Second,
		Complete:   5 * time.Minute,
		Error:      30 * time.Second,
	}
}

// ForStatus returns the TTL for a job in status s.
func (t TTLs) ForStatus(s model.JobStatus) time.Duration {
	switch s {
	case model.JobStatusComplete:
		return t.Complete
	case model.JobStatusError:
		return t.Error
	default:
		return t.Processing
	}
}

// CachedStore puts a cache in front of job reads. The inner store stays
// the source of truth: cache failures are logged and ignored.
type CachedStore struct {
	Store
	cache cache.Cache
	ttls  TTLs
}

// NewCached wraps inner with c.
func NewCached(inner Store, c cache.Cache, ttls TTLs) *CachedStore {
	return &CachedStore{Store: inner, cache: c, ttls: ttls}
}

// Direct returns the uncached store.
func (s *CachedStore) Direct() Store {
	return s.Store
}

func cacheKey(id string) string {
	return "job:" + id
}

func (s *CachedStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if raw, ok, err := s.cache.Get(ctx, cacheKey(id)); err != nil {
		zap.L().Warn("store: cache get failed", zap.String("job_id", id), zap.Error(err))
	} else if ok {
		var job model.Job
		if err := json.Unmarshal(raw, &job); err == nil {
			return &job, nil
		}
	}

	job, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, job)
	return job, nil
}

func (s *CachedStore) PutJob(ctx context.Context, job *model.Job, updateIndex bool) error {
	if err := s.Store.PutJob(ctx, job, updateIndex); err != nil {
		s.forget(ctx, job.ID)
		return err
	}
	s.remember(ctx, job)
	return nil
}

func (s *CachedStore) DeleteJob(ctx context.Context, id string) error {
	s.forget(ctx, id)
	return s.Store.DeleteJob(ctx, id)
}

func (s *CachedStore) remember(ctx context.Context, job *model.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(job.ID), raw, s.ttls.ForStatus(job.Status)); err != nil {
		zap.L().Warn("store: cache set failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *CachedStore) forget(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		zap.L().Warn("store: cache delete failed", zap.String("job_id", id), zap.Error(err))
	}
}

var _ Store = (*CachedStore)(nil)
