// Package analysis is the job service behind the HTTP API and the CLI. It
// owns job creation, the read/repair path, listing and deepen submission;
// the pipeline itself lives in package pipeline.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/config"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/pipeline"
	"github.com/sells-group/analyst/internal/store"
	"github.com/sells-group/analyst/internal/worker"
)

var (
	// ErrBusy is returned when a job has a live run and cannot accept a
	// deepen request.
	ErrBusy = eris.New("analysis: job is processing")
	// ErrInvalidInput is returned for requests that cannot become a job.
	ErrInvalidInput = eris.New("analysis: invalid input")
)

// Pipeline is the orchestrator surface the service needs.
type Pipeline interface {
	Process(ctx context.Context, id string) (pipeline.Outcome, error)
	StaleAfter() time.Duration
	NewAgents() []model.AgentRecord
	NewRunID() string
	Now() time.Time
	Busy(id string) bool
}

// Service implements the job operations.
type Service struct {
	cfg      config.PipelineConfig
	store    store.Store
	pipeline Pipeline
	tasks    worker.Submitter
	files    pipeline.FileReader
	uploads  blob.Bucket
}

// New creates a Service. files and uploads may be nil when file input is
// not configured.
func New(
	cfg config.PipelineConfig,
	st store.Store,
	p Pipeline,
	tasks worker.Submitter,
	files pipeline.FileReader,
	uploads blob.Bucket,
) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		pipeline: p,
		tasks:    tasks,
		files:    files,
		uploads:  uploads,
	}
}

// Trigger runs the pipeline for id and waits for the outcome.
func (s *Service) Trigger(ctx context.Context, id string) (pipeline.Outcome, error) {
	return s.pipeline.Process(ctx, id)
}

// Fetch returns the job for client display. A job left in an impossible
// state by a crashed run is corrected and persisted first.
func (s *Service) Fetch(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: fetch %s", id)
	}
	if s.repair(ctx, job) {
		zap.L().Warn("analysis: repaired job on read",
			zap.String("job_id", id),
			zap.String("status", string(job.Status)),
			zap.String("step", job.CurrentStep),
		)
	}
	return job.Public(), nil
}

// repair applies the read-path corrections and saves the result. A save
// failure is logged; the corrected job is still served.
func (s *Service) repair(ctx context.Context, job *model.Job) bool {
	if s.pipeline.Busy(job.ID) {
		return false
	}
	if !pipeline.Repair(job, s.pipeline.Now(), s.pipeline.StaleAfter()) {
		return false
	}
	if err := s.store.PutJob(ctx, job, true); err != nil {
		zap.L().Error("analysis: persist repaired job", zap.String("job_id", job.ID), zap.Error(err))
	}
	return true
}

// List returns the job index. Entries still marked processing are checked
// against their job so listings converge once a run finishes or goes stale.
func (s *Service) List(ctx context.Context) ([]model.IndexEntry, error) {
	entries, err := s.store.GetIndex(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: list")
	}

	out := make([]model.IndexEntry, 0, len(entries))
	changed := false
	for _, e := range entries {
		if e.Status != model.JobStatusProcessing {
			out = append(out, e)
			continue
		}
		job, err := s.store.GetJob(ctx, e.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			changed = true
			continue
		case err != nil:
			zap.L().Warn("analysis: reconcile index entry", zap.String("job_id", e.ID), zap.Error(err))
			out = append(out, e)
			continue
		}
		s.repair(ctx, job)
		if job.Status != e.Status {
			e.Status = job.Status
			changed = true
		}
		out = append(out, e)
	}

	if changed {
		if err := s.store.PutIndex(ctx, out); err != nil {
			zap.L().Warn("analysis: save reconciled index", zap.Error(err))
		}
	}
	return out, nil
}

// Delete removes the job and its index entry. Deleting a missing job is
// not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return eris.Wrapf(err, "analysis: delete %s", id)
	}
	zap.L().Info("analysis: job deleted", zap.String("job_id", id))
	return nil
}

// Deepen records the request on the job, claims it under a new run id and
// submits the follow-up pass. A job with a live run is rejected with
// ErrBusy.
func (s *Service) Deepen(ctx context.Context, id string, req pipeline.DeepenRequest) error {
	direct := store.Direct(s.store)
	job, err := direct.GetJob(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "analysis: deepen %s", id)
	}
	now := s.pipeline.Now()
	if s.pipeline.Busy(id) || (job.Status == model.JobStatusProcessing &&
		job.ProcessStartedAt != nil && !model.IsStale(now, job.ProcessStartedAt, s.pipeline.StaleAfter())) {
		return ErrBusy
	}

	if req.Answers == nil {
		req.Answers = map[string]string{}
	}
	runID := s.pipeline.NewRunID()
	job.DeepenHistory = append(job.DeepenHistory, model.DeepenEntry{
		Answers:   req.Answers,
		Timestamp: now,
	})
	job.Status = model.JobStatusProcessing
	job.ProcessStartedAt = &now
	job.RunID = runID
	job.CurrentStep = pipeline.StepDeepenQueued
	if err := s.store.PutJob(ctx, job, true); err != nil {
		return eris.Wrapf(err, "analysis: save deepen request for %s", id)
	}

	if err := s.tasks.Submit(ctx, worker.DeepenTask(id, runID, req)); err != nil {
		s.abandon(ctx, job, "Could not queue follow-up analysis", err)
		return eris.Wrapf(err, "analysis: submit deepen for %s", id)
	}
	zap.L().Info("analysis: deepen submitted",
		zap.String("job_id", id),
		zap.String("run_id", runID),
		zap.Int("answers", len(req.Answers)),
		zap.Int("history", len(job.DeepenHistory)),
	)
	return nil
}

// abandon records that a claimed job could not be handed to a worker.
func (s *Service) abandon(ctx context.Context, job *model.Job, prefix string, cause error) {
	job.Status = model.JobStatusError
	job.CurrentStep = prefix + ": " + cause.Error()
	job.ProcessStartedAt = nil
	job.RunID = ""
	if err := s.store.PutJob(context.WithoutCancel(ctx), job, true); err != nil {
		zap.L().Error("analysis: persist abandoned job", zap.String("job_id", job.ID), zap.Error(err))
	}
}
