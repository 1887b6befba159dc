package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/config"
	"github.com/sells-group/analyst/internal/enrich"
	"github.com/sells-group/analyst/internal/expert"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/persona"
	"github.com/sells-group/analyst/internal/store"
)

// ErrSuperseded is returned when a newer run has taken over the job, or the
// job was deleted, while this run was still writing.
var ErrSuperseded = eris.New("pipeline: run superseded")

// Outcome is the result of a trigger.
type Outcome string

const (
	OutcomeComplete          Outcome = "complete"
	OutcomeAlreadyProcessing Outcome = "already-processing"
	OutcomeError             Outcome = "error"
)

// Progress labels written to Job.CurrentStep.
const (
	StepQueued       = "Queued, starting analysis..."
	StepSearching    = "Searching the web for company data..."
	StepTriage       = "Manager selecting specialists..."
	StepBusiness     = "Running core business analysts..."
	StepScience      = "Running science and technology specialists..."
	StepDeal         = "Running deal specialists..."
	StepSummary      = "Writing executive summary..."
	StepQA           = "Running quality review..."
	StepGaps         = "Identifying knowledge gaps..."
	StepDeepenQueued = "Queued follow-up analysis..."
	StepDeepen       = "Running expert agents with new context..."
	StepAllFailed    = "All agents failed. Check the API key configuration and retry."
)

// finalSaveTimeout bounds the best-effort save after a failed run.
const finalSaveTimeout = 30 * time.Second

// FileReader extracts text from an uploaded file, rendering failures inline.
type FileReader interface {
	TextOrNotice(ctx context.Context, ref model.FileRef) string
}

// Orchestrator drives jobs through web enrichment, triage, the analyst
// batches, synthesis and gap analysis.
type Orchestrator struct {
	cfg      config.PipelineConfig
	store    store.Store
	direct   store.Store
	experts  expert.Caller
	enricher enrich.Enricher
	personas *persona.Table
	files    FileReader
	now      func() time.Time
	newRunID func() string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(f func() string) Option {
	return func(o *Orchestrator) {
		o.newRunID = f
	}
}

// WithFiles sets the reader used for deepen attachments.
func WithFiles(f FileReader) Option {
	return func(o *Orchestrator) {
		o.files = f
	}
}

// New creates an Orchestrator.
func New(
	cfg config.PipelineConfig,
	st store.Store,
	experts expert.Caller,
	enricher enrich.Enricher,
	personas *persona.Table,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    st,
		direct:   store.Direct(st),
		experts:  experts,
		enricher: enricher,
		personas: personas,
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StaleAfter is the staleness threshold in effect.
func (o *Orchestrator) StaleAfter() time.Duration {
	if d := o.cfg.StaleAfter(); d > 0 {
		return d
	}
	return model.DefaultStaleAfter
}

// Roles returns the roles every job carries under the current configuration.
func (o *Orchestrator) Roles() []model.Role {
	return model.PipelineRoles(o.cfg.Triage, o.cfg.QualityReview)
}

// NewAgents returns a pending record for every role.
func (o *Orchestrator) NewAgents() []model.AgentRecord {
	roles := o.Roles()
	out := make([]model.AgentRecord, len(roles))
	for i, r := range roles {
		out[i] = o.personas.NewRecord(r)
	}
	return out
}

// NewRunID returns a fresh run generation id.
func (o *Orchestrator) NewRunID() string {
	return o.newRunID()
}

// Now returns the orchestrator's current time.
func (o *Orchestrator) Now() time.Time {
	return o.now()
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

// Busy reports whether this process is currently running id.
func (o *Orchestrator) Busy(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[id]
	return busy
}

// Process runs the full pipeline for id. It is safe to call repeatedly: a
// complete job is left alone, a job with a fresh run in progress reports
// already-processing, and a job whose run went stale is recovered and rerun.
// Pipeline failures are recorded on the job and reported as OutcomeError;
// the returned error is reserved for loading the job.
func (o *Orchestrator) Process(ctx context.Context, id string) (Outcome, error) {
	if !o.acquire(id) {
		return OutcomeAlreadyProcessing, nil
	}
	defer o.release(id)

	job, err := o.direct.GetJob(ctx, id)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: load job %s", id)
	}

	log := zap.L().With(zap.String("job_id", id))
	switch {
	case job.Status == model.JobStatusComplete:
		return OutcomeComplete, nil
	case job.ProcessStartedAt != nil && !model.IsStale(o.now(), job.ProcessStartedAt, o.StaleAfter()):
		log.Debug("pipeline: run already in progress", zap.Time("started_at", *job.ProcessStartedAt))
		return OutcomeAlreadyProcessing, nil
	case job.ProcessStartedAt != nil:
		running := 0
		for _, a := range job.Agents {
			if a.Status == model.AgentStatusRunning {
				running++
			}
		}
		log.Warn("pipeline: recovering stale run",
			zap.Time("started_at", *job.ProcessStartedAt),
			zap.String("stale_run_id", job.RunID),
			zap.Int("running_agents", running),
		)
	}

	r := o.claim(job, log)
	return o.execute(ctx, r, "Analysis failed", r.analyze), nil
}

// claim resets job for a fresh run owned by a new run id.
func (o *Orchestrator) claim(job *model.Job, log *zap.Logger) *run {
	now := o.now()
	runID := o.newRunID()

	job.Status = model.JobStatusProcessing
	job.ProcessStartedAt = &now
	job.RunID = runID
	job.CurrentStep = StepSearching
	job.ManagerDecision = nil
	job.Agents = o.resetAgents(job.Agents)

	return &run{
		o:   o,
		job: job,
		id:  runID,
		in:  expert.Input{CompanyInfo: CompanyInfo(job)},
		log: log.With(zap.String("run_id", runID)),
	}
}

// resetAgents returns pending records for the roles the job already
// carries. A job without records gets the configured role set.
func (o *Orchestrator) resetAgents(agents []model.AgentRecord) []model.AgentRecord {
	if len(agents) == 0 {
		return o.NewAgents()
	}
	out := make([]model.AgentRecord, len(agents))
	for i, a := range agents {
		out[i] = o.personas.NewRecord(a.Role)
	}
	return out
}

// execute runs fn under the run timeout and converts any failure, including
// a panic, into a persisted error state.
func (o *Orchestrator) execute(ctx context.Context, r *run, failPrefix string, fn func(context.Context) error) (outcome Outcome) {
	if d := o.cfg.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("pipeline: panic", zap.Any("panic", p), zap.Stack("stack"))
			outcome = r.fail(ctx, failPrefix, eris.Errorf("panic: %v", p))
		}
	}()

	err := fn(ctx)
	switch {
	case errors.Is(err, ErrSuperseded):
		r.log.Info("pipeline: run superseded, stopping")
		return OutcomeAlreadyProcessing
	case err != nil:
		r.log.Error("pipeline: run failed", zap.Error(err))
		return r.fail(ctx, failPrefix, err)
	}

	r.log.Info("pipeline: run finished",
		zap.String("status", string(r.job.Status)),
		zap.Int("completed_agents", r.job.CompletedAgents()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	if r.job.Status == model.JobStatusComplete {
		return OutcomeComplete
	}
	return OutcomeError
}

// enrich calls the enricher, substituting enrich.Fallback if it panics.
func (o *Orchestrator) enrich(ctx context.Context, companyName string, log *zap.Logger) (text string) {
	if o.enricher == nil {
		return enrich.Unavailable
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: web enrichment failed", zap.Any("panic", p))
			text = enrich.Fallback
		}
	}()
	return o.enricher.Enrich(ctx, companyName)
}

// fence rejects a write when the stored job belongs to another run. Read
// failures do not block the write.
func (o *Orchestrator) fence(ctx context.Context, id, runID string) error {
	cur, err := o.direct.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSuperseded
	}
	if err != nil {
		zap.L().Warn("pipeline: fence read failed", zap.String("job_id", id), zap.Error(err))
		return nil
	}
	if cur.RunID != runID {
		return ErrSuperseded
	}
	return nil
}

// CompanyInfo renders the company context shared by every expert call.
func CompanyInfo(job *model.Job) string {
	return fmt.Sprintf("Company: %s\n\n%s", job.CompanyName, jobInput(job))
}

func jobInput(job *model.Job) string {
	if job.InputFull != "" {
		return job.InputFull
	}
	return job.InputSummary
}
