package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analyst/internal/expert"
	"github.com/sells-group/analyst/internal/model"
)

// run is one generation of work on a job. All job mutations after the
// claim go through update so concurrent batch members serialize.
type run struct {
	o   *Orchestrator
	job *model.Job
	id  string
	in  expert.Input
	log *zap.Logger

	mu sync.Mutex
}

// update applies fn and checkpoints without touching the index.
func (r *run) update(ctx context.Context, fn func(*model.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.job)
	return r.persist(ctx, false)
}

// persist writes the job if this run still owns it. Checkpoint failures are
// logged and skipped; a failed index-updating save is returned.
func (r *run) persist(ctx context.Context, updateIndex bool) error {
	if err := r.o.fence(ctx, r.job.ID, r.id); err != nil {
		return err
	}
	if err := r.o.store.PutJob(ctx, r.job, updateIndex); err != nil {
		if updateIndex {
			return eris.Wrap(err, "pipeline: final save")
		}
		r.log.Warn("pipeline: checkpoint save failed", zap.Error(err))
	}
	return nil
}

// analyze is the full pipeline after the claim.
func (r *run) analyze(ctx context.Context) error {
	if err := r.o.store.PutJob(ctx, r.job, false); err != nil {
		return eris.Wrap(err, "pipeline: claim job")
	}

	web := r.o.enrich(ctx, r.job.CompanyName, r.log)
	r.in.WebContext = web
	if err := r.update(ctx, func(j *model.Job) {
		j.WebEnrichment = web
	}); err != nil {
		return err
	}

	if r.job.Agent(model.RoleManager) != nil {
		if err := r.triage(ctx); err != nil {
			return err
		}
	}

	var results []model.AgentRecord
	for _, phase := range []struct {
		step  string
		roles []model.Role
	}{
		{StepBusiness, model.BusinessRoles},
		{StepScience, r.selected(model.ScienceRoles)},
		{StepDeal, r.selected(model.DealRoles)},
	} {
		recs, err := r.batch(ctx, phase.step, phase.roles, "")
		if err != nil {
			return err
		}
		results = append(results, recs...)
	}

	analyses := FormatOutputs(results)
	summary, err := r.batch(ctx, StepSummary, []model.Role{model.RoleSummary}, analyses)
	if err != nil {
		return err
	}

	if r.job.Agent(model.RoleQA) != nil {
		reviewed := append(append([]model.AgentRecord(nil), results...), summary...)
		if _, err := r.batch(ctx, StepQA, []model.Role{model.RoleQA}, FormatOutputs(reviewed)); err != nil {
			return err
		}
	}

	return r.finish(ctx, r.gapQuestions(ctx, analyses), nil)
}

// triage runs the manager and applies its decision, failing open.
func (r *run) triage(ctx context.Context) error {
	if err := r.update(ctx, func(j *model.Job) {
		j.CurrentStep = StepTriage
		j.Agent(model.RoleManager).Status = model.AgentStatusRunning
	}); err != nil {
		return err
	}

	decision, parsed := SelectAll(ReasonTriageFailed), false
	raw, err := r.o.experts.Analyze(ctx, model.RoleManager, r.in)
	if err != nil {
		r.log.Warn("pipeline: triage call failed, selecting every specialist", zap.Error(err))
	} else {
		decision, parsed = Decide(raw)
		if !parsed {
			r.log.Warn("pipeline: triage output unusable, selecting every specialist")
		}
	}
	r.log.Info("pipeline: triage complete",
		zap.Int("selected", len(decision.Selected)),
		zap.Int("skipped", len(decision.Skipped)),
	)

	return r.update(ctx, func(j *model.Job) {
		applyDecision(j, decision, r.o.personas, parsed)
	})
}

// selected filters roles down to those the decision lets run.
func (r *run) selected(roles []model.Role) []model.Role {
	var out []model.Role
	for _, role := range roles {
		a := r.job.Agent(role)
		if a == nil || a.Status == model.AgentStatusSkipped {
			continue
		}
		if d := r.job.ManagerDecision; d != nil && !d.IsSelected(role) {
			continue
		}
		out = append(out, role)
	}
	return out
}

// batch marks roles running in one save, calls each concurrently and
// checkpoints every completion as it lands. Call failures are recorded on
// the role; only a lost fence or an expired run aborts the batch.
func (r *run) batch(ctx context.Context, step string, roles []model.Role, prior string) ([]model.AgentRecord, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run interrupted")
	}

	roles = r.carried(roles)
	if len(roles) == 0 {
		return nil, nil
	}

	in := r.in
	in.PriorOutputs = prior

	if err := r.update(ctx, func(j *model.Job) {
		j.CurrentStep = step
		for _, role := range roles {
			a := j.Agent(role)
			a.Status = model.AgentStatusRunning
			a.Content = ""
			a.Error = ""
			a.SkippedReason = ""
		}
	}); err != nil {
		return nil, err
	}

	results := make([]model.AgentRecord, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			rec := r.call(gctx, role, in)
			results[i] = rec
			return r.update(gctx, func(j *model.Job) {
				*j.Agent(role) = rec
				j.CurrentStep = progress(j)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// call runs one expert and converts any failure into an error record.
func (r *run) call(ctx context.Context, role model.Role, in expert.Input) (rec model.AgentRecord) {
	rec = r.o.personas.NewRecord(role)
	log := r.log.With(zap.String("role", string(role)))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: agent panicked", zap.Any("panic", p))
			rec.Status = model.AgentStatusError
			rec.Content = ""
			rec.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	content, err := r.o.experts.Analyze(ctx, role, in)
	if err != nil {
		log.Warn("pipeline: agent failed", zap.Error(err), zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		rec.Status = model.AgentStatusError
		rec.Error = err.Error()
		return rec
	}

	log.Info("pipeline: agent complete", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	rec.Status = model.AgentStatusComplete
	rec.Content = content
	return rec
}

// carried drops roles the job was not created with. The role set of a job
// never changes after creation.
func (r *run) carried(roles []model.Role) []model.Role {
	out := make([]model.Role, 0, len(roles))
	for _, role := range roles {
		if r.job.Agent(role) != nil {
			out = append(out, role)
		}
	}
	return out
}

// gapQuestions never fails: unusable output yields the default list.
func (r *run) gapQuestions(ctx context.Context, analyses string) []model.GapQuestion {
	if err := r.update(ctx, func(j *model.Job) {
		j.CurrentStep = StepGaps
	}); err != nil {
		r.log.Debug("pipeline: gap checkpoint skipped", zap.Error(err))
	}

	raw, err := r.o.experts.GapQuestions(ctx, r.in.CompanyInfo, analyses)
	if err != nil {
		r.log.Warn("pipeline: gap questions failed, using defaults", zap.Error(err))
		return DefaultGapQuestions()
	}
	return ParseGapQuestions(raw)
}

// finish resolves the final status and saves with an index update. The run
// succeeds when at least one of the roles it executed completed; nil roles
// means every role on the job.
func (r *run) finish(ctx context.Context, gaps []model.GapQuestion, roles []model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.job
	j.GapQuestions = gaps
	j.ProcessStartedAt = nil
	if completedAmong(j, roles) == 0 {
		j.Status = model.JobStatusError
		j.CurrentStep = StepAllFailed
	} else {
		j.Status = model.JobStatusComplete
		j.CurrentStep = ""
		j.InputFull = ""
	}
	return r.persist(ctx, true)
}

func completedAmong(j *model.Job, roles []model.Role) int {
	if roles == nil {
		return j.CompletedAgents()
	}
	n := 0
	for _, role := range roles {
		if a := j.Agent(role); a != nil && role != model.RoleManager && a.Status == model.AgentStatusComplete {
			n++
		}
	}
	return n
}

// fail records err on the job and makes a best-effort save that outlives
// the run's own deadline.
func (r *run) fail(ctx context.Context, prefix string, err error) Outcome {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.job
	j.Status = model.JobStatusError
	j.CurrentStep = prefix + ": " + err.Error()
	j.ProcessStartedAt = nil
	for i := range j.Agents {
		if j.Agents[i].Status == model.AgentStatusRunning {
			j.Agents[i].Status = model.AgentStatusError
			j.Agents[i].Error = "run aborted"
		}
	}
	if saveErr := r.persist(saveCtx, true); saveErr != nil {
		if errors.Is(saveErr, ErrSuperseded) {
			r.log.Info("pipeline: failed run already superseded")
			return OutcomeAlreadyProcessing
		}
		r.log.Error("pipeline: could not record failure", zap.Error(saveErr))
	}
	return OutcomeError
}

// progress renders "k/total agents complete" over the roles that run.
func progress(j *model.Job) string {
	total := 0
	for _, a := range j.Agents {
		if a.Role != model.RoleManager && a.Status != model.AgentStatusSkipped {
			total++
		}
	}
	return fmt.Sprintf("%d/%d agents complete", j.CompletedAgents(), total)
}

// FormatOutputs joins the successful records as headed sections for the
// synthesis roles. Failed records are left out.
func FormatOutputs(recs []model.AgentRecord) string {
	parts := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Status != model.AgentStatusComplete {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s %s\n%s", rec.Emoji, rec.Title, rec.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
