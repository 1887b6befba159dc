package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/expert"
	"github.com/sells-group/analyst/internal/model"
)

// DeepenRequest carries follow-up answers keyed by question, and optional
// files attached to a question.
type DeepenRequest struct {
	Answers map[string]string          `json:"answers"`
	Files   map[string][]model.FileRef `json:"files,omitempty"`
}

// Deepen reruns the deepen roles, summary and gap analysis for a job that
// has already been claimed under runID with the request recorded in its
// history. A job now owned by another run is left untouched.
func (o *Orchestrator) Deepen(ctx context.Context, id, runID string, req DeepenRequest) (Outcome, error) {
	if !o.acquire(id) {
		return OutcomeAlreadyProcessing, nil
	}
	defer o.release(id)

	job, err := o.direct.GetJob(ctx, id)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: load job %s", id)
	}
	if job.RunID != runID {
		zap.L().Info("pipeline: deepen superseded before start", zap.String("job_id", id), zap.String("run_id", runID))
		return OutcomeAlreadyProcessing, nil
	}

	r := &run{
		o:   o,
		job: job,
		id:  runID,
		log: zap.L().With(zap.String("job_id", id), zap.String("run_id", runID), zap.String("phase", "deepen")),
	}
	return o.execute(ctx, r, "Deepen failed", func(ctx context.Context) error {
		return r.deepen(ctx, req)
	}), nil
}

func (r *run) deepen(ctx context.Context, req DeepenRequest) error {
	files := r.readFiles(ctx, req.Files)
	r.in = expert.Input{
		CompanyInfo: DeepenCompanyInfo(r.job.CompanyName, jobInput(r.job), req.Answers, files),
	}

	web := r.o.enrich(ctx, r.job.CompanyName, r.log)
	r.in.WebContext = web
	if err := r.update(ctx, func(j *model.Job) {
		j.WebEnrichment = web
		j.CurrentStep = StepDeepen
	}); err != nil {
		return err
	}

	results, err := r.batch(ctx, StepDeepen, model.DeepenRoles, "")
	if err != nil {
		return err
	}
	analyses := FormatOutputs(results)
	if _, err := r.batch(ctx, StepSummary, []model.Role{model.RoleSummary}, analyses); err != nil {
		return err
	}

	return r.finish(ctx, r.gapQuestions(ctx, analyses), deepenRunRoles())
}

// deepenRunRoles are the roles a deepen pass executes.
func deepenRunRoles() []model.Role {
	return append(append([]model.Role(nil), model.DeepenRoles...), model.RoleSummary)
}

// Attachment is one extracted deepen file.
type Attachment struct {
	Question string
	Name     string
	Text     string
}

func (r *run) readFiles(ctx context.Context, files map[string][]model.FileRef) []Attachment {
	var out []Attachment
	for _, q := range sortedKeys(files) {
		for _, f := range files[q] {
			text := fmt.Sprintf("[Could not extract text from %s]", f.Name)
			if r.o.files != nil {
				text = r.o.files.TextOrNotice(ctx, f)
			}
			out = append(out, Attachment{Question: q, Name: f.Name, Text: text})
		}
	}
	return out
}

// DeepenCompanyInfo appends the follow-up answers and attachments to the
// original company context. Blank answers are dropped; questions are
// rendered in sorted order.
func DeepenCompanyInfo(companyName, original string, answers map[string]string, files []Attachment) string {
	var qa []string
	for _, q := range sortedKeys(answers) {
		a := strings.TrimSpace(answers[q])
		if a == "" {
			continue
		}
		qa = append(qa, fmt.Sprintf("Q: %s\nA: %s", q, a))
	}

	var docs []string
	for _, f := range files {
		docs = append(docs, fmt.Sprintf("--- File: %s (for: %s) ---\n%s", f.Name, f.Question, f.Text))
	}

	var extra strings.Builder
	if len(qa) > 0 {
		extra.WriteString("## Text Answers\n")
		extra.WriteString(strings.Join(qa, "\n\n"))
		extra.WriteString("\n\n")
	}
	if len(docs) > 0 {
		extra.WriteString("## Uploaded Files\n")
		extra.WriteString(strings.Join(docs, "\n\n"))
		extra.WriteString("\n\n")
	}

	return fmt.Sprintf("Company: %s\n\n%s\n\n## Additional Information Provided:\n%s", companyName, original, extra.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
