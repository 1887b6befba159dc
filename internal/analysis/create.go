package analysis

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analyst/internal/extract"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/pipeline"
	"github.com/sells-group/analyst/internal/worker"
)

const (
	maxDerivedNameChars = 100
	defaultSummaryChars = 200
)

// CreateRequest is a new analysis submission. At least one of the company
// name, text or files is required.
type CreateRequest struct {
	CompanyName string          `json:"companyName"`
	Text        string          `json:"text"`
	Files       []model.FileRef `json:"files"`
	// AutoStart submits the pipeline run immediately. When nil the
	// configured default applies.
	AutoStart *bool `json:"autoStart,omitempty"`
}

// Input is the derived job input.
type Input struct {
	CompanyName string
	Type        model.InputType
	Text        string
}

// NameOnlyInput is the input text for a job submitted by name alone.
func NameOnlyInput(name string) string {
	return fmt.Sprintf("Company name: %s. Please analyze this company based on your knowledge and any available web research.", name)
}

// DeriveInput decides the input type, company name and input text. Files
// take precedence over text, text over a bare name. fileTexts holds the
// extracted text of each file in req.Files.
func DeriveInput(req CreateRequest, fileTexts []string) (Input, error) {
	name := strings.TrimSpace(req.CompanyName)
	text := strings.TrimSpace(req.Text)

	switch {
	case len(req.Files) > 0:
		parts := make([]string, len(req.Files))
		for i, f := range req.Files {
			var body string
			if i < len(fileTexts) {
				body = fileTexts[i]
			}
			parts[i] = fmt.Sprintf("--- File: %s ---\n%s", f.Name, body)
		}
		joined := strings.Join(parts, "\n\n")
		if text != "" {
			joined = text + "\n\n" + joined
		}
		if name == "" {
			name = strings.TrimSuffix(req.Files[0].Name, path.Ext(req.Files[0].Name))
		}
		return Input{CompanyName: name, Type: model.InputTypeFile, Text: joined}, nil

	case text != "":
		if name == "" {
			first, _, _ := strings.Cut(text, "\n")
			name = strings.TrimSpace(extract.Truncate(first, maxDerivedNameChars))
		}
		return Input{CompanyName: name, Type: model.InputTypeText, Text: text}, nil

	case name != "":
		return Input{CompanyName: name, Type: model.InputTypeName, Text: NameOnlyInput(name)}, nil
	}
	return Input{}, eris.Wrap(ErrInvalidInput, "please provide a company name, text, or files")
}

// Create validates and stores a new job with every agent pending. The
// pipeline is not run here unless auto start is in effect, in which case
// it is submitted to the worker.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Job, error) {
	for _, f := range req.Files {
		if strings.TrimSpace(f.URL) == "" || strings.TrimSpace(f.Name) == "" {
			return nil, eris.Wrap(ErrInvalidInput, "every file needs a url and a name")
		}
	}

	in, err := DeriveInput(req, s.readFiles(ctx, req.Files))
	if err != nil {
		return nil, err
	}

	summaryChars := s.cfg.SummaryChars
	if summaryChars <= 0 {
		summaryChars = defaultSummaryChars
	}
	now := s.pipeline.Now()
	job := &model.Job{
		ID:            uuid.NewString(),
		CompanyName:   in.CompanyName,
		InputType:     in.Type,
		InputSummary:  extract.Truncate(in.Text, summaryChars),
		InputFull:     in.Text,
		Status:        model.JobStatusProcessing,
		CurrentStep:   pipeline.StepQueued,
		Agents:        s.pipeline.NewAgents(),
		GapQuestions:  []model.GapQuestion{},
		DeepenHistory: []model.DeepenEntry{},
		CreatedAt:     now,
	}
	if err := s.store.PutJob(ctx, job, true); err != nil {
		return nil, eris.Wrap(err, "analysis: save new job")
	}

	log := zap.L().With(zap.String("job_id", job.ID))
	log.Info("analysis: job created",
		zap.String("company", job.CompanyName),
		zap.String("input_type", string(job.InputType)),
		zap.Int("input_chars", len(job.InputFull)),
		zap.Int("files", len(req.Files)),
	)

	autoStart := s.cfg.AutoStart
	if req.AutoStart != nil {
		autoStart = *req.AutoStart
	}
	if autoStart && s.tasks != nil {
		// The job stays queued on failure; a trigger will still run it.
		if err := s.tasks.Submit(ctx, worker.ProcessTask(job.ID)); err != nil {
			log.Warn("analysis: auto start submit failed", zap.Error(err))
		}
	}
	return job, nil
}

func (s *Service) readFiles(ctx context.Context, files []model.FileRef) []string {
	texts := make([]string, len(files))
	if len(files) == 0 {
		return texts
	}
	if s.files == nil {
		for i, f := range files {
			texts[i] = fmt.Sprintf("[Could not extract text from %s]", f.Name)
		}
		return texts
	}

	var g errgroup.Group
	for i, f := range files {
		g.Go(func() error {
			texts[i] = s.files.TextOrNotice(ctx, f)
			return nil
		})
	}
	_ = g.Wait()
	return texts
}
