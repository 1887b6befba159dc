// Package worker runs pipeline work off the request path. Transports submit
// a Task and return immediately; callers poll the job for progress.
package worker

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analyst/internal/pipeline"
)

var (
	// ErrQueueFull is returned when the pool cannot accept more work.
	ErrQueueFull = eris.New("worker: queue full")
	// ErrClosed is returned when submitting to a stopped pool.
	ErrClosed = eris.New("worker: closed")
)

// Kind selects the pipeline entry point a task runs.
type Kind string

const (
	KindProcess Kind = "process"
	KindDeepen  Kind = "deepen"
)

// Task is one unit of background pipeline work.
type Task struct {
	Kind   Kind                   `json:"kind"`
	JobID  string                 `json:"job_id"`
	RunID  string                 `json:"run_id,omitempty"`
	Deepen pipeline.DeepenRequest `json:"deepen"`
}

// ProcessTask returns a task that runs the full pipeline for jobID.
func ProcessTask(jobID string) Task {
	return Task{Kind: KindProcess, JobID: jobID}
}

// DeepenTask returns a task that runs the deepen pass claimed under runID.
func DeepenTask(jobID, runID string, req pipeline.DeepenRequest) Task {
	return Task{Kind: KindDeepen, JobID: jobID, RunID: runID, Deepen: req}
}

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, t Task) error
}

// Runner is the pipeline surface a worker drives. *pipeline.Orchestrator
// satisfies it.
type Runner interface {
	Process(ctx context.Context, id string) (pipeline.Outcome, error)
	Deepen(ctx context.Context, id, runID string, req pipeline.DeepenRequest) (pipeline.Outcome, error)
}

// Execute runs t against r.
func Execute(ctx context.Context, r Runner, t Task) (pipeline.Outcome, error) {
	if t.JobID == "" {
		return "", eris.New("worker: task missing job id")
	}
	switch t.Kind {
	case KindProcess:
		return r.Process(ctx, t.JobID)
	case KindDeepen:
		return r.Deepen(ctx, t.JobID, t.RunID, t.Deepen)
	default:
		return "", eris.Errorf("worker: unknown task kind %q", t.Kind)
	}
}
