package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/analyst/internal/config"
)

const (
	WorkflowName    = "analyst_task"
	ActivityRunTask = "analyst_run_task"

	defaultActivityTimeout = 10 * time.Minute
	// activitySlack is added to the run timeout so the pipeline records its
	// own timeout before Temporal gives up on the activity.
	activitySlack = time.Minute
)

// WorkflowInput is the payload of the analyst workflow.
type WorkflowInput struct {
	Task        Task `json:"task"`
	TimeoutSecs int  `json:"timeout_secs,omitempty"`
}

// Workflow runs one task as a single activity. The pipeline is idempotent
// at the job level, so the activity is never retried by Temporal; a caller
// that wants another attempt triggers the job again.
func Workflow(ctx workflow.Context, in WorkflowInput) (string, error) {
	if in.Task.JobID == "" {
		return "", eris.New("worker: workflow missing job id")
	}
	timeout := defaultActivityTimeout
	if in.TimeoutSecs > 0 {
		timeout = time.Duration(in.TimeoutSecs) * time.Second
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var outcome string
	if err := workflow.ExecuteActivity(ctx, ActivityRunTask, in.Task).Get(ctx, &outcome); err != nil {
		return "", err
	}
	return outcome, nil
}

// Activities binds the workflow's activity to a pipeline runner.
type Activities struct {
	Runner Runner
}

// RunTask executes the task and returns the pipeline outcome.
func (a *Activities) RunTask(ctx context.Context, t Task) (string, error) {
	if a == nil || a.Runner == nil {
		return "", eris.New("worker: activity not configured")
	}
	start := time.Now()
	outcome, err := Execute(ctx, a.Runner, t)
	if err != nil {
		return "", eris.Wrapf(err, "worker: run %s task for %s", t.Kind, t.JobID)
	}
	activity.GetLogger(ctx).Info("task finished",
		"job_id", t.JobID,
		"outcome", string(outcome),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return string(outcome), nil
}

// TemporalSubmitter starts a workflow per task on the configured queue.
type TemporalSubmitter struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
}

// NewTemporalSubmitter creates a submitter. runTimeout is the pipeline run
// timeout; the activity deadline is derived from it.
func NewTemporalSubmitter(c client.Client, taskQueue string, runTimeout time.Duration) *TemporalSubmitter {
	return &TemporalSubmitter{client: c, taskQueue: taskQueue, timeout: runTimeout}
}

// WorkflowID names the workflow for t. A process trigger for a job that
// already has a running workflow attaches to it instead of starting another.
func WorkflowID(t Task) string {
	if t.Kind == KindDeepen {
		return "analyst-deepen-" + t.JobID + "-" + t.RunID
	}
	return "analyst-" + string(t.Kind) + "-" + t.JobID
}

// Submit starts the workflow and returns without waiting for it.
func (s *TemporalSubmitter) Submit(ctx context.Context, t Task) error {
	in := WorkflowInput{Task: t}
	if s.timeout > 0 {
		in.TimeoutSecs = int((s.timeout + activitySlack).Seconds())
	}
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(t),
		TaskQueue: s.taskQueue,
	}, WorkflowName, in)
	if err != nil {
		return eris.Wrapf(err, "worker: start workflow for %s", t.JobID)
	}
	zap.L().Info("worker: workflow started",
		zap.String("job_id", t.JobID),
		zap.String("workflow_id", run.GetID()),
		zap.String("workflow_run_id", run.GetRunID()),
	)
	return nil
}

// DialTemporal connects to the Temporal frontend described by cfg.
func DialTemporal(ctx context.Context, cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    temporalLogger{s: zap.L().Sugar().Named("temporal")},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "worker: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewTemporalWorker returns a worker polling taskQueue with the analyst
// workflow and activity registered.
func NewTemporalWorker(c client.Client, taskQueue string, concurrency int, runner Runner) sdkworker.Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	w := sdkworker.New(c, taskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &Activities{Runner: runner}
	w.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.RunTask, activity.RegisterOptions{Name: ActivityRunTask})
	return w
}

// temporalLogger adapts zap to the Temporal SDK logger interface.
type temporalLogger struct {
	s *zap.SugaredLogger
}

func (l temporalLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l temporalLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l temporalLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l temporalLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }
