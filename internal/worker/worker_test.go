package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/analyst/internal/pipeline"
)

type fakeRunner struct {
	mu      sync.Mutex
	process []string
	deepen  []string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Process(_ context.Context, id string) (pipeline.Outcome, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.process = append(f.process, id)
	if f.err != nil {
		return "", f.err
	}
	return pipeline.OutcomeComplete, nil
}

func (f *fakeRunner) Deepen(_ context.Context, id, runID string, _ pipeline.DeepenRequest) (pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deepen = append(f.deepen, id+"/"+runID)
	return pipeline.OutcomeComplete, nil
}

func (f *fakeRunner) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.process...)
}

func TestExecute(t *testing.T) {
	r := &fakeRunner{}

	out, err := Execute(context.Background(), r, ProcessTask("job-1"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeComplete, out)

	_, err = Execute(context.Background(), r, DeepenTask("job-2", "run-9", pipeline.DeepenRequest{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"job-1"}, r.process)
	assert.Equal(t, []string{"job-2/run-9"}, r.deepen)
}

func TestExecute_Invalid(t *testing.T) {
	r := &fakeRunner{}

	_, err := Execute(context.Background(), r, Task{Kind: KindProcess})
	assert.Error(t, err)

	_, err = Execute(context.Background(), r, Task{Kind: "rebuild", JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task kind")
}

func TestPool_RunsTasks(t *testing.T) {
	r := &fakeRunner{}
	p := NewPool(r, 2, 8)
	p.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Submit(context.Background(), ProcessTask(id)))
	}
	p.Close()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, r.processed())
}

func TestPool_QueueFull(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 4)}
	p := NewPool(r, 1, 1)
	p.Start(context.Background())

	require.NoError(t, p.Submit(context.Background(), ProcessTask("running")))
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not start")
	}

	require.NoError(t, p.Submit(context.Background(), ProcessTask("queued")))
	err := p.Submit(context.Background(), ProcessTask("overflow"))
	assert.True(t, errors.Is(err, ErrQueueFull))

	close(r.block)
	p.Close()
	assert.ElementsMatch(t, []string{"running", "queued"}, r.processed())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(&fakeRunner{}, 1, 1)
	p.Start(context.Background())
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), ProcessTask("late"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestPool_TaskErrorDoesNotStopPool(t *testing.T) {
	r := &fakeRunner{err: errors.New("load failed")}
	p := NewPool(r, 1, 4)
	p.Start(context.Background())

	require.NoError(t, p.Submit(context.Background(), ProcessTask("x")))
	require.NoError(t, p.Submit(context.Background(), ProcessTask("y")))
	p.Close()

	assert.Equal(t, []string{"x", "y"}, r.processed())
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "analyst-process-job-1", WorkflowID(ProcessTask("job-1")))
	assert.Equal(t, "analyst-deepen-job-1-run-2", WorkflowID(DeepenTask("job-1", "run-2", pipeline.DeepenRequest{})))
}

func newWorkflowEnv(r Runner) *testsuite.TestWorkflowEnvironment {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	acts := &Activities{Runner: r}
	env.RegisterActivityWithOptions(acts.RunTask, activity.RegisterOptions{Name: ActivityRunTask})
	return env
}

func TestWorkflow_Process(t *testing.T) {
	r := &fakeRunner{}
	env := newWorkflowEnv(r)

	env.ExecuteWorkflow(WorkflowName, WorkflowInput{Task: ProcessTask("job-1"), TimeoutSecs: 60})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, string(pipeline.OutcomeComplete), out)
	assert.Equal(t, []string{"job-1"}, r.processed())
}

func TestWorkflow_Deepen(t *testing.T) {
	r := &fakeRunner{}
	env := newWorkflowEnv(r)

	req := pipeline.DeepenRequest{Answers: map[string]string{"gap_1": "12M ARR"}}
	env.ExecuteWorkflow(WorkflowName, WorkflowInput{Task: DeepenTask("job-1", "run-3", req)})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []string{"job-1/run-3"}, r.deepen)
}

func TestWorkflow_ActivityNotRetried(t *testing.T) {
	r := &fakeRunner{err: errors.New("store down")}
	env := newWorkflowEnv(r)

	env.ExecuteWorkflow(WorkflowName, WorkflowInput{Task: ProcessTask("job-1")})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Len(t, r.processed(), 1)
}

func TestWorkflow_MissingJobID(t *testing.T) {
	env := newWorkflowEnv(&fakeRunner{})

	env.ExecuteWorkflow(WorkflowName, WorkflowInput{Task: Task{Kind: KindProcess}})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestTemporalSubmitter_Submit(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("analyst-process-job-1")
	run.On("GetRunID").Return("wf-run-1")

	c.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "analyst-process-job-1" && o.TaskQueue == "analyst"
		}),
		WorkflowName,
		mock.MatchedBy(func(in WorkflowInput) bool {
			return in.Task.JobID == "job-1" && in.TimeoutSecs == 8*60
		}),
	).Return(run, nil)

	s := NewTemporalSubmitter(c, "analyst", 7*time.Minute)
	require.NoError(t, s.Submit(context.Background(), ProcessTask("job-1")))
	c.AssertExpectations(t)
}

func TestTemporalSubmitter_Error(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("unavailable"))

	s := NewTemporalSubmitter(c, "analyst", 0)
	err := s.Submit(context.Background(), ProcessTask("job-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start workflow")
}
