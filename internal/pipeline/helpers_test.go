package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/analyst/internal/blob"
	"github.com/sells-group/analyst/internal/config"
	"github.com/sells-group/analyst/internal/expert"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/persona"
	"github.com/sells-group/analyst/internal/store"
)

// fakeCaller answers every role with "<role> analysis" unless told to fail.
type fakeCaller struct {
	mu      sync.Mutex
	calls   map[model.Role]int
	inputs  map[model.Role]expert.Input
	fail    map[model.Role]bool
	manager string
	gaps    string
	gapErr  error
	gapHook func()
	// before runs ahead of every Analyze call, outside the lock.
	before func(role model.Role)
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		calls:   make(map[model.Role]int),
		inputs:  make(map[model.Role]expert.Input),
		fail:    make(map[model.Role]bool),
		manager: `{"selected": [], "skipped": []}`,
		gaps:    `[{"id": "gap_1", "question": "What is ARR?", "category": "Financial Data", "priority": "high"}]`,
	}
}

func (f *fakeCaller) Analyze(_ context.Context, role model.Role, in expert.Input) (string, error) {
	if f.before != nil {
		f.before(role)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[role]++
	f.inputs[role] = in
	if f.fail[role] {
		return "", errors.New(string(role) + " unavailable")
	}
	if role == model.RoleManager {
		return f.manager, nil
	}
	return string(role) + " analysis", nil
}

func (f *fakeCaller) GapQuestions(context.Context, string, string) (string, error) {
	if f.gapHook != nil {
		f.gapHook()
	}
	return f.gaps, f.gapErr
}

func (f *fakeCaller) count(role model.Role) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[role]
}

func (f *fakeCaller) input(role model.Role) expert.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[role]
}

func (f *fakeCaller) failAll() {
	for _, r := range model.AllRoles() {
		f.fail[r] = true
	}
}

type fakeEnricher struct {
	text  string
	panic bool
}

func (e *fakeEnricher) Enrich(context.Context, string) string {
	if e.panic {
		panic("search exploded")
	}
	return e.text
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		StaleAfterMins: 8,
		Triage:         true,
		QualityReview:  true,
	}
}

type fixture struct {
	store  store.Store
	caller *fakeCaller
	orch   *Orchestrator
}

func newFixture(t *testing.T, cfg config.PipelineConfig, opts ...Option) *fixture {
	t.Helper()
	st := store.NewBlob(blob.NewMemory())
	caller := newFakeCaller()
	runs := 0
	var mu sync.Mutex
	opts = append([]Option{WithRunIDs(func() string {
		mu.Lock()
		defer mu.Unlock()
		runs++
		return "run-" + strings.Repeat("i", runs)
	})}, opts...)
	orch := New(cfg, st, caller, &fakeEnricher{text: "## Web Research Results\n\nAcme news"}, persona.Default(), opts...)
	return &fixture{store: st, caller: caller, orch: orch}
}

func (f *fixture) seed(t *testing.T, mutate func(*model.Job)) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:            "job-1",
		CompanyName:   "Acme Robotics",
		InputType:     model.InputTypeText,
		InputSummary:  "Acme builds inspection robots",
		InputFull:     "Acme builds inspection robots for nuclear plants.",
		Status:        model.JobStatusProcessing,
		CurrentStep:   StepQueued,
		Agents:        f.orch.NewAgents(),
		GapQuestions:  []model.GapQuestion{},
		DeepenHistory: []model.DeepenEntry{},
		CreatedAt:     time.Now().UTC(),
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, f.store.PutJob(context.Background(), job, true))
	return job
}

func (f *fixture) load(t *testing.T) *model.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	return job
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
