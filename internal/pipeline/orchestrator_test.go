package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analyst/internal/enrich"
	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/store"
)

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.manager = "```json\n" + `{
		"selected": [{"role": "nuclear", "reason": "Plant inspection"}, {"role": "mechanical", "reason": "Robotics hardware"}],
		"skipped": [{"role": "aerospace", "reason": "No aerospace exposure"}, {"role": "researcher", "reason": "ignored"}]
	}` + "\n```"
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	assert.Equal(t, model.JobStatusComplete, job.Status)
	assert.Empty(t, job.CurrentStep)
	assert.Nil(t, job.ProcessStartedAt)
	assert.Empty(t, job.InputFull, "full input is dropped once complete")
	assert.Equal(t, "## Web Research Results\n\nAcme news", job.WebEnrichment)
	require.Len(t, job.GapQuestions, 1)
	assert.Equal(t, "What is ARR?", job.GapQuestions[0].Question)

	for _, r := range model.BusinessRoles {
		assert.Equal(t, model.AgentStatusComplete, job.Agent(r).Status, r)
	}
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleNuclear).Status)
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleMechanical).Status)
	assert.Equal(t, "No aerospace exposure", job.Agent(model.RoleAerospace).SkippedReason)
	assert.Equal(t, model.AgentStatusSkipped, job.Agent(model.RoleLegal).Status)
	assert.Equal(t, ReasonOmitted, job.Agent(model.RoleLegal).SkippedReason)
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleSummary).Status)
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleQA).Status)

	manager := job.Agent(model.RoleManager)
	assert.Equal(t, model.AgentStatusComplete, manager.Status)
	assert.Contains(t, manager.Content, "2 of 13 specialists selected, 11 skipped")

	assert.Zero(t, f.caller.count(model.RoleAerospace), "skipped roles are never called")
	assert.Zero(t, f.caller.count(model.RoleLegal))
	assert.Equal(t, 1, f.caller.count(model.RoleNuclear))

	summaryIn := f.caller.input(model.RoleSummary)
	assert.Contains(t, summaryIn.PriorOutputs, "## 💰 Financial Analyst\nfinancial analysis")
	assert.Contains(t, summaryIn.PriorOutputs, "nuclear analysis")
	assert.NotContains(t, summaryIn.PriorOutputs, "summary analysis")
	assert.Contains(t, f.caller.input(model.RoleQA).PriorOutputs, "summary analysis")
	assert.Equal(t, "Company: Acme Robotics\n\nAcme builds inspection robots for nuclear plants.", summaryIn.CompanyInfo)

	index, err := f.store.GetIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, model.JobStatusComplete, index[0].Status)
}

func TestProcess_CompleteIsNoop(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, func(j *model.Job) {
		j.Status = model.JobStatusComplete
	})

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)
	assert.Empty(t, f.caller.calls)
}

func TestProcess_NotFound(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.orch.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_IdempotentTrigger(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.caller.before = func(role model.Role) {
		if role == model.RoleResearcher {
			once.Do(func() { close(started) })
			<-release
		}
	}

	done := make(chan Outcome, 1)
	go func() {
		outcome, err := f.orch.Process(context.Background(), "job-1")
		assert.NoError(t, err)
		done <- outcome
	}()
	<-started

	// Same process.
	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessing, outcome)

	// Another process sharing the store sees the fresh start time.
	other := New(testConfig(), f.store, f.caller, &fakeEnricher{}, f.orch.personas)
	outcome, err = other.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessing, outcome)

	close(release)
	assert.Equal(t, OutcomeComplete, <-done)
	assert.Equal(t, 1, f.caller.count(model.RoleResearcher))
	assert.Equal(t, 1, f.caller.count(model.RoleSummary))
	assert.Equal(t, 1, f.caller.count(model.RoleManager))
}

func TestProcess_StaleRunRecovered(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, func(j *model.Job) {
		j.ProcessStartedAt = ptrTime(time.Now().Add(-9 * time.Minute))
		j.RunID = "crashed"
		j.Agent(model.RoleResearcher).Status = model.AgentStatusRunning
		j.Agent(model.RoleResearcher).Content = "half written"
		j.Agent(model.RoleStrategist).Status = model.AgentStatusComplete
	})

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	assert.Equal(t, model.JobStatusComplete, job.Status)
	assert.Equal(t, "researcher analysis", job.Agent(model.RoleResearcher).Content)
	assert.NotEqual(t, "crashed", job.RunID)
	assert.Equal(t, 1, f.caller.count(model.RoleResearcher))
}

func TestProcess_RecentRunLeftAlone(t *testing.T) {
	f := newFixture(t, testConfig())
	seeded := f.seed(t, func(j *model.Job) {
		j.ProcessStartedAt = ptrTime(time.Now().Add(-time.Minute))
		j.RunID = "live"
		j.Agent(model.RoleResearcher).Status = model.AgentStatusRunning
	})

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessing, outcome)

	job := f.load(t)
	assert.Equal(t, "live", job.RunID)
	assert.Equal(t, model.AgentStatusRunning, job.Agent(model.RoleResearcher).Status)
	assert.Equal(t, seeded.UpdatedAt, job.UpdatedAt)
	assert.Empty(t, f.caller.calls)
}

func TestProcess_MalformedTriageFailsOpen(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.manager = "I think every specialist matters here."
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	for _, r := range model.TriagedRoles() {
		assert.True(t, job.ManagerDecision.IsSelected(r), r)
		_, skipped := job.ManagerDecision.SkipReason(r)
		assert.False(t, skipped, r)
		assert.Equal(t, model.AgentStatusComplete, job.Agent(r).Status, r)
		assert.Equal(t, 1, f.caller.count(r), r)
	}
	assert.Contains(t, job.Agent(model.RoleManager).Content, "could not be used")
}

func TestProcess_TriageDisabledRunsEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Triage = false
	cfg.QualityReview = false
	f := newFixture(t, cfg)
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	assert.Nil(t, job.Agent(model.RoleManager))
	assert.Nil(t, job.Agent(model.RoleQA))
	assert.Nil(t, job.ManagerDecision)
	assert.Zero(t, f.caller.count(model.RoleManager))
	assert.Equal(t, 18, job.CompletedAgents())
}

func TestProcess_FailureIsolation(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.fail[model.RoleFinancial] = true
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	fin := job.Agent(model.RoleFinancial)
	assert.Equal(t, model.AgentStatusError, fin.Status)
	assert.Equal(t, "financial unavailable", fin.Error)
	assert.Empty(t, fin.Content)
	for _, r := range []model.Role{model.RoleResearcher, model.RoleStrategist, model.RoleSector} {
		assert.Equal(t, model.AgentStatusComplete, job.Agent(r).Status, r)
	}

	prior := f.caller.input(model.RoleSummary).PriorOutputs
	assert.Equal(t, 3, strings.Count(prior, "## "))
	assert.NotContains(t, prior, "Financial Analyst")
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleSummary).Status)
}

func TestProcess_AllAgentsFail(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.failAll()
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, outcome)

	job := f.load(t)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Equal(t, StepAllFailed, job.CurrentStep)
	assert.Nil(t, job.ProcessStartedAt)
	assert.NotEmpty(t, job.InputFull, "input is kept for a retry")
	assert.Zero(t, job.CompletedAgents())

	index, err := f.store.GetIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, index[0].Status)
}

func TestProcess_ErroredJobRerunsFresh(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, func(j *model.Job) {
		j.Status = model.JobStatusError
		j.Agent(model.RoleResearcher).Status = model.AgentStatusError
		j.Agent(model.RoleStrategist).Status = model.AgentStatusComplete
	})

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)
	assert.Equal(t, 1, f.caller.count(model.RoleStrategist))
}

func TestProcess_GapFallback(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.gaps = "Sorry, no questions today."
	f.seed(t, nil)

	_, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)

	job := f.load(t)
	assert.Equal(t, DefaultGapQuestions(), job.GapQuestions)
}

func TestProcess_EnricherPanicUsesFallback(t *testing.T) {
	f := newFixture(t, testConfig())
	f.orch.enricher = &fakeEnricher{panic: true}
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)
	assert.Equal(t, enrich.Fallback, f.load(t).WebEnrichment)
	assert.Equal(t, enrich.Fallback, f.caller.input(model.RoleResearcher).WebContext)
}

func TestProcess_PanicRecordedAsError(t *testing.T) {
	f := newFixture(t, testConfig())
	f.caller.gapHook = func() { panic("boom") }
	f.seed(t, nil)

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, outcome)

	job := f.load(t)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Equal(t, "Analysis failed: panic: boom", job.CurrentStep)
	assert.Nil(t, job.ProcessStartedAt)
}

func TestProcess_SupersededRunStopsWriting(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, nil)

	f.caller.before = func(role model.Role) {
		if role != model.RoleManager {
			return
		}
		job := f.load(t)
		job.RunID = "newer"
		job.CurrentStep = "newer run"
		require.NoError(t, f.store.PutJob(context.Background(), job, false))
	}

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessing, outcome)

	job := f.load(t)
	assert.Equal(t, "newer", job.RunID)
	assert.Equal(t, "newer run", job.CurrentStep)
	assert.Zero(t, f.caller.count(model.RoleResearcher))
	assert.Zero(t, f.caller.count(model.RoleSummary))
}

func TestProcess_DeletedMidRun(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seed(t, nil)

	f.caller.before = func(role model.Role) {
		if role == model.RoleManager {
			require.NoError(t, f.store.DeleteJob(context.Background(), "job-1"))
		}
	}

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessing, outcome)

	_, err = f.store.GetJob(context.Background(), "job-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_BatchMarkedRunningBeforeCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Triage = false
	cfg.QualityReview = false
	f := newFixture(t, cfg)
	f.seed(t, nil)

	var mu sync.Mutex
	var snapshots []*model.Job
	f.caller.before = func(role model.Role) {
		if role != model.RoleAerospace {
			return
		}
		job := f.load(t)
		mu.Lock()
		snapshots = append(snapshots, job)
		mu.Unlock()
	}

	_, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)

	require.Len(t, snapshots, 1)
	job := snapshots[0]
	for _, r := range model.BusinessRoles {
		assert.Equal(t, model.AgentStatusComplete, job.Agent(r).Status, r)
	}
	assert.Equal(t, model.AgentStatusRunning, job.Agent(model.RoleAerospace).Status)
	for _, r := range model.DealRoles {
		assert.Equal(t, model.AgentStatusPending, job.Agent(r).Status, r)
	}
	assert.Equal(t, model.AgentStatusPending, job.Agent(model.RoleSummary).Status)
}

func TestProcess_KeepsCreatedRoleSet(t *testing.T) {
	cfg := testConfig()
	cfg.QualityReview = false
	f := newFixture(t, cfg)
	seeded := f.seed(t, func(j *model.Job) {
		j.Agents = append(j.Agents, model.AgentRecord{Role: model.RoleQA, Status: model.AgentStatusPending})
		for i := range j.Agents {
			if j.Agents[i].Role == model.RoleManager {
				j.Agents = append(j.Agents[:i], j.Agents[i+1:]...)
				break
			}
		}
	})

	outcome, err := f.orch.Process(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, outcome)

	job := f.load(t)
	require.Len(t, job.Agents, len(seeded.Agents))
	for i, a := range job.Agents {
		assert.Equal(t, seeded.Agents[i].Role, a.Role)
	}
	assert.Nil(t, job.Agent(model.RoleManager), "manager is not added by a later config")
	assert.Zero(t, f.caller.count(model.RoleManager))
	assert.Equal(t, model.AgentStatusComplete, job.Agent(model.RoleQA).Status, "qa carried from creation still runs")
}
