package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *Job {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Job{
		ID:               "job-1",
		CompanyName:      "Acme",
		InputType:        InputTypeText,
		InputSummary:     "Acme makes rockets",
		InputFull:        "Acme makes rockets for small satellites.",
		Status:           JobStatusProcessing,
		ProcessStartedAt: &started,
		Agents: []AgentRecord{
			{Role: RoleManager, Status: AgentStatusComplete, Content: "triage"},
			{Role: RoleResearcher, Status: AgentStatusComplete, Content: "report"},
			{Role: RoleStrategist, Status: AgentStatusError, Error: "boom"},
			{Role: RolePhysics, Status: AgentStatusSkipped, SkippedReason: "not relevant"},
		},
		ManagerDecision: &ManagerDecision{
			Selected: []RoleReason{{Role: RoleAerospace, Reason: "rockets"}},
			Skipped:  []RoleReason{{Role: RolePhysics, Reason: "not relevant"}},
		},
		DeepenHistory: []DeepenEntry{{Answers: map[string]string{"gap_1": "10M"}, Timestamp: started}},
		CreatedAt:     started,
	}
}

func TestAgentStatusTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, AgentStatusPending.Terminal())
	assert.False(t, AgentStatusRunning.Terminal())
	assert.True(t, AgentStatusComplete.Terminal())
	assert.True(t, AgentStatusError.Terminal())
	assert.True(t, AgentStatusSkipped.Terminal())
}

func TestJobAgent(t *testing.T) {
	t.Parallel()
	j := newTestJob()

	a := j.Agent(RoleStrategist)
	require.NotNil(t, a)
	a.Content = "mutated"
	assert.Equal(t, "mutated", j.Agents[2].Content)

	assert.Nil(t, j.Agent(RoleQA))
}

func TestJobCompletedAgentsExcludesManager(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	assert.Equal(t, 1, j.CompletedAgents())

	j.Agents[1].Status = AgentStatusError
	assert.Equal(t, 0, j.CompletedAgents())
}

func TestJobAnyAgent(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	assert.True(t, j.AnyAgent(AgentStatusSkipped))
	assert.False(t, j.AnyAgent(AgentStatusRunning, AgentStatusPending))
}

func TestJobClone(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	c := j.Clone()

	c.Agents[0].Content = "changed"
	c.ManagerDecision.Selected[0].Reason = "changed"
	c.DeepenHistory[0].Answers["gap_1"] = "changed"
	*c.ProcessStartedAt = c.ProcessStartedAt.Add(time.Hour)

	assert.Equal(t, "triage", j.Agents[0].Content)
	assert.Equal(t, "rockets", j.ManagerDecision.Selected[0].Reason)
	assert.Equal(t, "10M", j.DeepenHistory[0].Answers["gap_1"])
	assert.Equal(t, 3, j.ProcessStartedAt.Hour())
}

func TestJobPublicStripsInternalFields(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	j.RunID = "run-7"
	p := j.Public()
	assert.Empty(t, p.InputFull)
	assert.Empty(t, p.RunID)
	assert.NotEmpty(t, j.InputFull)
	assert.Equal(t, "run-7", j.RunID)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "inputFull")
	assert.NotContains(t, string(raw), "runId")
}

func TestJobJSONShape(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(newTestJob())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"id", "companyName", "inputType", "inputSummary", "inputFull", "status", "processStartedAt", "agents", "managerDecision", "deepenHistory", "createdAt"} {
		assert.Contains(t, m, k)
	}
	agents := m["agents"].([]any)
	skipped := agents[3].(map[string]any)
	assert.Equal(t, "not relevant", skipped["skippedReason"])
}

func TestIndexEntry(t *testing.T) {
	t.Parallel()
	j := newTestJob()
	e := j.IndexEntry()
	assert.Equal(t, IndexEntry{ID: "job-1", CompanyName: "Acme", CreatedAt: j.CreatedAt, Status: JobStatusProcessing}, e)
}

func TestManagerDecisionLookups(t *testing.T) {
	t.Parallel()
	d := newTestJob().ManagerDecision
	assert.True(t, d.IsSelected(RoleAerospace))
	assert.False(t, d.IsSelected(RolePhysics))

	reason, ok := d.SkipReason(RolePhysics)
	assert.True(t, ok)
	assert.Equal(t, "not relevant", reason)

	var nilDecision *ManagerDecision
	assert.False(t, nilDecision.IsSelected(RoleAerospace))
	_, ok = nilDecision.SkipReason(RolePhysics)
	assert.False(t, ok)
}

func TestIsStale(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name    string
		started *time.Time
		want    bool
	}{
		{"nil start", nil, false},
		{"fresh", at(time.Minute), false},
		{"exactly at threshold", at(DefaultStaleAfter), false},
		{"just past threshold", at(DefaultStaleAfter + time.Second), true},
		{"long abandoned", at(time.Hour), true},
		{"future start", at(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsStale(now, tt.started, DefaultStaleAfter))
		})
	}
}
