package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/persona"
)

func TestParseDecision(t *testing.T) {
	t.Parallel()

	d, err := ParseDecision("Here you go:\n" + `{"selected": [{"role": "legal", "reason": "Export controls"}], "skipped": []}` + "\nThanks")
	require.NoError(t, err)
	require.Len(t, d.Selected, 1)
	assert.Equal(t, model.RoleLegal, d.Selected[0].Role)
	assert.Empty(t, d.Skipped)
}

func TestParseDecision_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "select everyone"},
		{"missing skipped", `{"selected": []}`},
		{"missing selected", `{"skipped": []}`},
		{"null list", `{"selected": null, "skipped": []}`},
		{"wrong shape", `{"selected": "all", "skipped": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDecision(tt.raw)
			assert.Error(t, err)
		})
	}
}

// covered asserts every triaged role is in exactly one list.
func covered(t *testing.T, d *model.ManagerDecision) {
	t.Helper()
	seen := make(map[model.Role]int)
	for _, s := range d.Selected {
		seen[s.Role]++
	}
	for _, s := range d.Skipped {
		seen[s.Role]++
	}
	require.Len(t, seen, len(model.TriagedRoles()))
	for _, r := range model.TriagedRoles() {
		assert.Equal(t, 1, seen[r], r)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	d := Normalize(&model.ManagerDecision{
		Selected: []model.RoleReason{
			{Role: model.RoleNuclear, Reason: " Reactor work "},
			{Role: model.RoleNuclear, Reason: "duplicate"},
			{Role: model.RoleFinancial, Reason: "always runs"},
			{Role: "astrology", Reason: "unknown"},
		},
		Skipped: []model.RoleReason{
			{Role: model.RoleNuclear, Reason: "conflicting"},
			{Role: model.RoleBiology, Reason: "No biology"},
			{Role: model.RolePhysics, Reason: ""},
		},
	})

	covered(t, d)
	assert.Equal(t, []model.RoleReason{{Role: model.RoleNuclear, Reason: "Reactor work"}}, d.Selected)
	reason, ok := d.SkipReason(model.RoleBiology)
	assert.True(t, ok)
	assert.Equal(t, "No biology", reason)
	reason, _ = d.SkipReason(model.RolePhysics)
	assert.Equal(t, ReasonOmitted, reason)
	reason, _ = d.SkipReason(model.RoleFundFit)
	assert.Equal(t, ReasonOmitted, reason)
}

func TestDecide_AlwaysCovers(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"garbage",
		`{"selected": [{"role": "growth", "reason": "Scale"}], "skipped": []}`,
		`{"selected": [], "skipped": [{"role": "team", "reason": "Solo founder"}]}`,
	} {
		d, _ := Decide(raw)
		covered(t, d)
	}

	d, parsed := Decide("garbage")
	assert.False(t, parsed)
	assert.Len(t, d.Selected, len(model.TriagedRoles()))
	assert.Empty(t, d.Skipped)
}

func TestApplyDecision(t *testing.T) {
	t.Parallel()

	personas := persona.Default()
	job := &model.Job{}
	for _, r := range model.PipelineRoles(true, false) {
		job.Agents = append(job.Agents, personas.NewRecord(r))
	}

	d := Normalize(&model.ManagerDecision{
		Selected: []model.RoleReason{{Role: model.RoleAIExpert, Reason: "ML core"}},
		Skipped:  []model.RoleReason{{Role: model.RoleNuclear, Reason: "No nuclear angle"}},
	})
	applyDecision(job, d, personas, true)

	assert.Same(t, d, job.ManagerDecision)
	assert.Equal(t, model.AgentStatusPending, job.Agent(model.RoleAIExpert).Status)
	assert.Equal(t, model.AgentStatusPending, job.Agent(model.RoleResearcher).Status, "business roles are never skipped")
	assert.Equal(t, model.AgentStatusSkipped, job.Agent(model.RoleNuclear).Status)
	assert.Equal(t, "No nuclear angle", job.Agent(model.RoleNuclear).SkippedReason)
	assert.Equal(t, ReasonOmitted, job.Agent(model.RoleLegal).SkippedReason)

	m := job.Agent(model.RoleManager)
	assert.Equal(t, model.AgentStatusComplete, m.Status)
	assert.Contains(t, m.Content, "**Triage decision:** 1 of 13 specialists selected, 12 skipped.")
	assert.Contains(t, m.Content, "### Selected\n- ")
	assert.Contains(t, m.Content, ": ML core\n")
	assert.NotContains(t, m.Content, "could not be used")
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, cleanJSON(`prefix {"a":{"b":2}} suffix`))
	assert.Equal(t, "no braces", cleanJSON("  no braces "))
}
