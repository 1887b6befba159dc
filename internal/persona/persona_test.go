package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analyst/internal/model"
)

func TestDefaultCoversEveryRole(t *testing.T) {
	tbl := Default()
	for _, r := range model.AllRoles() {
		p := tbl.Get(r)
		assert.Equal(t, r, p.Role)
		assert.NotEmpty(t, p.Title, r)
		assert.NotEmpty(t, p.Emoji, r)
		assert.NotEmpty(t, p.Prompt, r)
	}
	assert.Equal(t, "Financial Analyst", tbl.Get(model.RoleFinancial).Title)
	assert.Equal(t, "🚀", tbl.Get(model.RoleAerospace).Emoji)
}

func TestManagerPromptListsTriagedRoles(t *testing.T) {
	prompt := Default().Get(model.RoleManager).Prompt
	for _, r := range model.TriagedRoles() {
		assert.Contains(t, prompt, "- "+string(r)+":")
	}
	assert.NotContains(t, prompt, "- researcher:")
	assert.Contains(t, prompt, `"selected"`)
}

func TestGetUnknownRole(t *testing.T) {
	p := Default().Get(model.Role("oracle"))
	assert.Equal(t, "oracle", p.Title)
	assert.Empty(t, p.Prompt)
}

func TestNewRecordAndHeading(t *testing.T) {
	tbl := Default()
	rec := tbl.NewRecord(model.RoleSummary)
	assert.Equal(t, model.AgentRecord{
		Role:   model.RoleSummary,
		Title:  "Executive Summary",
		Emoji:  "📋",
		Status: model.AgentStatusPending,
	}, rec)
	assert.Equal(t, "## 📋 Executive Summary", tbl.Heading(model.RoleSummary))
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`personas:
  strategist:
    title: Strategy Partner
    prompt: Be brief.
  physics:
    focus: lasers only
gap_prompt: Ask three questions.
`), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)

	s := tbl.Get(model.RoleStrategist)
	assert.Equal(t, "Strategy Partner", s.Title)
	assert.Equal(t, "📊", s.Emoji)
	assert.Equal(t, "Be brief.", s.Prompt)
	assert.Equal(t, "Ask three questions.", tbl.GapPrompt())
	assert.Contains(t, tbl.Get(model.RoleManager).Prompt, "- physics: lasers only")
	assert.Equal(t, "Manager Agent", tbl.Get(model.RoleManager).Title)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas:\n  astrologer:\n    title: x\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown role"))
}

func TestLoadEmptyPath(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().GapPrompt(), tbl.GapPrompt())
}
