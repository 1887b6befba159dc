package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analyst/internal/model"
	"github.com/sells-group/analyst/internal/persona"
)

// Default reasons recorded when the manager's output is incomplete.
const (
	ReasonOmitted        = "Not selected by the manager"
	ReasonTriageFailed   = "Triage unavailable; every specialist runs"
	ReasonTriageDisabled = "Triage disabled; every specialist runs"
)

// ParseDecision extracts a ManagerDecision from raw model output. Both lists
// must be present; entries may still be incomplete, see Normalize.
func ParseDecision(raw string) (*model.ManagerDecision, error) {
	text := cleanJSON(raw)
	var payload struct {
		Selected *[]model.RoleReason `json:"selected"`
		Skipped  *[]model.RoleReason `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse manager decision")
	}
	if payload.Selected == nil || payload.Skipped == nil {
		return nil, eris.New("pipeline: manager decision missing selected or skipped")
	}
	return &model.ManagerDecision{Selected: *payload.Selected, Skipped: *payload.Skipped}, nil
}

// Normalize returns a decision covering exactly the triaged role set. Roles
// listed as selected win over skipped; roles in neither list are skipped with
// ReasonOmitted; unknown and always-run roles are dropped.
func Normalize(d *model.ManagerDecision) *model.ManagerDecision {
	selected := make(map[model.Role]string)
	skipped := make(map[model.Role]string)
	for _, s := range d.Selected {
		if _, seen := selected[s.Role]; !seen {
			selected[s.Role] = strings.TrimSpace(s.Reason)
		}
	}
	for _, s := range d.Skipped {
		if _, seen := skipped[s.Role]; !seen {
			skipped[s.Role] = strings.TrimSpace(s.Reason)
		}
	}

	out := &model.ManagerDecision{Selected: []model.RoleReason{}, Skipped: []model.RoleReason{}}
	for _, r := range model.TriagedRoles() {
		if reason, ok := selected[r]; ok {
			out.Selected = append(out.Selected, model.RoleReason{Role: r, Reason: reason})
			continue
		}
		reason, ok := skipped[r]
		if !ok || reason == "" {
			reason = ReasonOmitted
		}
		out.Skipped = append(out.Skipped, model.RoleReason{Role: r, Reason: reason})
	}
	return out
}

// SelectAll is the fail-open decision: every triaged role runs.
func SelectAll(reason string) *model.ManagerDecision {
	d := &model.ManagerDecision{Selected: []model.RoleReason{}, Skipped: []model.RoleReason{}}
	for _, r := range model.TriagedRoles() {
		d.Selected = append(d.Selected, model.RoleReason{Role: r, Reason: reason})
	}
	return d
}

// Decide turns raw manager output into a complete decision, selecting every
// role when the output cannot be used.
func Decide(raw string) (*model.ManagerDecision, bool) {
	d, err := ParseDecision(raw)
	if err != nil {
		return SelectAll(ReasonTriageFailed), false
	}
	return Normalize(d), true
}

// applyDecision marks unselected triaged roles skipped and fills in the
// manager's record with a report of the decision.
func applyDecision(job *model.Job, d *model.ManagerDecision, personas *persona.Table, parsed bool) {
	job.ManagerDecision = d
	for i := range job.Agents {
		a := &job.Agents[i]
		if !a.Role.Triaged() || d.IsSelected(a.Role) {
			continue
		}
		reason, ok := d.SkipReason(a.Role)
		if !ok || reason == "" {
			reason = ReasonOmitted
		}
		a.Status = model.AgentStatusSkipped
		a.SkippedReason = reason
		a.Content = ""
		a.Error = ""
	}
	if m := job.Agent(model.RoleManager); m != nil {
		m.Status = model.AgentStatusComplete
		m.Content = ManagerReport(d, personas, parsed)
		m.Error = ""
	}
}

// ManagerReport renders a decision for the manager's agent record.
func ManagerReport(d *model.ManagerDecision, personas *persona.Table, parsed bool) string {
	var b strings.Builder
	total := len(d.Selected) + len(d.Skipped)
	fmt.Fprintf(&b, "**Triage decision:** %d of %d specialists selected, %d skipped.\n", len(d.Selected), total, len(d.Skipped))
	if !parsed {
		b.WriteString("\n_The manager's response could not be used, so every specialist was selected._\n")
	}

	writeList := func(heading string, entries []model.RoleReason) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n### %s\n", heading)
		for _, e := range entries {
			p := personas.Get(e.Role)
			fmt.Fprintf(&b, "- %s **%s**: %s\n", p.Emoji, p.Title, e.Reason)
		}
	}
	writeList("Selected", d.Selected)
	writeList("Skipped", d.Skipped)
	return b.String()
}

// cleanJSON strips code fences and trims to the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
