// Package persona holds the per-role configuration the pipeline dispatches
// on: display title, icon and the system prompt sent to the model.
package persona

import (
	"fmt"
	"strings"

	"github.com/sells-group/analyst/internal/model"
)

// Persona is the configuration for one role.
type Persona struct {
	Role   model.Role `yaml:"-"`
	Title  string     `yaml:"title"`
	Emoji  string     `yaml:"emoji"`
	Focus  string     `yaml:"focus"`
	Prompt string     `yaml:"prompt"`
}

// Table maps every known role to its persona.
type Table struct {
	personas  map[model.Role]Persona
	gapPrompt string
}

// Default returns the built-in table.
func Default() *Table {
	t := &Table{
		personas:  make(map[model.Role]Persona, len(defaults)),
		gapPrompt: gapPrompt,
	}
	for role, p := range defaults {
		p.Role = role
		t.personas[role] = p
	}
	t.personas[model.RoleManager] = t.managerPersona()
	return t
}

// Get returns the persona for role. Unknown roles get a generic persona so
// display metadata is never empty.
func (t *Table) Get(role model.Role) Persona {
	if p, ok := t.personas[role]; ok {
		return p
	}
	return Persona{Role: role, Title: string(role), Emoji: "•"}
}

// GapPrompt is the system prompt for gap-question generation.
func (t *Table) GapPrompt() string {
	return t.gapPrompt
}

// NewRecord returns a pending agent record carrying the role's display data.
func (t *Table) NewRecord(role model.Role) model.AgentRecord {
	p := t.Get(role)
	return model.AgentRecord{
		Role:   role,
		Title:  p.Title,
		Emoji:  p.Emoji,
		Status: model.AgentStatusPending,
	}
}

// Heading formats the section heading used when one role's output is
// shown to another.
func (t *Table) Heading(role model.Role) string {
	p := t.Get(role)
	return fmt.Sprintf("## %s %s", p.Emoji, p.Title)
}

func (t *Table) managerPersona() Persona {
	p := defaults[model.RoleManager]
	p.Role = model.RoleManager

	var b strings.Builder
	b.WriteString(managerPreamble)
	b.WriteString("\n\nSPECIALISTS:\n")
	for _, r := range model.TriagedRoles() {
		fmt.Fprintf(&b, "- %s: %s\n", r, t.personas[r].Focus)
	}
	b.WriteString(managerRules)
	p.Prompt = b.String()
	return p
}
