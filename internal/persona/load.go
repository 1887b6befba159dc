package persona

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/analyst/internal/model"
)

// File is the YAML shape of a persona override file:
//
//	personas:
//	  strategist:
//	    title: Strategy Partner
//	    prompt: |
//	      ...
//	gap_prompt: |
//	  ...
type File struct {
	Personas  map[string]Persona `yaml:"personas"`
	GapPrompt string             `yaml:"gap_prompt"`
}

// Load returns the default table with any overrides from path applied.
// Empty fields in the file keep their defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "persona: read %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "persona: parse overrides")
	}
	if err := t.apply(f); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) apply(f File) error {
	for key, o := range f.Personas {
		role := model.Role(key)
		if !role.Valid() {
			return eris.Errorf("persona: unknown role %q", key)
		}
		p := t.personas[role]
		if o.Title != "" {
			p.Title = o.Title
		}
		if o.Emoji != "" {
			p.Emoji = o.Emoji
		}
		if o.Focus != "" {
			p.Focus = o.Focus
		}
		if o.Prompt != "" {
			p.Prompt = o.Prompt
		}
		t.personas[role] = p
	}
	if f.GapPrompt != "" {
		t.gapPrompt = f.GapPrompt
	}

	// Focus overrides feed the generated manager prompt.
	if o := f.Personas[string(model.RoleManager)]; o.Prompt == "" {
		cur := t.personas[model.RoleManager]
		m := t.managerPersona()
		m.Title, m.Emoji = cur.Title, cur.Emoji
		t.personas[model.RoleManager] = m
	}
	return nil
}
