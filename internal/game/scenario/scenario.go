// Package scenario loads scripted damage runs from YAML and plays them against
// an arena.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/damagable/internal/game/damagable"
	"github.com/cory-johannsen/damagable/internal/game/dice"
)

// Spawn places one entity at the start of a scenario.
type Spawn struct {
	// As is the alias steps use to refer to the entity.
	As       string    `yaml:"as"`
	Template string    `yaml:"template"`
	Position []float64 `yaml:"position"`
}

// Vec returns the spawn position; an omitted position is the origin.
func (s Spawn) Vec() damagable.Vec3 {
	if len(s.Position) != 3 {
		return damagable.Vec3{}
	}
	return damagable.Vec3{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]}
}

// Step is one scenario action. A step damages, heals or applies a condition to
// its target and may then wait; a step without a target only waits.
type Step struct {
	Target string `yaml:"target"`
	// Damage and Heal are flat or dice amounts, e.g. "4" or "2d6+1".
	Damage string `yaml:"damage"`
	Heal   string `yaml:"heal"`
	// Apply names a condition; Stacks defaults to 1.
	Apply  string `yaml:"apply"`
	Stacks int    `yaml:"stacks"`
	// Wait is a duration string advancing the arena clock after the action.
	Wait string `yaml:"wait"`

	amount dice.Amount
	wait   time.Duration
}

// Action reports what the step does to its target: "damage", "heal", "apply" or "".
func (s *Step) Action() string {
	switch {
	case s.Damage != "":
		return "damage"
	case s.Heal != "":
		return "heal"
	case s.Apply != "":
		return "apply"
	}
	return ""
}

func (s *Step) actions() int {
	n := 0
	for _, v := range []string{s.Damage, s.Heal, s.Apply} {
		if v != "" {
			n++
		}
	}
	return n
}

// Amount returns the parsed damage or heal amount.
//
// Precondition: Validate has returned nil.
func (s *Step) Amount() dice.Amount { return s.amount }

// WaitDuration returns the parsed wait.
//
// Precondition: Validate has returned nil.
func (s *Step) WaitDuration() time.Duration { return s.wait }

// Scenario is a named sequence of spawns followed by steps.
type Scenario struct {
	Name   string  `yaml:"name"`
	Spawns []Spawn `yaml:"spawns"`
	Steps  []Step  `yaml:"steps"`
}

// Validate checks the scenario's invariants and caches parsed amounts and waits.
//
// Precondition: s must not be nil.
// Postcondition: Returns nil iff the scenario has a name, every alias is unique and
// non-empty, every step target names a spawn, and every step is well formed.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: name must not be empty")
	}
	aliases := make(map[string]bool, len(s.Spawns))
	for i, sp := range s.Spawns {
		if sp.As == "" {
			return fmt.Errorf("scenario %q: spawn %d: as must not be empty", s.Name, i)
		}
		if sp.Template == "" {
			return fmt.Errorf("scenario %q: spawn %q: template must not be empty", s.Name, sp.As)
		}
		if len(sp.Position) != 0 && len(sp.Position) != 3 {
			return fmt.Errorf("scenario %q: spawn %q: position must have 3 components, got %d", s.Name, sp.As, len(sp.Position))
		}
		if aliases[sp.As] {
			return fmt.Errorf("scenario %q: duplicate spawn alias %q", s.Name, sp.As)
		}
		aliases[sp.As] = true
	}
	for i := range s.Steps {
		if err := s.validateStep(i, aliases); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) validateStep(i int, aliases map[string]bool) error {
	st := &s.Steps[i]
	if st.actions() > 1 {
		return fmt.Errorf("scenario %q: step %d: damage, heal and apply are exclusive", s.Name, i)
	}
	if st.Stacks < 0 || (st.Stacks > 0 && st.Apply == "") {
		return fmt.Errorf("scenario %q: step %d: stacks must be positive and only set with apply", s.Name, i)
	}
	if st.Target == "" {
		if st.Action() != "" {
			return fmt.Errorf("scenario %q: step %d: %s needs a target", s.Name, i, st.Action())
		}
		if st.Wait == "" {
			return fmt.Errorf("scenario %q: step %d: empty step", s.Name, i)
		}
	} else {
		if !aliases[st.Target] {
			return fmt.Errorf("scenario %q: step %d: unknown target %q", s.Name, i, st.Target)
		}
		switch st.Action() {
		case "":
			return fmt.Errorf("scenario %q: step %d: target %q needs damage, heal or apply", s.Name, i, st.Target)
		case "apply":
			if st.Stacks == 0 {
				st.Stacks = 1
			}
		default:
			a, err := dice.Parse(st.Damage + st.Heal)
			if err != nil {
				return fmt.Errorf("scenario %q: step %d: %w", s.Name, i, err)
			}
			st.amount = a
		}
	}
	st.wait = 0
	if st.Wait != "" {
		d, err := time.ParseDuration(st.Wait)
		if err != nil {
			return fmt.Errorf("scenario %q: step %d: wait %q is not a valid duration: %w", s.Name, i, st.Wait, err)
		}
		if d < 0 {
			return fmt.Errorf("scenario %q: step %d: wait must not be negative", s.Name, i)
		}
		st.wait = d
	}
	return nil
}

// LoadScenarioFromBytes parses a single scenario from raw YAML bytes.
//
// Postcondition: Returns a validated *Scenario, or an error.
func LoadScenarioFromBytes(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenarios reads all *.yaml and *.yml files in dir, in name order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all scenarios or an error on the first failure.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir %q: %w", dir, err)
	}

	var out []*Scenario
	names := make(map[string]string)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		sc, err := LoadScenarioFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		if prev, dup := names[sc.Name]; dup {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", sc.Name, prev, path)
		}
		names[sc.Name] = path
		out = append(out, sc)
	}
	return out, nil
}
