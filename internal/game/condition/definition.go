// Package condition defines timed status effects whose damage modifiers are
// contributed to every hit an afflicted entity takes.
package condition

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

// ErrUnknownCondition is returned when a condition ID is not registered.
var ErrUnknownCondition = errors.New("condition: unknown condition")

// ConditionDef is the static definition of a condition, loaded from YAML.
type ConditionDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Duration is how long one application lasts, e.g. "2s"; empty is permanent.
	Duration  string `yaml:"duration"`
	MaxStacks int    `yaml:"max_stacks"` // 0 = unstackable
	// Modifiers are added once per stack to every incoming hit, e.g. ["x1.5"].
	Modifiers []string `yaml:"modifiers"`

	duration time.Duration
	parsed   []modifier.Modifier
}

// Validate checks the definition and caches its duration and modifiers.
//
// Postcondition: Returns nil iff ID and Name are set, MaxStacks >= 0, Duration is
// empty or a positive duration, and every modifier parses.
func (d *ConditionDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("condition: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("condition %q: name must not be empty", d.ID)
	}
	if d.MaxStacks < 0 {
		return fmt.Errorf("condition %q: max_stacks must be >= 0", d.ID)
	}
	d.duration = 0
	if d.Duration != "" {
		dur, err := time.ParseDuration(d.Duration)
		if err != nil {
			return fmt.Errorf("condition %q: duration %q: %w", d.ID, d.Duration, err)
		}
		if dur <= 0 {
			return fmt.Errorf("condition %q: duration must be positive", d.ID)
		}
		d.duration = dur
	}
	d.parsed = d.parsed[:0]
	for _, s := range d.Modifiers {
		m, err := modifier.Parse(s)
		if err != nil {
			return fmt.Errorf("condition %q: %w", d.ID, err)
		}
		m.Source = "condition:" + d.ID
		d.parsed = append(d.parsed, m)
	}
	return nil
}

// Permanent reports whether the condition never expires on its own.
func (d *ConditionDef) Permanent() bool { return d.duration == 0 }

// Length returns the parsed duration; 0 for permanent conditions.
func (d *ConditionDef) Length() time.Duration { return d.duration }

// Registry holds all known ConditionDefs keyed by ID.
type Registry struct {
	defs map[string]*ConditionDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*ConditionDef)}
}

// Register validates def and adds it, overwriting any entry with the same ID.
func (r *Registry) Register(def *ConditionDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.defs[def.ID] = def
	return nil
}

// Get returns the ConditionDef for id, or an error wrapping ErrUnknownCondition.
func (r *Registry) Get(id string) (*ConditionDef, error) {
	d, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, id)
	}
	return d, nil
}

// All returns every registered ConditionDef ordered by ID.
func (r *Registry) All() []*ConditionDef {
	out := make([]*ConditionDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a ConditionDef,
// and returns a populated Registry. Unknown YAML fields are rejected.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading condition dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def ConditionDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := reg.Register(&def); err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
	}
	return reg, nil
}
