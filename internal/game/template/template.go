// Package template provides damagable archetypes loaded from YAML.
package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/damagable/internal/game/damagable"
	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

// ErrTemplateNotFound is returned when a lookup names an unknown template.
var ErrTemplateNotFound = errors.New("template not found")

// Template defines a reusable damagable archetype.
type Template struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	MaxHealth int    `yaml:"max_health"`
	// CreateHealthbar defaults to true when omitted.
	CreateHealthbar *bool  `yaml:"create_healthbar"`
	HitSFX          string `yaml:"hit_sfx"`
	DieSFX          string `yaml:"die_sfx"`
	Indicator       string `yaml:"indicator"`
	// Flash is a duration string (e.g. "150ms"); empty uses the default.
	Flash string `yaml:"flash"`
	Debug bool   `yaml:"debug"`
	// Modifiers are applied to every incoming hit, in order, e.g. ["-1", "x1.5"].
	Modifiers []string `yaml:"modifiers"`
	// Scripts name Lua scripts whose hooks are attached to each instance.
	Scripts []string `yaml:"scripts"`

	parsed []modifier.Modifier
	flash  time.Duration
}

// Validate checks that the template satisfies basic invariants and caches the
// parsed modifiers and flash duration.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, MaxHealth >= 1, Flash
// is empty or a non-negative duration, and every modifier parses.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("damagable template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("damagable template %q: name must not be empty", t.ID)
	}
	if t.MaxHealth < 1 {
		return fmt.Errorf("damagable template %q: max_health must be >= 1", t.ID)
	}
	t.flash = 0
	if t.Flash != "" {
		d, err := time.ParseDuration(t.Flash)
		if err != nil {
			return fmt.Errorf("damagable template %q: flash %q is not a valid duration: %w", t.ID, t.Flash, err)
		}
		if d < 0 {
			return fmt.Errorf("damagable template %q: flash must not be negative", t.ID)
		}
		t.flash = d
	}
	t.parsed = t.parsed[:0]
	for _, s := range t.Modifiers {
		m, err := modifier.Parse(s)
		if err != nil {
			return fmt.Errorf("damagable template %q: %w", t.ID, err)
		}
		m.Source = "template:" + t.ID
		t.parsed = append(t.parsed, m)
	}
	for _, s := range t.Scripts {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("damagable template %q: script names must not be empty", t.ID)
		}
	}
	return nil
}

// Config returns the static damagable configuration for this template.
//
// Precondition: Validate has returned nil.
func (t *Template) Config() damagable.Config {
	createHealthbar := true
	if t.CreateHealthbar != nil {
		createHealthbar = *t.CreateHealthbar
	}
	return damagable.Config{
		Name:            t.Name,
		MaxHealth:       t.MaxHealth,
		CreateHealthbar: createHealthbar,
		HitSFX:          t.HitSFX,
		DieSFX:          t.DieSFX,
		Indicator:       t.Indicator,
		FlashDuration:   t.flash,
		Debug:           t.Debug,
	}
}

// StaticContributor returns a contributor adding the template modifiers to every
// damage event, or nil when the template declares none.
//
// Precondition: Validate has returned nil.
func (t *Template) StaticContributor() damagable.ModifierContributor {
	if len(t.parsed) == 0 {
		return nil
	}
	mods := append([]modifier.Modifier(nil), t.parsed...)
	return damagable.ContributorFunc(func(b *modifier.Bank) {
		for _, m := range mods {
			b.Add(m)
		}
	})
}

// LoadTemplateFromBytes parses a single template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// Registry indexes templates by ID.
type Registry struct {
	byID map[string]*Template
}

// NewRegistry builds a Registry.
//
// Postcondition: Returns an error if two templates share an ID.
func NewRegistry(templates []*Template) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate damagable template id %q", t.ID)
		}
		r.byID[t.ID] = t
	}
	return r, nil
}

// Get returns the template with the given ID, or an error wrapping ErrTemplateNotFound.
func (r *Registry) Get(id string) (*Template, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	return t, nil
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	return len(r.byID)
}
