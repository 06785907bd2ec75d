// Package ui provides the in-process indicator canvas: the registry of live
// healthbars and the record of floating damage numbers.
package ui

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/damagable"
)

// ErrCanvasNotFound is returned by Scene.FindCanvas for an unknown tag.
var ErrCanvasNotFound = errors.New("ui: canvas not found")

// Healthbar is a snapshot of one live healthbar.
type Healthbar struct {
	EntityID string
	Label    string
	Current  int
	Max      int
}

// Indicator is one floating damage number.
type Indicator struct {
	Template string
	Value    int
	Position damagable.Vec3
}

// Canvas hosts healthbars and damage numbers. Safe for concurrent use.
type Canvas struct {
	mu         sync.Mutex
	tag        string
	bars       map[string]damagable.Health
	indicators []Indicator
	logger     *zap.Logger
}

// NewCanvas creates an empty Canvas.
//
// Precondition: logger must be non-nil.
func NewCanvas(tag string, logger *zap.Logger) *Canvas {
	return &Canvas{
		tag:    tag,
		bars:   make(map[string]damagable.Health),
		logger: logger.With(zap.String("canvas", tag)),
	}
}

// Tag returns the canvas tag.
func (c *Canvas) Tag() string { return c.tag }

// Healthbars returns the canvas itself as the healthbar registry.
func (c *Canvas) Healthbars() damagable.HealthbarRegistry { return c }

// CreateHealthbar starts tracking h. Creating a healthbar twice for the same entity
// replaces the first.
func (c *Canvas) CreateHealthbar(h damagable.Health) {
	c.mu.Lock()
	c.bars[h.ID()] = h
	c.mu.Unlock()
	c.logger.Debug("healthbar created", zap.String("entity", h.ID()), zap.String("label", h.Name()))
}

// DeleteHealthbar stops tracking h. Unknown entities are ignored.
func (c *Canvas) DeleteHealthbar(h damagable.Health) {
	c.mu.Lock()
	delete(c.bars, h.ID())
	c.mu.Unlock()
	c.logger.Debug("healthbar deleted", zap.String("entity", h.ID()))
}

// SpawnIndicator records a floating damage number.
func (c *Canvas) SpawnIndicator(template string, value int, pos damagable.Vec3) {
	c.mu.Lock()
	c.indicators = append(c.indicators, Indicator{Template: template, Value: value, Position: pos})
	c.mu.Unlock()
	c.logger.Debug("damage indicator",
		zap.String("template", template),
		zap.Int("value", value),
		zap.Float64("x", pos.X),
		zap.Float64("y", pos.Y),
		zap.Float64("z", pos.Z),
	)
}

// Bars returns a snapshot of every live healthbar ordered by entity ID.
func (c *Canvas) Bars() []Healthbar {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Healthbar, 0, len(c.bars))
	for id, h := range c.bars {
		out = append(out, Healthbar{EntityID: id, Label: h.Name(), Current: h.CurrentHealth(), Max: h.MaxHealth()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Indicators returns every indicator spawned so far, oldest first.
func (c *Canvas) Indicators() []Indicator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Indicator(nil), c.indicators...)
}

// Scene maps tags to canvases.
type Scene struct {
	mu       sync.RWMutex
	canvases map[string]*Canvas
}

// NewScene returns a Scene containing the given canvases.
func NewScene(canvases ...*Canvas) *Scene {
	s := &Scene{canvases: make(map[string]*Canvas, len(canvases))}
	for _, c := range canvases {
		s.canvases[c.Tag()] = c
	}
	return s
}

// Add registers c under its tag, replacing any canvas with the same tag.
func (s *Scene) Add(c *Canvas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvases[c.Tag()] = c
}

// FindCanvas returns the canvas tagged tag, or an error wrapping ErrCanvasNotFound.
func (s *Scene) FindCanvas(tag string) (damagable.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.canvases[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no canvas tagged %q", ErrCanvasNotFound, tag)
	}
	return c, nil
}
