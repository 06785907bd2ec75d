// Package arena hosts a set of damagable entities on a single simulation clock.
package arena

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/audio"
	"github.com/cory-johannsen/damagable/internal/game/condition"
	"github.com/cory-johannsen/damagable/internal/game/damagable"
	"github.com/cory-johannsen/damagable/internal/game/effect"
	"github.com/cory-johannsen/damagable/internal/game/template"
	"github.com/cory-johannsen/damagable/internal/game/ui"
	"github.com/cory-johannsen/damagable/internal/journal"
	"github.com/cory-johannsen/damagable/internal/observability"
	"github.com/cory-johannsen/damagable/internal/scripting"
)

// ErrEntityNotFound is returned when an entity ID is not registered in the arena.
var ErrEntityNotFound = errors.New("arena: entity not found")

// BaseColor is the untinted sprite color of every spawned entity.
var BaseColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Options configures an Arena. Only Templates is required.
type Options struct {
	// Run tags every journal event; empty generates a UUID.
	Run       string
	Templates *template.Registry
	// Scripts attaches template scripts; nil disables scripting.
	Scripts *scripting.Manager
	// Conditions resolves Apply requests; nil disables conditions.
	Conditions *condition.Registry
	// Sink receives journal events; nil discards them.
	Sink journal.Sink
	// Audio plays hit and death sounds; nil uses an audio.LogPlayer.
	Audio damagable.AudioPlayer
	// UIRoot is the tag of the canvas added to the scene. Entities resolve
	// damagable.IndicatorCanvasTag, so any other tag, or none, runs them
	// without healthbars and indicators.
	UIRoot string
	// FlashDuration applies to templates that leave flash unset.
	FlashDuration time.Duration
	// Epoch is the wall time of virtual time zero; zero uses time.Now.
	Epoch  time.Time
	Logger *zap.Logger
}

// Sprite is the tintable stand-in for an entity's visual.
type Sprite struct {
	mu sync.Mutex
	c  color.RGBA
}

// Color returns the current tint.
func (s *Sprite) Color() color.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// SetColor replaces the tint.
func (s *Sprite) SetColor(c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
}

type entity struct {
	d          *damagable.Damagable
	tmpl       *template.Template
	sprite     *Sprite
	conditions *condition.ActiveSet
}

// Arena owns spawned entities and drives their timed effects through a
// DeferredScheduler. All methods are safe for concurrent use, but timed
// effects only run inside Advance.
type Arena struct {
	mu       sync.Mutex
	run      string
	opts     Options
	sched    *effect.DeferredScheduler
	scene    *ui.Scene
	canvas   *ui.Canvas
	audio    damagable.AudioPlayer
	sink     journal.Sink
	logger   *zap.Logger
	epoch    time.Time
	entities map[string]*entity
	order    []string
}

// New creates an empty Arena.
//
// Precondition: opts.Templates must be non-nil.
// Postcondition: Returns a ready Arena or an error.
func New(opts Options) (*Arena, error) {
	if opts.Templates == nil {
		return nil, fmt.Errorf("arena.New: templates must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	run := opts.Run
	if run == "" {
		run = uuid.NewString()
	}
	a := &Arena{
		run:      run,
		opts:     opts,
		sched:    effect.NewDeferredScheduler(),
		scene:    ui.NewScene(),
		audio:    opts.Audio,
		sink:     opts.Sink,
		logger:   observability.ForRun(logger, run),
		epoch:    opts.Epoch,
		entities: make(map[string]*entity),
	}
	if a.audio == nil {
		a.audio = audio.NewLogPlayer(a.logger)
	}
	if a.sink == nil {
		a.sink = journal.Nop{}
	}
	if a.epoch.IsZero() {
		a.epoch = time.Now()
	}
	if opts.UIRoot != "" {
		a.canvas = ui.NewCanvas(opts.UIRoot, a.logger)
		a.scene.Add(a.canvas)
	}
	return a, nil
}

// Run returns the run identifier stamped on journal events.
func (a *Arena) Run() string { return a.run }

// Canvas returns the indicator canvas, or nil when the arena has none.
func (a *Arena) Canvas() *ui.Canvas { return a.canvas }

// Now returns the wall time corresponding to the arena's virtual clock.
func (a *Arena) Now() time.Time {
	return a.epoch.Add(a.sched.Now())
}

// Spawn creates an entity from the named template at pos and returns its ID.
//
// Postcondition: Returns the new entity's unique ID, or an error wrapping
// template.ErrTemplateNotFound.
func (a *Arena) Spawn(templateID string, pos damagable.Vec3) (string, error) {
	tmpl, err := a.opts.Templates.Get(templateID)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	cfg := tmpl.Config()
	if cfg.FlashDuration == 0 {
		cfg.FlashDuration = a.opts.FlashDuration
	}

	e := &entity{tmpl: tmpl, sprite: &Sprite{c: BaseColor}}
	e.conditions = condition.NewActiveSet(a.sched, func(cond string) {
		a.logger.Debug("condition expired", zap.String(observability.EntityKey, id), zap.String("condition", cond))
	})
	deps := damagable.Deps{
		ID:        id,
		Position:  pos,
		Scene:     a.scene,
		Audio:     a.audio,
		Sprite:    e.sprite,
		Scheduler: a.sched,
		Logger:    a.logger.With(zap.String("template", tmpl.ID)),
	}
	if static := tmpl.StaticContributor(); static != nil {
		deps.Contributors = append(deps.Contributors, static)
	}
	deps.Contributors = append(deps.Contributors, e.conditions)
	a.attachScripts(tmpl, &deps, e)

	d, err := damagable.New(cfg, deps)
	if err != nil {
		return "", fmt.Errorf("spawning %q: %w", templateID, err)
	}
	e.d = d
	a.entities[id] = e
	a.order = append(a.order, id)
	a.logger.Debug("spawned",
		zap.String(observability.EntityKey, id),
		zap.String("template", tmpl.ID),
		zap.Int("health", d.CurrentHealth()),
	)
	return id, nil
}

func (a *Arena) attachScripts(tmpl *template.Template, deps *damagable.Deps, e *entity) {
	if len(tmpl.Scripts) == 0 {
		return
	}
	if a.opts.Scripts == nil {
		a.logger.Warn("template scripts ignored, scripting disabled",
			zap.String("template", tmpl.ID),
			zap.Strings("scripts", tmpl.Scripts),
		)
		return
	}
	info := func() scripting.EntityInfo { return scripting.Snapshot(e.d) }
	for _, s := range tmpl.Scripts {
		deps.Contributors = append(deps.Contributors, a.opts.Scripts.Contributor(s, info))
		deps.DeathObservers = append(deps.DeathObservers, a.opts.Scripts.DeathObserver(s))
		deps.SpawnObservers = append(deps.SpawnObservers, a.opts.Scripts.SpawnObserver(s))
	}
}

// Damage applies base damage to the entity and journals the hit; a lethal hit
// also journals the death and removes the entity.
//
// Postcondition: Returns the final damage after modifiers, or ErrEntityNotFound.
// The damage is applied even when the journal write fails.
func (a *Arena) Damage(ctx context.Context, id string, base int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	final := e.d.Damage(base)
	events := []journal.Event{a.event(journal.KindHit, e, base, final)}
	if !e.d.Alive() {
		events = append(events, a.event(journal.KindDeath, e, 0, 0))
		a.removeLocked(id)
	}
	return final, a.record(ctx, events...)
}

// Apply afflicts the entity with stacks of the named condition.
//
// Postcondition: Returns the condition's stack count after the call, or an
// error wrapping ErrEntityNotFound or condition.ErrUnknownCondition.
func (a *Arena) Apply(id, conditionID string, stacks int) (int, error) {
	if a.opts.Conditions == nil {
		return 0, fmt.Errorf("%w: %q (conditions disabled)", condition.ErrUnknownCondition, conditionID)
	}
	def, err := a.opts.Conditions.Get(conditionID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if err := e.conditions.Apply(def, stacks); err != nil {
		return 0, err
	}
	n := e.conditions.Stacks(conditionID)
	a.logger.Debug("condition applied",
		zap.String(observability.EntityKey, id),
		zap.String("condition", conditionID),
		zap.Int("stacks", n),
	)
	return n, nil
}

// Conditions returns the active condition IDs of the entity in application order.
func (a *Arena) Conditions(id string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e.conditions.IDs(), nil
}

// Heal restores health to the entity and journals the amount actually restored.
//
// Postcondition: Returns the restored health, or ErrEntityNotFound.
func (a *Arena) Heal(ctx context.Context, id string, value int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	before := e.d.CurrentHealth()
	e.d.Heal(value)
	restored := e.d.CurrentHealth() - before
	return restored, a.record(ctx, a.event(journal.KindHeal, e, value, restored))
}

// Advance moves the virtual clock forward and runs due effects such as flash
// reverts.
//
// Postcondition: Returns the number of effects run.
func (a *Arena) Advance(d time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sched.Advance(d)
}

// Get returns the live entity with the given ID.
func (a *Arena) Get(id string) (*damagable.Damagable, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e.d, nil
}

// Sprite returns the sprite of the live entity with the given ID.
func (a *Arena) Sprite(id string) (*Sprite, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e.sprite, nil
}

// Alive returns the IDs of live entities in spawn order.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (a *Arena) Alive() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.order...)
}

// Close destroys every remaining entity without journaling deaths.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.order {
		e := a.entities[id]
		e.conditions.Clear()
		e.d.Destroy()
	}
	a.entities = make(map[string]*entity)
	a.order = nil
}

func (a *Arena) removeLocked(id string) {
	if e, ok := a.entities[id]; ok {
		e.conditions.Clear()
	}
	delete(a.entities, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Arena) event(kind journal.Kind, e *entity, base, final int) journal.Event {
	return journal.Event{
		Run:      a.run,
		Kind:     kind,
		EntityID: e.d.ID(),
		Template: e.tmpl.ID,
		Base:     base,
		Final:    final,
		Health:   e.d.CurrentHealth(),
		At:       a.epoch.Add(a.sched.Now()),
	}
}

func (a *Arena) record(ctx context.Context, events ...journal.Event) error {
	var errs []error
	for _, ev := range events {
		if err := a.sink.Record(ctx, ev); err != nil {
			a.logger.Error("journal write failed",
				zap.String("kind", string(ev.Kind)),
				zap.String(observability.EntityKey, ev.EntityID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("journaling %s for %s: %w", ev.Kind, ev.EntityID, err))
		}
	}
	return errors.Join(errs...)
}
