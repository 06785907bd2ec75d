// Package damagable implements health tracking for a single entity: damage run
// through a modifier pipeline, healing, one-shot death notification and the
// visual and audio feedback that accompanies each hit.
//
// A Damagable is owned by one simulation loop and is not safe for concurrent use.
package damagable

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/effect"
	"github.com/cory-johannsen/damagable/internal/game/modifier"
	"github.com/cory-johannsen/damagable/internal/observability"
)

// ErrInvalidConfig is returned by New when the static configuration is unusable.
var ErrInvalidConfig = errors.New("damagable: invalid config")

// Config is the author-time configuration of a Damagable.
type Config struct {
	// Name is used for logging and healthbar labels.
	Name string
	// MaxHealth is the starting and maximum health.
	MaxHealth int
	// CreateHealthbar requests a healthbar from the indicator canvas on start.
	CreateHealthbar bool
	// HitSFX is played on a non-lethal hit.
	HitSFX string
	// DieSFX is played on the lethal hit.
	DieSFX string
	// Indicator names the floating damage-number template; empty disables indicators.
	Indicator string
	// FlashDuration is how long the sprite stays tinted after a hit; 0 uses the default.
	FlashDuration time.Duration
	// Debug logs every damage calculation.
	Debug bool
}

// Validate reports whether the configuration can produce a live entity.
func (c Config) Validate() error {
	if c.MaxHealth < 1 {
		return fmt.Errorf("%w: max health must be >= 1, got %d", ErrInvalidConfig, c.MaxHealth)
	}
	if c.FlashDuration < 0 {
		return fmt.Errorf("%w: flash duration must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Deps carries the collaborators of a Damagable. Every field is optional; a
// missing collaborator disables the feedback it provides and never the health
// logic itself.
type Deps struct {
	// ID identifies the entity; empty generates a random UUID.
	ID       string
	Position Vec3
	Scene    Scene
	Audio    AudioPlayer
	// Sprite is tinted on every hit.
	Sprite effect.Tintable
	// Scheduler runs the flash revert; nil uses effect.TimerScheduler.
	Scheduler effect.Scheduler
	Logger    *zap.Logger

	// Handlers subscribed before start, in order. Spawn observers can only be
	// registered here since New starts the entity.
	Contributors   []ModifierContributor
	DeathObservers []DeathObserver
	SpawnObservers []SpawnObserver
}

type state int

const (
	alive state = iota
	dead
)

// Damagable holds the health of one entity.
//
// Invariant: 0 <= CurrentHealth() <= MaxHealth().
type Damagable struct {
	id     string
	cfg    Config
	logger *zap.Logger

	current int
	pos     Vec3
	state   state

	canvas     Canvas
	healthbars HealthbarRegistry
	healthbar  bool
	audio      AudioPlayer
	flash      *effect.Flash

	modifiers handlers[ModifierContributor]
	deaths    handlers[DeathObserver]
	spawns    handlers[SpawnObserver]

	destroyOnce sync.Once
}

// New creates a Damagable at full health, resolves its UI canvas, creates its
// healthbar when configured and notifies spawn observers.
//
// Precondition: cfg.MaxHealth >= 1.
// Postcondition: Returns a live Damagable with CurrentHealth() == cfg.MaxHealth,
// or an error wrapping ErrInvalidConfig. A missing canvas is logged at Error
// and the entity runs without healthbar and indicators.
func New(cfg Config, deps Deps) (*Damagable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := deps.ID
	if id == "" {
		id = uuid.NewString()
	}

	d := &Damagable{
		id:      id,
		cfg:     cfg,
		current: cfg.MaxHealth,
		pos:     deps.Position,
		audio:   deps.Audio,
		logger:  observability.ForEntity(logger, id, cfg.Name),
	}
	for _, c := range deps.Contributors {
		d.modifiers.add(c)
	}
	for _, o := range deps.DeathObservers {
		d.deaths.add(o)
	}
	for _, o := range deps.SpawnObservers {
		d.spawns.add(o)
	}

	d.awake(deps)
	d.start()
	return d, nil
}

func (d *Damagable) awake(deps Deps) {
	if deps.Sprite != nil {
		sched := deps.Scheduler
		if sched == nil {
			sched = effect.TimerScheduler{}
		}
		d.flash = effect.NewFlash(deps.Sprite, effect.Red, d.cfg.FlashDuration, sched)
	}

	if deps.Scene == nil {
		d.logger.Error("damagable: no scene to resolve the indicator canvas; running without healthbar and indicators",
			zap.String("tag", IndicatorCanvasTag),
		)
		return
	}
	canvas, err := deps.Scene.FindCanvas(IndicatorCanvasTag)
	if err != nil || canvas == nil {
		d.logger.Error("damagable: indicator canvas lookup failed; running without healthbar and indicators",
			zap.String("tag", IndicatorCanvasTag),
			zap.Error(err),
		)
		return
	}
	d.canvas = canvas
	d.healthbars = canvas.Healthbars()
}

func (d *Damagable) start() {
	if d.healthbars != nil && d.cfg.CreateHealthbar {
		d.healthbars.CreateHealthbar(d)
		d.healthbar = true
		if d.cfg.Debug {
			d.logger.Debug("created healthbar")
		}
	}
	for _, o := range d.spawns.snapshot() {
		o.OnSpawn(d)
	}
}

// ID returns the entity identifier.
func (d *Damagable) ID() string { return d.id }

// Name returns the configured name.
func (d *Damagable) Name() string { return d.cfg.Name }

// CurrentHealth returns the current health.
func (d *Damagable) CurrentHealth() int { return d.current }

// MaxHealth returns the maximum health.
func (d *Damagable) MaxHealth() int { return d.cfg.MaxHealth }

// Alive reports whether the entity has neither died nor been destroyed.
func (d *Damagable) Alive() bool { return d.state == alive }

// Position returns the position used for sound and indicator placement.
func (d *Damagable) Position() Vec3 { return d.pos }

// SetPosition moves the entity.
func (d *Damagable) SetPosition(p Vec3) { d.pos = p }

// SubscribeDamageModifier registers c to contribute to every subsequent damage event.
// Contributors are notified in subscription order.
func (d *Damagable) SubscribeDamageModifier(c ModifierContributor) Unsubscribe {
	return d.modifiers.add(c)
}

// SubscribeDeath registers o to be notified when health reaches zero.
func (d *Damagable) SubscribeDeath(o DeathObserver) Unsubscribe {
	return d.deaths.add(o)
}

// Damage applies base damage after running it through the modifier pipeline.
//
// Each call builds a fresh modifier bank, lets every subscribed contributor add to
// it in subscription order, and removes the truncated result from health. The hit
// then flashes the sprite, plays the die sound and runs death handling if health
// reached zero (otherwise the hit sound), and spawns a floating damage number.
//
// Postcondition: Returns the final damage value. Once the entity is dead or
// destroyed the call has no effect and returns 0.
func (d *Damagable) Damage(base int) int {
	if d.state != alive {
		return 0
	}

	bank := modifier.NewBank()
	for _, c := range d.modifiers.snapshot() {
		c.ContributeDamageModifiers(bank)
	}
	final := saturate(bank.Calculate(float64(base)))
	if d.cfg.Debug {
		d.logger.Debug("damage calculated",
			zap.Int("base", base),
			zap.Int("final", final),
			zap.Int("modifiers", bank.Len()),
		)
	}

	d.current = afterDamage(d.current, final, d.cfg.MaxHealth)

	if d.flash != nil {
		d.flash.Trigger()
	}

	if d.current == 0 {
		d.playSFX(d.cfg.DieSFX)
		d.die()
	} else {
		d.playSFX(d.cfg.HitSFX)
	}

	d.showIndicator(final)
	return final
}

// Heal raises health by value, capped at MaxHealth. A negative value lowers
// health but never below 1: only Damage kills.
//
// Postcondition: Returns the new health. No effect once dead or destroyed.
func (d *Damagable) Heal(value int) int {
	if d.state != alive {
		return d.current
	}
	switch {
	case value >= d.cfg.MaxHealth-d.current:
		d.current = d.cfg.MaxHealth
	case value <= 1-d.current:
		d.current = 1
	default:
		d.current += value
	}
	return d.current
}

// Destroy tears the entity down: the pending flash is cancelled, the healthbar is
// released and every further Damage or Heal becomes a no-op. Death observers are
// not notified. Safe to call more than once.
func (d *Damagable) Destroy() {
	d.destroyOnce.Do(func() {
		d.state = dead
		if d.flash != nil {
			d.flash.Cancel()
		}
		if d.healthbar {
			d.healthbars.DeleteHealthbar(d)
			d.healthbar = false
		}
		d.modifiers.clear()
		d.logger.Debug("destroyed")
	})
}

func (d *Damagable) die() {
	observers := d.deaths.snapshot()
	d.deaths.clear()
	// Mark dead before notifying so observers that damage or heal us see no effect.
	d.state = dead
	for _, o := range observers {
		o.OnDeath(d)
	}
	d.Destroy()
}

func (d *Damagable) playSFX(event string) {
	if d.audio == nil {
		return
	}
	if event == "" {
		d.logger.Warn("damagable: sfx reference undefined")
		return
	}
	d.audio.PlayOneShot(event, d.pos)
}

func (d *Damagable) showIndicator(value int) {
	if d.cfg.Indicator == "" || d.canvas == nil {
		return
	}
	d.canvas.SpawnIndicator(d.cfg.Indicator, value, d.pos)
}

// saturate converts a calculated value to int, truncating toward zero. NaN is 0
// and out of range values pin to the int limits.
func saturate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt:
		return math.MaxInt
	case v <= math.MinInt:
		return math.MinInt
	}
	return int(v)
}

// afterDamage returns the health left after removing final from current,
// within [0, maxHealth]. Negative final values heal.
func afterDamage(current, final, maxHealth int) int {
	switch {
	case final >= current:
		return 0
	case final <= current-maxHealth:
		return maxHealth
	}
	return current - final
}
