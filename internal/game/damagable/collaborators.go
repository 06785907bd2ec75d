package damagable

import (
	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

// IndicatorCanvasTag is the tag of the scene canvas that hosts healthbars and
// floating damage numbers.
const IndicatorCanvasTag = "WorldspaceIndicators"

// Vec3 is a world-space position.
type Vec3 struct {
	X, Y, Z float64
}

// Health is the read-only view of a Damagable handed to UI collaborators.
type Health interface {
	ID() string
	Name() string
	CurrentHealth() int
	MaxHealth() int
}

// HealthbarRegistry creates and releases the visual healthbar for an entity.
type HealthbarRegistry interface {
	CreateHealthbar(h Health)
	DeleteHealthbar(h Health)
}

// Canvas is the UI root that floating damage numbers are spawned under.
type Canvas interface {
	// SpawnIndicator shows value at pos using the named indicator template.
	SpawnIndicator(template string, value int, pos Vec3)
	// Healthbars returns the canvas healthbar registry, or nil if it has none.
	Healthbars() HealthbarRegistry
}

// Scene resolves tagged UI roots.
type Scene interface {
	FindCanvas(tag string) (Canvas, error)
}

// AudioPlayer plays fire-and-forget sound events.
type AudioPlayer interface {
	PlayOneShot(event string, pos Vec3)
}

// ModifierContributor adds entries to the bank built for each damage event.
type ModifierContributor interface {
	ContributeDamageModifiers(b *modifier.Bank)
}

// DeathObserver is notified once when a Damagable's health reaches zero.
type DeathObserver interface {
	OnDeath(d *Damagable)
}

// SpawnObserver is notified once when a Damagable finishes starting.
type SpawnObserver interface {
	OnSpawn(d *Damagable)
}

// ContributorFunc adapts a function to ModifierContributor.
type ContributorFunc func(b *modifier.Bank)

// ContributeDamageModifiers calls f(b).
func (f ContributorFunc) ContributeDamageModifiers(b *modifier.Bank) { f(b) }

// DeathFunc adapts a function to DeathObserver.
type DeathFunc func(d *Damagable)

// OnDeath calls f(d).
func (f DeathFunc) OnDeath(d *Damagable) { f(d) }

// SpawnFunc adapts a function to SpawnObserver.
type SpawnFunc func(d *Damagable)

// OnSpawn calls f(d).
func (f SpawnFunc) OnSpawn(d *Damagable) { f(d) }

// Unsubscribe detaches a previously subscribed handler. Safe to call more than once.
type Unsubscribe func()

// handlers is an ordered list of registrations. Removal is by registration, so
// the same handler subscribed twice is notified twice and removed one at a time.
type handlers[T any] struct {
	next    uint64
	entries []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id uint64
	h  T
}

func (l *handlers[T]) add(h T) Unsubscribe {
	l.next++
	id := l.next
	l.entries = append(l.entries, handlerEntry[T]{id: id, h: h})
	return func() { l.remove(id) }
}

func (l *handlers[T]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the handlers in subscription order. Handlers may subscribe or
// unsubscribe while the snapshot is being iterated.
func (l *handlers[T]) snapshot() []T {
	out := make([]T, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.h
	}
	return out
}

func (l *handlers[T]) len() int {
	return len(l.entries)
}

func (l *handlers[T]) clear() {
	l.entries = nil
}
