package condition

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/damagable/internal/game/effect"
	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

// ActiveCondition tracks one applied condition on an entity.
type ActiveCondition struct {
	Def    *ConditionDef
	Stacks int

	task effect.Task
	gen  uint64
}

// ActiveSet tracks the conditions applied to one entity and contributes their
// modifiers to its damage events. Timed conditions expire through the
// scheduler. Safe for concurrent use.
type ActiveSet struct {
	mu       sync.Mutex
	sched    effect.Scheduler
	order    []string
	active   map[string]*ActiveCondition
	onExpire func(id string)
}

// NewActiveSet creates an empty ActiveSet. onExpire, if non-nil, is called with
// the condition ID whenever a timed condition runs out.
//
// Precondition: sched must be non-nil.
func NewActiveSet(sched effect.Scheduler, onExpire func(id string)) *ActiveSet {
	return &ActiveSet{sched: sched, active: make(map[string]*ActiveCondition), onExpire: onExpire}
}

// Apply adds or refreshes a condition. Re-applying adds stacks (capped at
// MaxStacks) and restarts the expiry timer. An unstackable condition always has
// one stack.
//
// Precondition: def must have passed Validate; stacks >= 1.
// Postcondition: Has(def.ID) is true until the condition expires or is removed.
func (s *ActiveSet) Apply(def *ConditionDef, stacks int) error {
	if def == nil {
		return fmt.Errorf("Apply: def must not be nil")
	}
	if stacks < 1 {
		return fmt.Errorf("Apply %q: stacks must be >= 1, got %d", def.ID, stacks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ac, ok := s.active[def.ID]
	if !ok {
		ac = &ActiveCondition{Def: def}
		s.active[def.ID] = ac
		s.order = append(s.order, def.ID)
	}
	switch {
	case def.MaxStacks == 0:
		ac.Stacks = 1
	default:
		ac.Stacks = min(ac.Stacks+stacks, def.MaxStacks)
	}

	if ac.task != nil {
		ac.task.Stop()
		ac.task = nil
	}
	ac.gen++
	if !def.Permanent() {
		gen := ac.gen
		id := def.ID
		ac.task = s.sched.AfterFunc(def.Length(), func() { s.expire(id, gen) })
	}
	return nil
}

func (s *ActiveSet) expire(id string, gen uint64) {
	s.mu.Lock()
	ac, ok := s.active[id]
	if !ok || ac.gen != gen {
		s.mu.Unlock()
		return
	}
	s.removeLocked(id)
	cb := s.onExpire
	s.mu.Unlock()
	if cb != nil {
		cb(id)
	}
}

// Remove deletes the condition with the given ID and cancels its timer.
// If the condition is not present, Remove is a no-op.
//
// Postcondition: Has(id) is false.
func (s *ActiveSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *ActiveSet) removeLocked(id string) {
	ac, ok := s.active[id]
	if !ok {
		return
	}
	if ac.task != nil {
		ac.task.Stop()
	}
	delete(s.active, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear removes every condition and cancels all timers.
func (s *ActiveSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range append([]string(nil), s.order...) {
		s.removeLocked(id)
	}
}

// Has reports whether the condition with id is currently active.
func (s *ActiveSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// Stacks returns the current stack count for condition id, or 0 if not present.
func (s *ActiveSet) Stacks(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ac, ok := s.active[id]; ok {
		return ac.Stacks
	}
	return 0
}

// IDs returns the active condition IDs in first-application order.
func (s *ActiveSet) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

// ContributeDamageModifiers adds each active condition's modifiers once per
// stack, conditions in first-application order.
func (s *ActiveSet) ContributeDamageModifiers(b *modifier.Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		ac := s.active[id]
		for range ac.Stacks {
			for _, m := range ac.Def.parsed {
				b.Add(m)
			}
		}
	}
}
