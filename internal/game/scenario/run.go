package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/arena"
	"github.com/cory-johannsen/damagable/internal/game/dice"
	"github.com/cory-johannsen/damagable/internal/observability"
)

// StepResult records what one step did.
type StepResult struct {
	Index  int
	Target string
	Action string
	// Condition and Stacks describe an apply step; Stacks is the count after it.
	Condition string
	Stacks    int
	// Roll is the dice breakdown, e.g. "2d6+1 → [3 5] = 9".
	Roll  string
	Base  int
	Final int
	// Skipped is set when the target had already died.
	Skipped bool
}

// EntityReport is the state of one spawned entity at the end of a run.
type EntityReport struct {
	Alias     string
	ID        string
	Template  string
	Health    int
	MaxHealth int
	Alive     bool
}

// Report summarises a scenario run.
type Report struct {
	Scenario string
	Run      string
	Entities []EntityReport
	// Deaths lists the aliases of entities that died, in order of death.
	Deaths  []string
	Steps   []StepResult
	Elapsed time.Duration
}

// TotalDamage sums the final damage of every applied damage step.
func (r Report) TotalDamage() int {
	total := 0
	for _, s := range r.Steps {
		if s.Action == "damage" && !s.Skipped {
			total += s.Final
		}
	}
	return total
}

// Summary renders the report as a short human-readable block.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s (run %s): %d steps, %d damage dealt, %s simulated\n",
		r.Scenario, r.Run, len(r.Steps), r.TotalDamage(), r.Elapsed)
	for _, e := range r.Entities {
		status := "alive"
		if !e.Alive {
			status = "dead"
		}
		fmt.Fprintf(&b, "  %-12s %-12s %3d/%-3d %s\n", e.Alias, e.Template, e.Health, e.MaxHealth, status)
	}
	return b.String()
}

type spawned struct {
	id       string
	template string
	max      int
	health   int
	alive    bool
}

// Run spawns the scenario's entities into a and plays its steps in order. Steps
// aimed at an entity that already died are recorded as skipped.
//
// Precondition: sc must have passed Validate; a, roller and logger must be non-nil.
// Postcondition: Returns the report of the steps played so far, and an error if a
// spawn or journal write failed or ctx was cancelled.
func Run(ctx context.Context, a *arena.Arena, sc *Scenario, roller *dice.Roller, logger *zap.Logger) (Report, error) {
	rep := Report{Scenario: sc.Name, Run: a.Run()}
	logger = observability.ForScenario(logger, sc.Name)

	entities := make(map[string]*spawned, len(sc.Spawns))
	for _, sp := range sc.Spawns {
		id, err := a.Spawn(sp.Template, sp.Vec())
		if err != nil {
			return rep, fmt.Errorf("scenario %q: spawning %q: %w", sc.Name, sp.As, err)
		}
		d, err := a.Get(id)
		if err != nil {
			return rep, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		entities[sp.As] = &spawned{id: id, template: sp.Template, max: d.MaxHealth(), health: d.CurrentHealth(), alive: true}
	}

	var runErr error
	for i := range sc.Steps {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("scenario %q: interrupted at step %d: %w", sc.Name, i, err)
			break
		}
		st := &sc.Steps[i]
		if st.Target != "" {
			res, err := play(ctx, a, roller, i, st, entities[st.Target], &rep)
			rep.Steps = append(rep.Steps, res)
			if err != nil {
				runErr = fmt.Errorf("scenario %q: step %d: %w", sc.Name, i, err)
				break
			}
			if res.Skipped {
				logger.Info("step skipped, target dead", zap.Int("step", i), zap.String("target", st.Target))
			}
		}
		if w := st.WaitDuration(); w > 0 {
			a.Advance(w)
			rep.Elapsed += w
		}
	}

	for _, sp := range sc.Spawns {
		e := entities[sp.As]
		rep.Entities = append(rep.Entities, EntityReport{
			Alias:     sp.As,
			ID:        e.id,
			Template:  e.template,
			Health:    e.health,
			MaxHealth: e.max,
			Alive:     e.alive,
		})
	}
	logger.Info("scenario finished",
		zap.Int("steps", len(rep.Steps)),
		zap.Strings("deaths", rep.Deaths),
		zap.Duration("simulated", rep.Elapsed),
	)
	return rep, runErr
}

func play(ctx context.Context, a *arena.Arena, roller *dice.Roller, i int, st *Step, e *spawned, rep *Report) (StepResult, error) {
	res := StepResult{Index: i, Target: st.Target, Action: st.Action()}
	if !e.alive {
		res.Skipped = true
		return res, nil
	}
	if res.Action == "apply" {
		res.Condition = st.Apply
		n, err := a.Apply(e.id, st.Apply, st.Stacks)
		res.Stacks = n
		return res, err
	}
	roll := roller.Roll(st.Amount())
	res.Roll = roll.String()
	res.Base = roll.Total()

	var err error
	switch res.Action {
	case "damage":
		res.Final, err = a.Damage(ctx, e.id, res.Base)
	case "heal":
		res.Final, err = a.Heal(ctx, e.id, res.Base)
	}
	if errors.Is(err, arena.ErrEntityNotFound) {
		return res, err
	}

	if d, getErr := a.Get(e.id); getErr == nil {
		e.health = d.CurrentHealth()
	} else {
		e.health = 0
		e.alive = false
		rep.Deaths = append(rep.Deaths, st.Target)
	}
	return res, err
}
