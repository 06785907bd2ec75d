package arena_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/damagable/internal/game/arena"
	"github.com/cory-johannsen/damagable/internal/game/audio"
	"github.com/cory-johannsen/damagable/internal/game/condition"
	"github.com/cory-johannsen/damagable/internal/game/damagable"
	"github.com/cory-johannsen/damagable/internal/game/dice"
	"github.com/cory-johannsen/damagable/internal/game/effect"
	"github.com/cory-johannsen/damagable/internal/game/template"
	"github.com/cory-johannsen/damagable/internal/journal"
	"github.com/cory-johannsen/damagable/internal/scripting"
)

type tHelper interface {
	require.TestingT
	Helper()
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func registry(t tHelper, docs ...string) *template.Registry {
	t.Helper()
	var tmpls []*template.Template
	for _, d := range docs {
		tmpl, err := template.LoadTemplateFromBytes([]byte(d))
		require.NoError(t, err)
		tmpls = append(tmpls, tmpl)
	}
	reg, err := template.NewRegistry(tmpls)
	require.NoError(t, err)
	return reg
}

const goblinYAML = `
id: goblin
name: Goblin
max_health: 10
hit_sfx: event:/goblin/hit
die_sfx: event:/goblin/die
indicator: damage_number
`

const knightYAML = `
id: knight
name: Knight
max_health: 30
hit_sfx: event:/knight/hit
die_sfx: event:/knight/die
indicator: damage_number
flash: 300ms
modifiers: ["-2", "x2"]
`

type fixture struct {
	arena *arena.Arena
	mem   *journal.Memory
	audio *audio.LogPlayer
	logs  *observer.ObservedLogs
}

func newFixture(t tHelper, mutate func(*arena.Options)) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	f := &fixture{mem: &journal.Memory{}, audio: audio.NewLogPlayer(logger), logs: logs}
	opts := arena.Options{
		Run:       "run-1",
		Templates: registry(t, goblinYAML, knightYAML),
		Sink:      f.mem,
		Audio:     f.audio,
		UIRoot:    damagable.IndicatorCanvasTag,
		Epoch:     epoch,
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	a, err := arena.New(opts)
	require.NoError(t, err)
	f.arena = a
	return f
}

func TestNew_RequiresTemplates(t *testing.T) {
	_, err := arena.New(arena.Options{})
	assert.Error(t, err)
}

func TestNew_GeneratesRunID(t *testing.T) {
	a, err := arena.New(arena.Options{Templates: registry(t, goblinYAML)})
	require.NoError(t, err)
	assert.NotEmpty(t, a.Run())
}

func TestSpawn_UnknownTemplate(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.arena.Spawn("dragon", damagable.Vec3{})
	assert.ErrorIs(t, err, template.ErrTemplateNotFound)
}

func TestSpawn_CreatesHealthbarWithUniqueIDs(t *testing.T) {
	f := newFixture(t, nil)
	a, err := f.arena.Spawn("goblin", damagable.Vec3{X: 1})
	require.NoError(t, err)
	b, err := f.arena.Spawn("goblin", damagable.Vec3{X: 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{a, b}, f.arena.Alive())
	assert.Len(t, f.arena.Canvas().Bars(), 2)
}

func TestDamage_JournalsHitAndAppliesTemplateModifiers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id, err := f.arena.Spawn("knight", damagable.Vec3{})
	require.NoError(t, err)

	final, err := f.arena.Damage(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, 16, final, "(10-2)*2")

	events := f.mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, journal.Event{
		Run: "run-1", Kind: journal.KindHit, EntityID: id, Template: "knight",
		Base: 10, Final: 16, Health: 14, At: epoch,
	}, events[0])
	assert.Equal(t, 1, f.audio.Count("event:/knight/hit"))
}

func TestDamage_LethalJournalsDeathAndRemoves(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)

	final, err := f.arena.Damage(ctx, id, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, final)

	events := f.mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, journal.KindHit, events[0].Kind)
	assert.Equal(t, journal.KindDeath, events[1].Kind)
	assert.Equal(t, 0, events[1].Health)

	assert.Empty(t, f.arena.Alive())
	assert.Empty(t, f.arena.Canvas().Bars())
	_, err = f.arena.Get(id)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)
	_, err = f.arena.Damage(ctx, id, 1)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)

	assert.Equal(t, 1, f.audio.Count("event:/goblin/die"))
	indicators := f.arena.Canvas().Indicators()
	require.Len(t, indicators, 1)
	assert.Equal(t, 25, indicators[0].Value)
}

func TestHeal_JournalsRestoredAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)
	_, err = f.arena.Damage(ctx, id, 4)
	require.NoError(t, err)

	restored, err := f.arena.Heal(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, restored, "capped at max health")

	events := f.mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, journal.KindHeal, events[1].Kind)
	assert.Equal(t, 10, events[1].Base)
	assert.Equal(t, 4, events[1].Final)
	assert.Equal(t, 10, events[1].Health)

	_, err = f.arena.Heal(ctx, "missing", 1)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)
}

func TestAdvance_RevertsFlashOnVirtualClock(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.arena.Spawn("knight", damagable.Vec3{})
	require.NoError(t, err)
	sprite, err := f.arena.Sprite(id)
	require.NoError(t, err)

	_, err = f.arena.Damage(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, effect.Red, sprite.Color())

	assert.Equal(t, 0, f.arena.Advance(299*time.Millisecond))
	assert.Equal(t, effect.Red, sprite.Color())
	assert.Equal(t, 1, f.arena.Advance(time.Millisecond))
	assert.Equal(t, arena.BaseColor, sprite.Color())
	assert.Equal(t, epoch.Add(300*time.Millisecond), f.arena.Now())
}

func TestFlashDuration_DefaultsFromOptions(t *testing.T) {
	f := newFixture(t, func(o *arena.Options) { o.FlashDuration = 50 * time.Millisecond })
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)
	sprite, _ := f.arena.Sprite(id)

	_, err = f.arena.Damage(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.arena.Advance(50*time.Millisecond))
	assert.Equal(t, arena.BaseColor, sprite.Color())
}

func TestNoUIRoot_DegradesWithoutCanvas(t *testing.T) {
	f := newFixture(t, func(o *arena.Options) { o.UIRoot = "" })
	assert.Nil(t, f.arena.Canvas())
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.logs.FilterLevelExact(zap.ErrorLevel).Len(), 1)

	final, err := f.arena.Damage(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, final)
	d, err := f.arena.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 7, d.CurrentHealth())
}

type failingSink struct{}

func (failingSink) Record(context.Context, journal.Event) error { return errors.New("disk full") }

func TestDamage_JournalFailureStillApplies(t *testing.T) {
	f := newFixture(t, func(o *arena.Options) { o.Sink = failingSink{} })
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)

	final, err := f.arena.Damage(context.Background(), id, 2)
	assert.Error(t, err)
	assert.Equal(t, 2, final)
	d, _ := f.arena.Get(id)
	assert.Equal(t, 8, d.CurrentHealth())
}

// hitRejectingSink fails every hit and keeps everything else.
type hitRejectingSink struct{ journal.Memory }

func (s *hitRejectingSink) Record(ctx context.Context, e journal.Event) error {
	if e.Kind == journal.KindHit {
		return errors.New("hit rejected")
	}
	return s.Memory.Record(ctx, e)
}

func TestDamage_LethalHitJournalFailureStillRecordsDeath(t *testing.T) {
	sink := &hitRejectingSink{}
	f := newFixture(t, func(o *arena.Options) { o.Sink = sink })
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)

	_, err = f.arena.Damage(context.Background(), id, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journaling hit")

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, journal.KindDeath, events[0].Kind)
	assert.Equal(t, id, events[0].EntityID)
	_, err = f.arena.Get(id)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)
}

type zeroSource struct{}

func (zeroSource) Intn(int) int { return 0 }

func TestSpawn_AttachesTemplateScripts(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	mgr := scripting.NewManager(dice.NewRoller(zeroSource{}, logger), logger, 0)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.LoadString("brittle", `
		deaths = 0
		function on_calculate_damage(entity, bank) bank:add("+1") end
		function on_death(entity) deaths = deaths + 1 end
		function death_count() return deaths end
	`))
	f := newFixture(t, func(o *arena.Options) {
		o.Templates = registry(t, "id: glass\nname: Glass\nmax_health: 5\nhit_sfx: h\ndie_sfx: d\nscripts: [brittle]\n")
		o.Scripts = mgr
	})
	id, err := f.arena.Spawn("glass", damagable.Vec3{})
	require.NoError(t, err)

	final, err := f.arena.Damage(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, final)

	_, err = f.arena.Damage(context.Background(), id, 2)
	require.NoError(t, err)
	ret, _ := mgr.CallHook("brittle", "death_count")
	assert.EqualValues(t, 1, ret)
}

func TestSpawn_ScriptsWithoutManagerWarns(t *testing.T) {
	f := newFixture(t, func(o *arena.Options) {
		o.Templates = registry(t, "id: glass\nname: Glass\nmax_health: 5\nscripts: [brittle]\n")
	})
	_, err := f.arena.Spawn("glass", damagable.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("template scripts ignored, scripting disabled").Len())
}

func TestClose_DestroysWithoutDeathEvents(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)
	f.arena.Close()
	assert.Empty(t, f.arena.Alive())
	assert.Empty(t, f.arena.Canvas().Bars())
	assert.Empty(t, f.mem.Events())
}

func conditions(t *testing.T) *condition.Registry {
	t.Helper()
	reg := condition.NewRegistry()
	require.NoError(t, reg.Register(&condition.ConditionDef{
		ID: "vulnerable", Name: "Vulnerable", Duration: "2s", MaxStacks: 2, Modifiers: []string{"x2"},
	}))
	return reg
}

func TestApply_ConditionModifiesDamageUntilExpiry(t *testing.T) {
	f := newFixture(t, func(o *arena.Options) { o.Conditions = conditions(t) })
	ctx := context.Background()
	id, err := f.arena.Spawn("knight", damagable.Vec3{})
	require.NoError(t, err)

	n, err := f.arena.Apply(id, "vulnerable", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ids, err := f.arena.Conditions(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"vulnerable"}, ids)

	// Template (-2, x2) runs before the condition: (5-2)*2*2.
	final, err := f.arena.Damage(ctx, id, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, final)

	f.arena.Advance(2 * time.Second)
	ids, _ = f.arena.Conditions(id)
	assert.Empty(t, ids)
	final, err = f.arena.Damage(ctx, id, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, final)
}

func TestApply_Errors(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.arena.Spawn("goblin", damagable.Vec3{})
	require.NoError(t, err)
	_, err = f.arena.Apply(id, "vulnerable", 1)
	assert.ErrorIs(t, err, condition.ErrUnknownCondition, "conditions disabled")

	f = newFixture(t, func(o *arena.Options) { o.Conditions = conditions(t) })
	_, err = f.arena.Apply("missing", "vulnerable", 1)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)
	_, err = f.arena.Apply("missing", "cursed", 1)
	assert.ErrorIs(t, err, condition.ErrUnknownCondition)
}

func TestProperty_JournalMirrorsHealth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		id, err := f.arena.Spawn("goblin", damagable.Vec3{})
		if err != nil {
			t.Fatal(err)
		}
		hits := rapid.SliceOfN(rapid.IntRange(-5, 8), 1, 20).Draw(t, "hits")
		health := 10
		for _, h := range hits {
			if health == 0 {
				break
			}
			if _, err := f.arena.Damage(ctx, id, h); err != nil {
				t.Fatal(err)
			}
			health = max(0, min(10, health-h))
		}
		events := f.mem.Events()
		last := events[len(events)-1]
		if last.Health != health {
			t.Fatalf("journal health %d, want %d", last.Health, health)
		}
		if (health == 0) != (last.Kind == journal.KindDeath) {
			t.Fatalf("death event mismatch: health=%d kind=%s", health, last.Kind)
		}
	})
}
