package scripting

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/damagable/internal/game/damagable"
	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

// Snapshot builds the EntityInfo handed to Lua for d.
func Snapshot(d damagable.Health) EntityInfo {
	return EntityInfo{
		ID:        d.ID(),
		Name:      d.Name(),
		Health:    d.CurrentHealth(),
		MaxHealth: d.MaxHealth(),
	}
}

// ScriptContributor runs a script's on_calculate_damage(entity, bank) hook for
// every damage event on one entity.
type ScriptContributor struct {
	mgr    *Manager
	script string
	entity func() EntityInfo
}

// Contributor returns a damagable.ModifierContributor backed by script. entity is
// called on each event to snapshot the target.
//
// Precondition: entity must be non-nil.
func (m *Manager) Contributor(script string, entity func() EntityInfo) *ScriptContributor {
	return &ScriptContributor{mgr: m, script: script, entity: entity}
}

// ContributeDamageModifiers calls the hook with a staging bank and copies its
// entries into b only if the hook completed. A failing script contributes nothing.
func (c *ScriptContributor) ContributeDamageModifiers(b *modifier.Bank) {
	staged := &stagedBank{source: "script:" + c.script}
	info := c.entity()
	_, err := c.mgr.callWith(c.script, HookCalculateDamage, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{entityTable(L, info), newBankUserData(L, staged)}
	})
	if err != nil {
		return
	}
	for _, m := range staged.entries {
		b.Add(m)
	}
}

// DeathObserver returns a damagable.DeathObserver calling script's on_death(entity).
func (m *Manager) DeathObserver(script string) damagable.DeathObserver {
	return damagable.DeathFunc(func(d *damagable.Damagable) {
		m.callEntityHook(script, HookDeath, Snapshot(d))
	})
}

// SpawnObserver returns a damagable.SpawnObserver calling script's on_spawn(entity).
func (m *Manager) SpawnObserver(script string) damagable.SpawnObserver {
	return damagable.SpawnFunc(func(d *damagable.Damagable) {
		m.callEntityHook(script, HookSpawn, Snapshot(d))
	})
}

func (m *Manager) callEntityHook(script, hook string, info EntityInfo) {
	_, _ = m.callWith(script, hook, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{entityTable(L, info)}
	})
}
