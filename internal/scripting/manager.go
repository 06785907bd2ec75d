package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/dice"
)

// Hook names a script may define.
const (
	HookCalculateDamage = "on_calculate_damage"
	HookDeath           = "on_death"
	HookSpawn           = "on_spawn"
)

var (
	// ErrUnknownScript is returned by CallHook when no script has the given name.
	ErrUnknownScript = errors.New("scripting: unknown script")
	// ErrUnknownHook is returned by CallHook when the script defines no such function.
	ErrUnknownHook = errors.New("scripting: unknown hook")
)

// EntityInfo is a snapshot of a damagable passed to Lua hooks.
type EntityInfo struct {
	ID        string
	Name      string
	Health    int
	MaxHealth int
}

type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// Manager owns one sandboxed LState per script and dispatches hooks into it.
//
// Manager is safe for concurrent use. Calls into the same script are serialized;
// different scripts run concurrently.
type Manager struct {
	mu        sync.RWMutex
	vms       map[string]*vm
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil; instLimit 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Manager with no scripts loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger, instLimit int) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:       make(map[string]*vm),
		instLimit: instLimit,
		roller:    roller,
		logger:    logger,
	}
}

// LoadDir loads every *.lua file in dir as its own script, named by the file
// name without extension, in lexicographic order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the loaded script names, or an error on the first failure.
func (m *Manager) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	names := make([]string, 0, len(files))
	for _, f := range files {
		src, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return nil, fmt.Errorf("scripting: reading %q: %w", f, err)
		}
		name := strings.TrimSuffix(f, ".lua")
		if err := m.LoadString(name, string(src)); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// LoadString compiles src into a fresh VM registered as name, replacing any
// script already loaded under that name.
//
// Precondition: name must be non-empty.
// Postcondition: Returns an error on compile or top-level runtime failure; the
// previous script under name, if any, stays loaded in that case.
func (m *Manager) LoadString(name, src string) error {
	L, cancel := NewSandboxedState(m.instLimit)
	m.RegisterModules(L, name)
	if err := L.DoString(src); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	cancel()
	L.RemoveContext()

	m.mu.Lock()
	old := m.vms[name]
	m.vms[name] = &vm{L: L}
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	return nil
}

// Has reports whether a script is loaded under name.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vms[name]
	return ok
}

// Names returns the loaded script names in lexicographic order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vms))
	for name := range m.vms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CallHook calls the named Lua global function in script's VM. Lua runtime
// errors, including an exhausted instruction budget, are logged at Warn level
// and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil. The error
// wraps ErrUnknownScript or ErrUnknownHook when there was nothing to call.
func (m *Manager) CallHook(script, hook string, args ...lua.LValue) (lua.LValue, error) {
	ret, err := m.callWith(script, hook, func(*lua.LState) []lua.LValue { return args })
	if errors.Is(err, ErrUnknownScript) || errors.Is(err, ErrUnknownHook) {
		return lua.LNil, err
	}
	return ret, nil
}

// callWith runs hook with arguments built inside the VM lock. A nil error means
// the hook ran to completion.
func (m *Manager) callWith(script, hook string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	v := m.vms[script]
	m.mu.RUnlock()

	if v == nil {
		m.logger.Info("scripting: no such script",
			zap.String("script", script),
			zap.String("hook", hook),
		)
		return lua.LNil, fmt.Errorf("%w: %q", ErrUnknownScript, script)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fn := v.L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, fmt.Errorf("%w: %s.%s", ErrUnknownHook, script, hook)
	}

	release := withBudget(v.L, m.instLimit)
	defer release()

	if err := v.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(v.L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("script", script),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, err
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// Close releases every VM. Subsequent hook calls are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()

	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}

func entityTable(L *lua.LState, e EntityInfo) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(e.ID))
	t.RawSetString("name", lua.LString(e.Name))
	t.RawSetString("health", lua.LNumber(e.Health))
	t.RawSetString("max_health", lua.LNumber(e.MaxHealth))
	return t
}
