package scripting

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/modifier"
)

const bankTypeName = "damage_bank"

// stagedBank collects the modifiers a single hook call contributes. They are
// committed to the real bank only if the hook returns without error.
type stagedBank struct {
	source  string
	entries []modifier.Modifier
}

// RegisterModules registers the engine.* tables and the bank type into L.
//
//	engine.log.debug|info|warn|error(msg)
//	engine.dice.roll(amount) -> total
//	bank:add("x2") / bank:add_op("add", -2) / bank:count()
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global and the bank metatable are defined in L.
func (m *Manager) RegisterModules(L *lua.LState, script string) {
	logger := m.logger.With(zap.String("script", script))

	engine := L.NewTable()
	L.SetGlobal("engine", engine)

	logTbl := L.NewTable()
	for level, fn := range map[string]func(string, ...zap.Field){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		fn := fn
		L.SetField(logTbl, level, L.NewFunction(func(L *lua.LState) int {
			fn(L.CheckString(1))
			return 0
		}))
	}
	L.SetField(engine, "log", logTbl)

	diceTbl := L.NewTable()
	L.SetField(diceTbl, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollString(L.CheckString(1))
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))
	L.SetField(engine, "dice", diceTbl)

	mt := L.NewTypeMetatable(bankTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"add":    bankAdd,
		"add_op": bankAddOp,
		"count":  bankCount,
	}))
}

func checkBank(L *lua.LState) *stagedBank {
	ud := L.CheckUserData(1)
	if b, ok := ud.Value.(*stagedBank); ok {
		return b
	}
	L.ArgError(1, "damage bank expected")
	return nil
}

func bankAdd(L *lua.LState) int {
	b := checkBank(L)
	mod, err := modifier.Parse(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	mod.Source = b.source
	b.entries = append(b.entries, mod)
	return 0
}

func bankAddOp(L *lua.LState) int {
	b := checkBank(L)
	op, err := modifier.ParseOp(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	operand := float64(L.CheckNumber(3))
	if math.IsInf(operand, 0) || math.IsNaN(operand) {
		L.ArgError(3, "operand must be finite")
		return 0
	}
	b.entries = append(b.entries, modifier.Modifier{
		Op:      op,
		Operand: operand,
		Source:  b.source,
	})
	return 0
}

func bankCount(L *lua.LState) int {
	b := checkBank(L)
	L.Push(lua.LNumber(len(b.entries)))
	return 1
}

func newBankUserData(L *lua.LState, b *stagedBank) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = b
	L.SetMetatable(ud, L.GetTypeMetatable(bankTypeName))
	return ud
}
