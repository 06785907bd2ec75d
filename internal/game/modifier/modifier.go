// Package modifier provides the per-event stat modifier bank used to turn a base
// damage value into a final value.
package modifier

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownOp is returned when a modifier string or op name is not recognised.
var ErrUnknownOp = errors.New("modifier: unknown op")

// Op identifies how a Modifier combines with the running value.
type Op int

const (
	// Add adds Operand to the running value. Negative operands subtract.
	Add Op = iota
	// Multiply multiplies the running value by Operand.
	Multiply
	// Set replaces the running value with Operand.
	Set
)

// String returns the op name used in logs and scripts.
func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Multiply:
		return "multiply"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp resolves an op name ("add", "multiply"/"mul", "set").
//
// Postcondition: Returns the op, or an error wrapping ErrUnknownOp.
func ParseOp(name string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "add":
		return Add, nil
	case "multiply", "mul":
		return Multiply, nil
	case "set":
		return Set, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownOp, name)
}

// Modifier is a single contribution to a Bank.
type Modifier struct {
	Op      Op
	Operand float64
	// Source names the contributor, for logging only.
	Source string
}

// Apply returns v with the modifier applied.
func (m Modifier) Apply(v float64) float64 {
	switch m.Op {
	case Add:
		return v + m.Operand
	case Multiply:
		return v * m.Operand
	case Set:
		return m.Operand
	default:
		return v
	}
}

// String renders the modifier in the same notation Parse accepts.
func (m Modifier) String() string {
	num := strconv.FormatFloat(m.Operand, 'g', -1, 64)
	switch m.Op {
	case Add:
		if m.Operand >= 0 {
			return "+" + num
		}
		return num
	case Multiply:
		return "x" + num
	case Set:
		return "=" + num
	default:
		return m.Op.String() + num
	}
}

// Parse reads the textual modifier notation used by templates and scripts:
//
//	"+3", "-2"      add
//	"x2", "*1.5"    multiply
//	"=0"            set
//
// Precondition: s must be non-empty.
// Postcondition: Returns a Modifier with a finite operand and an empty Source,
// or an error.
func Parse(s string) (Modifier, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Modifier{}, fmt.Errorf("modifier: empty expression")
	}

	var op Op
	num := raw
	switch raw[0] {
	case '+', '-':
		op = Add
	case 'x', 'X', '*':
		op = Multiply
		num = raw[1:]
	case '=':
		op = Set
		num = raw[1:]
	default:
		return Modifier{}, fmt.Errorf("%w in %q: expected one of + - x * =", ErrUnknownOp, raw)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return Modifier{}, fmt.Errorf("modifier: invalid operand in %q: %w", raw, err)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return Modifier{}, fmt.Errorf("modifier: operand in %q must be finite", raw)
	}
	return Modifier{Op: op, Operand: v}, nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) Modifier {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}
