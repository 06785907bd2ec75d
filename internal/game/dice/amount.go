// Package dice rolls base damage amounts written either as a flat integer ("7")
// or in dice notation ("2d6+1").
package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a parsed damage amount. A flat amount has Count == 0.
//
// Invariant: Count == 0 or (Count >= 1 and Sides >= 2).
type Amount struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Flat reports whether the amount rolls no dice.
func (a Amount) Flat() bool {
	return a.Count == 0
}

// Min returns the smallest value the amount can roll.
func (a Amount) Min() int {
	return a.Count + a.Modifier
}

// Max returns the largest value the amount can roll.
func (a Amount) Max() int {
	return a.Count*a.Sides + a.Modifier
}

// String returns the original notation.
func (a Amount) String() string {
	return a.Raw
}

// Parse reads "7", "-3", "d20", "2d6", "2d6+3" or "4d8-2".
//
// Postcondition: Returns an Amount satisfying its invariant, or a descriptive error.
func Parse(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Amount{}, fmt.Errorf("dice: empty amount")
	}

	lower := strings.ToLower(raw)
	dIdx := strings.IndexByte(lower, 'd')
	if dIdx < 0 {
		v, err := strconv.Atoi(lower)
		if err != nil {
			return Amount{}, fmt.Errorf("dice: invalid flat amount %q: %w", raw, err)
		}
		return Amount{Raw: raw, Modifier: v}, nil
	}

	count := 1
	if head := lower[:dIdx]; head != "" {
		n, err := strconv.Atoi(head)
		if err != nil || n < 1 {
			return Amount{}, fmt.Errorf("dice: invalid die count in %q", raw)
		}
		count = n
	}

	tail := lower[dIdx+1:]
	sidesStr, modStr := tail, ""
	if i := strings.IndexAny(tail, "+-"); i >= 0 {
		sidesStr, modStr = tail[:i], tail[i:]
	}

	sides, err := strconv.Atoi(sidesStr)
	if err != nil || sides < 2 {
		return Amount{}, fmt.Errorf("dice: invalid die sides in %q", raw)
	}

	mod := 0
	if modStr != "" {
		mod, err = strconv.Atoi(modStr)
		if err != nil {
			return Amount{}, fmt.Errorf("dice: invalid modifier in %q: %w", raw, err)
		}
	}

	return Amount{Raw: raw, Count: count, Sides: sides, Modifier: mod}, nil
}

// Result is the audit trail of one roll.
type Result struct {
	Amount Amount
	Dice   []int
}

// Total returns the sum of the dice plus the modifier.
func (r Result) Total() int {
	total := r.Amount.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String renders "2d6+3 → [4 5] = 12".
func (r Result) String() string {
	if r.Amount.Flat() {
		return fmt.Sprintf("%s = %d", r.Amount.Raw, r.Total())
	}
	return fmt.Sprintf("%s → %v = %d", r.Amount.Raw, r.Dice, r.Total())
}

// Roll evaluates a using src.
//
// Precondition: src must be non-nil when a rolls dice.
// Postcondition: len(result.Dice) == a.Count and a.Min() <= Total() <= a.Max().
func Roll(a Amount, src Source) Result {
	rolled := make([]int, a.Count)
	for i := range rolled {
		rolled[i] = src.Intn(a.Sides) + 1
	}
	return Result{Amount: a, Dice: rolled}
}
