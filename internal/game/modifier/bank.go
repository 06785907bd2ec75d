package modifier

// Bank collects the modifiers contributed during a single damage calculation.
// A Bank is created per event, populated by subscribers, consumed by Calculate
// and then discarded.
//
// Calculate folds entries left to right in the order they were added:
// base 10 with "-2" then "x2" yields (10-2)*2 = 16.
type Bank struct {
	entries []Modifier
}

// NewBank returns an empty Bank.
func NewBank() *Bank {
	return &Bank{}
}

// Add appends m to the bank.
func (b *Bank) Add(m Modifier) {
	b.entries = append(b.entries, m)
}

// AddFrom appends m with its Source set to source.
func (b *Bank) AddFrom(source string, m Modifier) {
	m.Source = source
	b.Add(m)
}

// Len returns the number of contributed modifiers.
func (b *Bank) Len() int {
	return len(b.entries)
}

// Modifiers returns a copy of the contributed modifiers in contribution order.
func (b *Bank) Modifiers() []Modifier {
	out := make([]Modifier, len(b.entries))
	copy(out, b.entries)
	return out
}

// Calculate applies every modifier to base in contribution order.
//
// Postcondition: The bank is not mutated; an empty bank returns base unchanged.
func (b *Bank) Calculate(base float64) float64 {
	v := base
	for _, m := range b.entries {
		v = m.Apply(v)
	}
	return v
}
