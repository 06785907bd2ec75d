package condition_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/damagable/internal/game/condition"
)

func TestRegistry_Get_Found(t *testing.T) {
	reg := condition.NewRegistry()
	def := &condition.ConditionDef{ID: "exposed", Name: "Exposed"}
	require.NoError(t, reg.Register(def))
	got, err := reg.Get("exposed")
	require.NoError(t, err)
	assert.Equal(t, def, got)
	assert.True(t, got.Permanent())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	reg := condition.NewRegistry()
	_, err := reg.Get("nonexistent")
	assert.ErrorIs(t, err, condition.ErrUnknownCondition)
}

func TestRegistry_All_SortedCopy(t *testing.T) {
	reg := condition.NewRegistry()
	require.NoError(t, reg.Register(&condition.ConditionDef{ID: "b", Name: "B"}))
	require.NoError(t, reg.Register(&condition.ConditionDef{ID: "a", Name: "A", Duration: "1s"}))
	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	all[0] = nil
	for _, d := range reg.All() {
		assert.NotNil(t, d, "registry must not be corrupted by mutating the returned slice")
	}
}

func TestRegister_RejectsInvalid(t *testing.T) {
	cases := map[string]*condition.ConditionDef{
		"no id":             {Name: "X"},
		"no name":           {ID: "x"},
		"negative stacks":   {ID: "x", Name: "X", MaxStacks: -1},
		"bad duration":      {ID: "x", Name: "X", Duration: "forever"},
		"zero duration":     {ID: "x", Name: "X", Duration: "0s"},
		"bad modifier":      {ID: "x", Name: "X", Modifiers: []string{"%2"}},
		"modifier no value": {ID: "x", Name: "X", Modifiers: []string{"x"}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, condition.NewRegistry().Register(def))
		})
	}
}

func TestLoadDirectory_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
id: vulnerable
name: Vulnerable
description: "Takes extra damage."
duration: 2s
max_stacks: 3
modifiers: ["x1.5"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vulnerable.yaml"), []byte(yaml), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	reg, err := condition.LoadDirectory(dir)
	require.NoError(t, err)
	got, err := reg.Get("vulnerable")
	require.NoError(t, err)
	assert.Equal(t, "Vulnerable", got.Name)
	assert.Equal(t, 3, got.MaxStacks)
	assert.Equal(t, 2*time.Second, got.Length())
	assert.False(t, got.Permanent())
}

func TestLoadDirectory_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\nname: X\nac_penalty: 2\n"), 0644))
	_, err := condition.LoadDirectory(dir)
	assert.Error(t, err)
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := condition.LoadDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPropertyDurationRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.IntRange(1, 100000).Draw(t, "ms")
		d := time.Duration(ms) * time.Millisecond
		def := &condition.ConditionDef{ID: "c", Name: "C", Duration: d.String()}
		if err := def.Validate(); err != nil {
			t.Fatalf("valid duration %s rejected: %v", d, err)
		}
		if def.Length() != d {
			t.Fatalf("Length() = %s, want %s", def.Length(), d)
		}
	})
}
