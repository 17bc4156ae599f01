// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfgweave/cfgweave/internal/dag"
	"github.com/cfgweave/cfgweave/internal/registry"
	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/pkg/types"
)

type (
	modifierFunc struct {
		key string
		fn  func(*ModifierContext) error
	}

	firstConfig       struct{}
	secondConfig      struct{}
	thirdConfig       struct{}
	replacementConfig struct{}
	orphanConfig      struct{}
	cycleA            struct{}
	cycleB            struct{}
)

func (m modifierFunc) Key() string { return m.key }

func (m modifierFunc) Apply(mc *ModifierContext) error { return m.fn(mc) }

func (*secondConfig) ConfigOrder() (before, after []types.TypeID) {
	return []types.TypeID{"mod.First"}, nil
}

func (*replacementConfig) ReplacesConfig() types.TypeID { return "mod.First" }

func (*orphanConfig) ReplacesConfig() types.TypeID { return "mod.Missing" }

func (*cycleA) ConfigOrder() (before, after []types.TypeID) {
	return nil, []types.TypeID{"mod.CycleB"}
}

func (*cycleB) ConfigOrder() (before, after []types.TypeID) {
	return nil, []types.TypeID{"mod.CycleA"}
}

func modifierContext(classes ...types.TypeID) *ModifierContext {
	reg := registry.New()
	registry.Register[firstConfig](reg, "mod.First")
	registry.Register[secondConfig](reg, "mod.Second")
	registry.Register[thirdConfig](reg, "mod.Third")
	registry.Register[replacementConfig](reg, "mod.Replacement")
	registry.Register[orphanConfig](reg, "mod.Orphan")
	registry.Register[cycleA](reg, "mod.CycleA")
	registry.Register[cycleB](reg, "mod.CycleB")

	lc := &LoadContext{Registry: reg}
	cc := NewContext(lc, state.New(nil))
	lc.Config = cc

	namespaces := make(map[types.TypeID]string, len(classes))
	for _, id := range classes {
		namespaces[id] = "ns"
	}
	def := NewHandlerDefinition("mod.Handler", nil)
	return NewModifierContext(def, cc, classes, nil, namespaces)
}

func TestOrderModifier(t *testing.T) {
	t.Parallel()

	mc := modifierContext("mod.First", "mod.Third", "mod.Second")
	require.NoError(t, OrderModifier{}.Apply(mc))
	assert.Equal(t, []types.TypeID{"mod.Second", "mod.First", "mod.Third"}, mc.ConfigClasses)
}

func TestOrderModifier_Cycle(t *testing.T) {
	t.Parallel()

	mc := modifierContext("mod.CycleA", "mod.CycleB")
	err := OrderModifier{}.Apply(mc)
	require.ErrorIs(t, err, dag.ErrCyclicDependency)
}

func TestOrderModifier_NoCandidates(t *testing.T) {
	t.Parallel()

	mc := modifierContext("mod.Third", "mod.First")
	require.NoError(t, OrderModifier{}.Apply(mc))
	assert.Equal(t, []types.TypeID{"mod.Third", "mod.First"}, mc.ConfigClasses)
}

func TestReplaceModifier(t *testing.T) {
	t.Parallel()

	mc := modifierContext("mod.First", "mod.Replacement", "mod.Third", "mod.Orphan")
	require.NoError(t, ReplaceModifier{}.Apply(mc))

	// The replacement takes the slot of its target, the orphan has no target
	// and is dropped.
	assert.Equal(t, []types.TypeID{"mod.Replacement", "mod.Third"}, mc.ConfigClasses)
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	mc := modifierContext("mod.Orphan", "mod.First", "mod.Replacement")
	candidates, err := Candidates[ReplacingConfig](mc)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, types.TypeID("mod.Orphan"), candidates[0].ID)
	assert.Equal(t, types.TypeID("mod.Replacement"), candidates[1].ID)
	assert.IsType(t, &replacementConfig{}, candidates[1].Value)
}

func TestModifiers_With(t *testing.T) {
	t.Parallel()

	base := DefaultModifiers()
	custom := modifierFunc{key: OrderModifierKey}
	extra := modifierFunc{key: "test.Extra"}

	ms := base.With(custom).With(extra)
	require.Len(t, ms, 3)
	assert.IsType(t, modifierFunc{}, ms[0], "same key replaces in place")
	assert.Equal(t, ReplaceModifierKey, ms[1].Key())
	assert.Equal(t, "test.Extra", ms[2].Key())

	assert.IsType(t, OrderModifier{}, base[0], "With must not modify the receiver")
}
