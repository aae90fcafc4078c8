package runs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_ToOrderedPhases_RespectsDependencies(t *testing.T) {
	p := Plan{
		Phases: []Phase{
			{ID: "c", DependsOn: []string{"b"}},
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
		},
	}

	ordered := p.ToOrderedPhases()
	require.Len(t, ordered, 3)

	pos := map[string]int{}
	for i, ph := range ordered {
		pos[ph.ID] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestPlan_ToOrderedPhases_IgnoresDanglingDependency(t *testing.T) {
	p := Plan{
		Phases: []Phase{
			{ID: "a", DependsOn: []string{"nonexistent"}},
		},
	}
	ordered := p.ToOrderedPhases()
	require.Len(t, ordered, 1)
	assert.Equal(t, "a", ordered[0].ID)
}

func TestPlan_ToOrderedPhases_CycleTerminates(t *testing.T) {
	p := Plan{
		Phases: []Phase{
			{ID: "x", DependsOn: []string{"y"}},
			{ID: "y", DependsOn: []string{"x"}},
		},
	}
	// Must terminate without infinite recursion; the order within the
	// cycle is not load-bearing, only that it returns.
	assert.NotPanics(t, func() { p.ToOrderedPhases() })
}
