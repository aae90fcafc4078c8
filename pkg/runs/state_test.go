package runs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition_LegalEdges(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateCreated, StateValidating},
		{StateCreated, StateCancelled},
		{StateValidating, StateDecomposing},
		{StateDecomposing, StateScheduling},
		{StateScheduling, StateExecuting},
		{StateExecuting, StateAggregating},
		{StateAggregating, StateFinalizing},
		{StateFinalizing, StateCompleted},
	}
	for _, c := range cases {
		assert.NoError(t, checkTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestCheckTransition_IllegalEdges(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateCreated, StateExecuting},
		{StateCreated, StateCompleted},
		{StateCompleted, StateExecuting},
		{StateFailed, StateValidating},
		{StateFinalizing, StateCancelled},
	}
	for _, c := range cases {
		err := checkTransition(c.from, c.to)
		require.Error(t, err, "%s -> %s should be illegal", c.from, c.to)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateCompleted))
	assert.True(t, IsTerminal(StateFailed))
	assert.True(t, IsTerminal(StateCancelled))
	assert.False(t, IsTerminal(StateCreated))
	assert.False(t, IsTerminal(StateExecuting))
}
