package llmgateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ParsesPlanJSON(t *testing.T) {
	p := &scriptedProvider{
		name: "primary",
		results: []CompleteResult{{
			Content: `{"goal":"ship the feature","phases":[{"id":"p1","name":"build","tools":["code_exec"]}]}`,
		}},
	}
	g := NewGateway([]Route{{Model: "planner", Providers: []Provider{p}}}, 0, time.Millisecond)
	d := NewDecomposer(g, "planner")

	plan, err := d.Decompose(context.Background(), "ship the feature")
	require.NoError(t, err)
	assert.Equal(t, "ship the feature", plan.Goal)
	require.Len(t, plan.Phases, 1)
	assert.Equal(t, "p1", plan.Phases[0].ID)
}

func TestDecompose_InvalidJSON_Errors(t *testing.T) {
	p := &scriptedProvider{name: "primary", results: []CompleteResult{{Content: "not json"}}}
	g := NewGateway([]Route{{Model: "planner", Providers: []Provider{p}}}, 0, time.Millisecond)
	d := NewDecomposer(g, "planner")

	_, err := d.Decompose(context.Background(), "goal")
	require.Error(t, err)
}
