package planscorer

import (
	"testing"

	"github.com/codeready-toolchain/agentcore/pkg/runs"
	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct{ known map[string]bool }

func (r fakeRegistry) HasTool(name string) bool { return r.known[name] }

func goodPlan() runs.Plan {
	return runs.Plan{
		Goal: "summarize the quarterly sales report and email it to the team",
		Phases: []runs.Phase{
			{
				ID: "p1", Name: "gather sales data",
				Description: "collect quarterly sales report figures",
				Tools:       []string{"db_query"},
				Outputs:     []string{"raw_sales"},
				RiskLevel:   0.1,
			},
			{
				ID: "p2", Name: "summarize and email",
				Description: "summarize the report and email the team",
				DependsOn:   []string{"p1"},
				Tools:       []string{"email_send"},
				Outputs:     []string{"email_receipt"},
				RiskLevel:   0.2,
			},
		},
	}
}

func TestScore_WellFormedPlan_HighComposite(t *testing.T) {
	reg := fakeRegistry{known: map[string]bool{"db_query": true, "email_send": true}}
	s := Score(goodPlan().Goal, goodPlan(), reg)

	assert.Equal(t, 1.0, s.Feasibility)
	assert.Greater(t, s.Completeness, 0.5)
	assert.Equal(t, 1.0, s.Efficiency)
	assert.Greater(t, s.RiskAdjusted, 0.5)
	assert.GreaterOrEqual(t, s.Composite, AcceptThreshold)
	assert.Equal(t, DecisionAccept, Decide(s))
}

func TestFeasibility_UnknownToolAndDanglingDependency_IsZero(t *testing.T) {
	plan := runs.Plan{
		Phases: []runs.Phase{
			{ID: "a", Tools: []string{"ghost_tool"}, DependsOn: []string{"missing"}},
		},
	}
	reg := fakeRegistry{known: map[string]bool{}}
	s := Score("", plan, reg)
	assert.Equal(t, 0.0, s.Feasibility)
	assert.Equal(t, DecisionRegenerate, Decide(s))
}

func TestFeasibility_NoToolsOrDeps_DefaultsToOne(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{{ID: "a"}}}
	s := feasibility(plan, fakeRegistry{})
	assert.Equal(t, 1.0, s)
}

func TestFeasibility_EmptyPlan_IsZero(t *testing.T) {
	s := feasibility(runs.Plan{}, fakeRegistry{})
	assert.Equal(t, 0.0, s)
}

func TestScore_EmptyPlan_CompositeIsZero(t *testing.T) {
	s := Score("deploy the new payment gateway", runs.Plan{}, fakeRegistry{})
	assert.Equal(t, Scores{}, s)
	assert.Equal(t, 0.0, s.Composite)
	assert.Equal(t, DecisionRegenerate, Decide(s))
}

func TestCompleteness_EmptyGoal_IsOne(t *testing.T) {
	s := completeness("", runs.Plan{})
	assert.Equal(t, 1.0, s)
}

func TestCompleteness_NoOverlap_IsZero(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{{Name: "unrelated work"}}}
	s := completeness("deploy the new payment gateway", plan)
	assert.Equal(t, 0.0, s)
}

func TestEfficiency_DuplicateNames_PenalizesLaterDuplicate(t *testing.T) {
	plan := runs.Plan{
		Phases: []runs.Phase{
			{ID: "a", Name: "fetch data"},
			{ID: "b", Name: "fetch data"},
			{ID: "c", Name: "unique phase"},
		},
	}
	s := efficiency(plan)
	assert.InDelta(t, 1-1.0/3.0, s, 1e-9)
}

func TestEfficiency_DuplicateOutputSets_Penalized(t *testing.T) {
	plan := runs.Plan{
		Phases: []runs.Phase{
			{ID: "a", Name: "a", Outputs: []string{"x", "y"}},
			{ID: "b", Name: "b", Outputs: []string{"y", "x"}},
		},
	}
	s := efficiency(plan)
	assert.InDelta(t, 0, s, 1e-9)
}

func TestEfficiency_EmptyPlan_IsOne(t *testing.T) {
	assert.Equal(t, 1.0, efficiency(runs.Plan{}))
}

func TestRiskAdjusted_HighRiskLowersScore(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{{RiskLevel: 0.9}, {RiskLevel: 0.7}}}
	s := riskAdjusted(plan)
	assert.InDelta(t, 1-0.8, s, 1e-9)
}

func TestDecide_RepairBand(t *testing.T) {
	s := Scores{Feasibility: 0.6, Composite: 0.5}
	assert.Equal(t, DecisionRepair, Decide(s))
}

func TestDecide_RegenerateBelowRepairThreshold(t *testing.T) {
	s := Scores{Feasibility: 0.6, Composite: 0.1}
	assert.Equal(t, DecisionRegenerate, Decide(s))
}
