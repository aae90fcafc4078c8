// Package planscorer scores a proposed Plan against four sub-scores and
// a weighted composite (spec §4.2), decides ACCEPT/REPAIR/REGENERATE,
// and tracks the per-plan repair/regeneration budget that bounds how
// long the planning loop may run.
package planscorer

import (
	"strings"

	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

// Weights are the exact composite-score coefficients from spec §4.2.
const (
	WeightFeasibility  = 0.35
	WeightCompleteness = 0.35
	WeightEfficiency   = 0.15
	WeightRiskAdjusted = 0.15
)

// Decision thresholds (exact constants, spec §4.2).
const (
	AcceptThreshold = 0.70
	RepairThreshold = 0.40
)

// Decision is the scorer's verdict on a plan.
type Decision string

const (
	DecisionAccept     Decision = "accept"
	DecisionRepair     Decision = "repair"
	DecisionRegenerate Decision = "regenerate"
)

// Scores holds the four sub-scores and the resulting composite.
type Scores struct {
	Feasibility  float64
	Completeness float64
	Efficiency   float64
	RiskAdjusted float64
	Composite    float64
}

// ToolRegistry reports whether a tool name is known, used by the
// feasibility sub-score.
type ToolRegistry interface {
	HasTool(name string) bool
}

// Score computes all four sub-scores and the composite for a plan
// against a goal string, using registry to check tool existence.
func Score(goal string, plan runs.Plan, registry ToolRegistry) Scores {
	// An empty plan accomplishes nothing: every sub-score (not just
	// feasibility) is 0, so the composite is 0 rather than the
	// completeness/efficiency/riskAdjusted "nothing to penalize" defaults
	// those functions use for a non-empty plan with no phases left to
	// judge (spec §8 "plan scorer on an empty plan (composite = 0,
	// decision REGENERATE)").
	if len(plan.Phases) == 0 {
		return Scores{}
	}

	s := Scores{
		Feasibility:  feasibility(plan, registry),
		Completeness: completeness(goal, plan),
		Efficiency:   efficiency(plan),
		RiskAdjusted: riskAdjusted(plan),
	}
	s.Composite = WeightFeasibility*s.Feasibility +
		WeightCompleteness*s.Completeness +
		WeightEfficiency*s.Efficiency +
		WeightRiskAdjusted*s.RiskAdjusted
	return s
}

// Decide applies the exact decision thresholds from spec §4.2, including
// the feasibility=0 override.
func Decide(s Scores) Decision {
	if s.Feasibility == 0 {
		return DecisionRegenerate
	}
	switch {
	case s.Composite >= AcceptThreshold:
		return DecisionAccept
	case s.Composite >= RepairThreshold:
		return DecisionRepair
	default:
		return DecisionRegenerate
	}
}

// feasibility is the fraction of required tools that exist AND the
// fraction of phase dependencies that reference real phases, equally
// weighted (spec §4.2).
func feasibility(plan runs.Plan, registry ToolRegistry) float64 {
	if len(plan.Phases) == 0 {
		return 0
	}

	phaseIDs := make(map[string]bool, len(plan.Phases))
	for _, ph := range plan.Phases {
		phaseIDs[ph.ID] = true
	}

	var toolsTotal, toolsFound int
	var depsTotal, depsFound int

	for _, ph := range plan.Phases {
		for _, tool := range ph.Tools {
			toolsTotal++
			if registry == nil || registry.HasTool(tool) {
				toolsFound++
			}
		}
		for _, dep := range ph.DependsOn {
			depsTotal++
			if phaseIDs[dep] {
				depsFound++
			}
		}
	}

	toolFrac := 1.0
	if toolsTotal > 0 {
		toolFrac = float64(toolsFound) / float64(toolsTotal)
	}
	depFrac := 1.0
	if depsTotal > 0 {
		depFrac = float64(depsFound) / float64(depsTotal)
	}

	return (toolFrac + depFrac) / 2
}

// stopwords are filtered out of goal/phase text before keyword overlap
// is computed, so articles and prepositions don't inflate coverage.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"at": true, "by": true, "from": true, "that": true, "this": true,
}

// tokenize lowercases and splits on non-alphanumeric runs, dropping
// stopwords and empty tokens.
func tokenize(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if word == "" || stopwords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

// completeness is the normalized token overlap between the goal's
// keywords and the union of phase names/descriptions (spec §4.2).
func completeness(goal string, plan runs.Plan) float64 {
	goalTokens := tokenize(goal)
	if len(goalTokens) == 0 {
		return 1
	}

	planTokens := map[string]bool{}
	for _, ph := range plan.Phases {
		for t := range tokenize(ph.Name) {
			planTokens[t] = true
		}
		for t := range tokenize(ph.Description) {
			planTokens[t] = true
		}
	}

	covered := 0
	for t := range goalTokens {
		if planTokens[t] {
			covered++
		}
	}
	return float64(covered) / float64(len(goalTokens))
}

// efficiency is 1 minus the fraction of redundant phases — duplicate
// names or phases sharing an identical output set (spec §4.2).
func efficiency(plan runs.Plan) float64 {
	n := len(plan.Phases)
	if n == 0 {
		return 1
	}

	seenNames := map[string]int{}
	seenOutputs := map[string]int{}
	redundant := make(map[int]bool, n)

	for i, ph := range plan.Phases {
		nameKey := strings.ToLower(strings.TrimSpace(ph.Name))
		if nameKey != "" {
			if seenNames[nameKey] > 0 {
				redundant[i] = true
			}
			seenNames[nameKey]++
		}

		outKey := outputSetKey(ph.Outputs)
		if outKey != "" {
			if seenOutputs[outKey] > 0 {
				redundant[i] = true
			}
			seenOutputs[outKey]++
		}
	}

	return 1 - float64(len(redundant))/float64(n)
}

func outputSetKey(outputs []string) string {
	if len(outputs) == 0 {
		return ""
	}
	sorted := append([]string(nil), outputs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return strings.Join(sorted, "\x00")
}

// riskAdjusted is 1 minus the mean phase risk level (spec §4.2).
func riskAdjusted(plan runs.Plan) float64 {
	if len(plan.Phases) == 0 {
		return 1
	}
	var sum float64
	for _, ph := range plan.Phases {
		sum += ph.RiskLevel
	}
	return 1 - sum/float64(len(plan.Phases))
}
