package planscorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggest_PicksLowestSubScore(t *testing.T) {
	cases := []struct {
		name string
		s    Scores
		want RepairSuggestionType
	}{
		{"feasibility lowest", Scores{Feasibility: 0.1, Completeness: 0.9, Efficiency: 0.9, RiskAdjusted: 0.9}, SuggestModifyPhase},
		{"completeness lowest", Scores{Feasibility: 0.9, Completeness: 0.1, Efficiency: 0.9, RiskAdjusted: 0.9}, SuggestAddPhase},
		{"efficiency lowest", Scores{Feasibility: 0.9, Completeness: 0.9, Efficiency: 0.1, RiskAdjusted: 0.9}, SuggestRemovePhase},
		{"risk lowest", Scores{Feasibility: 0.9, Completeness: 0.9, Efficiency: 0.9, RiskAdjusted: 0.1}, SuggestSplitPhase},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Suggest(c.s).Type)
		})
	}
}

func TestSuggest_TieBreaksByFixedOrder(t *testing.T) {
	s := Scores{Feasibility: 0.2, Completeness: 0.2, Efficiency: 0.2, RiskAdjusted: 0.2}
	assert.Equal(t, SuggestModifyPhase, Suggest(s).Type)
}
