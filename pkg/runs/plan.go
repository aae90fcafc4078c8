package runs

// Plan is the decomposition produced by DECOMPOSING and scored by
// pkg/planscorer before the orchestrator advances to SCHEDULING (spec
// §4.2). Stored as the run's `plan` JSON column.
type Plan struct {
	Goal   string  `json:"goal"`
	Phases []Phase `json:"phases"`
}

// Phase is one unit of work within a Plan, executed in dependency order
// (spec §4.1 "Per-phase execution").
type Phase struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	DependsOn         []string `json:"depends_on"`
	Tools             []string `json:"tools"`
	Outputs           []string `json:"outputs"`
	RiskLevel         float64  `json:"risk_level"`
	EstimatedDuration float64  `json:"estimated_duration_seconds"`
	Steps             []Step   `json:"steps"`
}

// Step is a single LLM/tool invocation within a phase's execution
// sub-plan (spec §4.1 step 2).
type Step struct {
	ID       string         `json:"id"`
	Kind     StepKind       `json:"kind"`
	Model    string         `json:"model,omitempty"`
	Tool     string         `json:"tool,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
}

// StepKind distinguishes an LLM completion step from a sandbox/tool step.
type StepKind string

const (
	StepKindLLM     StepKind = "llm"
	StepKindTool    StepKind = "tool"
	StepKindSandbox StepKind = "sandbox"
)

// ToOrderedPhases returns phases sorted into dependency order using a
// stable topological sort (first-seen order among ties). Dependencies on
// unknown phase ids are ignored. A cycle does not stop the sort: it is
// broken where the walk re-enters it, so every phase is still returned
// once, but inside the cycle a phase can come before one it depends on.
func (p Plan) ToOrderedPhases() []Phase {
	byID := make(map[string]Phase, len(p.Phases))
	for _, ph := range p.Phases {
		byID[ph.ID] = ph
	}

	visited := make(map[string]bool, len(p.Phases))
	var order []Phase

	var visit func(id string, stack map[string]bool)
	visit = func(id string, stack map[string]bool) {
		if visited[id] || stack[id] {
			return
		}
		ph, ok := byID[id]
		if !ok {
			return
		}
		stack[id] = true
		for _, dep := range ph.DependsOn {
			visit(dep, stack)
		}
		delete(stack, id)
		if !visited[id] {
			visited[id] = true
			order = append(order, ph)
		}
	}

	for _, ph := range p.Phases {
		visit(ph.ID, map[string]bool{})
	}
	return order
}
