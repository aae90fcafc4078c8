package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// StepResult holds the schema definition for the StepResult entity: a
// durable record of one committed step's output, keyed by the same
// idempotency key the executor's phase loop uses (spec §4.1 "Crash
// recovery"). Checkpoint.committed_step_keys only gains a step once its
// whole phase finishes, leaving a window — a crash after a sandbox
// command runs but before phase-complete — where the phase loop alone
// can't tell the step already ran. StepResult closes that window for
// side-effecting steps (sandbox/tool) that can't rely on a downstream
// ledger's own idempotency key the way LLM steps do.
type StepResult struct {
	ent.Schema
}

// Fields of the StepResult.
func (StepResult) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("step_result_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("phase_id").
			Immutable(),
		field.String("step_id").
			Immutable(),
		field.String("idempotency_key").
			Immutable().
			Comment("run_id:phase_id:step_id — same key the executor's committed-step set uses"),
		field.JSON("output", map[string]interface{}{}).
			Optional().
			Comment("Step output replayed verbatim on a dedup hit"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the StepResult.
func (StepResult) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", Run.Type).
			Ref("step_results").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the StepResult.
func (StepResult) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id"),
		index.Fields("idempotency_key").Unique(),
	}
}
