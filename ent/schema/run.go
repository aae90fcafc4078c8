package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Run holds the schema definition for the Run entity.
// A Run is one user task carried from CREATED through a terminal state
// by the orchestrator state machine (see pkg/runs).
type Run struct {
	ent.Schema
}

// Fields of the Run.
func (Run) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("run_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.Text("prompt").
			Comment("Original user prompt"),
		field.Enum("state").
			Values(
				"created", "validating", "decomposing", "scheduling",
				"executing", "aggregating", "finalizing",
				"completed", "failed", "cancelled",
			).
			Default("created"),
		field.Int64("state_version").
			Default(1).
			Comment("Bumped on every guarded transition, used for optimistic fencing"),
		field.Int64("fencing_token").
			Default(0).
			Comment("Highest lease token ever issued for this run; 0 = never leased"),
		field.String("lease_owner").
			Optional().
			Nillable().
			Comment("worker_id currently holding the lease, nil if unleased"),
		field.Time("fencing_expires_at").
			Optional().
			Nillable(),
		field.JSON("plan", map[string]interface{}{}).
			Optional().
			Comment("Current accepted Plan document"),
		field.Int("current_phase_index").
			Optional().
			Nillable(),
		field.JSON("phase_progress", map[string]interface{}{}).
			Optional().
			Comment("Per-phase progress snapshot for UI display"),
		field.String("accumulated_cost").
			Default("0").
			Comment("Decimal string, total spend charged against this run"),
		field.Time("deadline").
			Optional().
			Nillable(),
		field.JSON("terminal_result", map[string]interface{}{}).
			Optional(),
		field.JSON("last_error", map[string]interface{}{}).
			Optional().
			Comment("Structured error record (kind, message, retry_after)"),
		field.Int("retry_count").
			Default(0),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Run.
func (Run) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("jobs", Job.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("checkpoints", Checkpoint.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("scoring_sessions", ScoringSession.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("step_results", StepResult.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Run.
func (Run) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("state"),
		index.Fields("tenant_id"),
		index.Fields("state", "created_at"),
		index.Fields("lease_owner"),
	}
}
