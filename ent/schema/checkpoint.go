package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity.
// Written at phase-start and phase-complete (spec §4.1 "Per-phase
// execution"); a crashed worker's replacement resumes from the latest row
// for its run.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("checkpoint_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("phase_id").
			Immutable(),
		field.Int("phase_index").
			Immutable(),
		field.Enum("kind").
			Values("phase_start", "phase_complete").
			Immutable(),
		field.String("idempotency_key").
			Immutable().
			Comment("run_id:phase_id:start, or run_id:phase_id:complete"),
		field.JSON("accumulator", map[string]interface{}{}).
			Optional().
			Comment("Phase-local accumulated state needed to resume"),
		field.JSON("committed_step_keys", []string{}).
			Optional().
			Comment("Idempotency keys of side-effects already committed this phase"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Checkpoint.
func (Checkpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", Run.Type).
			Ref("checkpoints").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "phase_index"),
		index.Fields("idempotency_key").Unique(),
	}
}
