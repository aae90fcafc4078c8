package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Job holds the schema definition for the Job entity.
// At most one uncompleted job exists per run at any time (enforced by a
// partial unique index, mirroring the teacher's single-in-progress-score
// constraint on SessionScore).
type Job struct {
	ent.Schema
}

// Fields of the Job.
func (Job) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("job_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.Enum("status").
			Values("enqueued", "leased", "completed", "failed").
			Default("enqueued"),
		field.Int("priority").
			Default(0),
		field.Int("retry_count").
			Default(0),
		field.String("lease_worker_id").
			Optional().
			Nillable(),
		field.Time("enqueued_at").
			Default(time.Now).
			Immutable(),
		field.Time("not_before").
			Optional().
			Nillable().
			Comment("Backoff gate — job is not claimable before this time"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Job.
func (Job) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", Run.Type).
			Ref("jobs").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Job.
func (Job) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "priority", "enqueued_at"),
		index.Fields("run_id"),
		// At most one uncompleted job per run (spec §3 Job invariant).
		index.Fields("run_id").
			Unique().
			Annotations(entsql.IndexWhere("status IN ('enqueued', 'leased')")),
	}
}
