package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ScoringSession holds the schema definition for the ScoringSession entity
// (spec §3 "Scoring session", §4.2). Grounded directly on the teacher's
// SessionScore entity — generalized from a single LLM-judged quality score
// to the full repair-attempt/regeneration budget ledger for one plan.
type ScoringSession struct {
	ent.Schema
}

// Fields of the ScoringSession.
func (ScoringSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("scoring_session_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("plan_id").
			Comment("Current plan under evaluation; changes on regenerate"),
		field.Enum("status").
			Values("in_progress", "accepted", "regenerated", "aborted").
			Default("in_progress"),
		field.Float("feasibility").
			Optional().
			Nillable(),
		field.Float("completeness").
			Optional().
			Nillable(),
		field.Float("efficiency").
			Optional().
			Nillable(),
		field.Float("risk_adjusted").
			Optional().
			Nillable(),
		field.Float("composite").
			Optional().
			Nillable(),
		field.String("decision").
			Optional().
			Nillable().
			Comment("accept | repair | regenerate"),
		field.JSON("repair_attempts", []map[string]interface{}{}).
			Optional().
			Comment("Each: {type, before_score, after_score, duration_ms}"),
		field.Int("regeneration_count").
			Default(0),
		field.Int("repair_count").
			Default(0),
		field.Int("elapsed_ms").
			Default(0),
		field.String("abort_reason").
			Optional().
			Nillable(),
		field.Time("started_at").
			Default(time.Now).
			Immutable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the ScoringSession.
func (ScoringSession) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("run", Run.Type).
			Ref("scoring_sessions").
			Field("run_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ScoringSession.
func (ScoringSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("run_id", "status"),
		// Prevent duplicate in-progress scoring sessions per run.
		index.Fields("run_id").
			Unique().
			Annotations(entsql.IndexWhere("status = 'in_progress'")),
	}
}
