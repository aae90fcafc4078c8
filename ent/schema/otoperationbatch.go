package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OTOperationBatch holds the schema definition for the OTOperationBatch
// entity (spec §3 "Operation batch"). Append-only history, modeled on
// the teacher's TimelineEvent sequence_number ordering pattern. No
// sweep deletes rows, so every batch of a document is kept; only
// pkg/collab's in-memory history is bounded.
type OTOperationBatch struct {
	ent.Schema
}

// Fields of the OTOperationBatch.
func (OTOperationBatch) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("batch_id").
			Unique().
			Immutable(),
		field.String("document_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Int("base_version").
			Immutable().
			Comment("Document version the client observed when composing the batch"),
		field.Int("version").
			Immutable().
			Comment("Server-assigned version after transformation and apply"),
		field.JSON("operations", []map[string]interface{}{}).
			Immutable().
			Comment(`Ordered primitive ops: insert/delete/retain`),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the OTOperationBatch.
func (OTOperationBatch) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("document", OTDocument.Type).
			Ref("history").
			Field("document_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the OTOperationBatch.
func (OTOperationBatch) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "version").Unique(),
	}
}
