package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// OTDocument holds the schema definition for the OTDocument entity
// (spec §3 "Document"). content/version are the durable source of truth;
// pkg/collab keeps an in-memory working copy per (document, pod) guarded
// by a lock and persists on each applied batch.
type OTDocument struct {
	ent.Schema
}

// Fields of the OTDocument.
func (OTDocument) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("document_id").
			Unique().
			Immutable(),
		field.Text("content").
			Default(""),
		field.Int("version").
			Default(0).
			Comment("Strictly increasing; equals len(history) — spec invariant (d)"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the OTDocument.
func (OTDocument) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("history", OTOperationBatch.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}
