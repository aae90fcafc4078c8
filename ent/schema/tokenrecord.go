package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TokenRecord holds the schema definition for the TokenRecord entity
// (spec §3 "Token record") — the side-table for a token_usage LedgerEntry.
type TokenRecord struct {
	ent.Schema
}

// Fields of the TokenRecord.
func (TokenRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("token_record_id").
			Unique().
			Immutable(),
		field.String("ledger_entry_id").
			Immutable(),
		field.Int("input_tokens").
			Immutable(),
		field.Int("output_tokens").
			Immutable(),
		field.String("model").
			Immutable(),
		field.String("provider").
			Immutable(),
		field.Bool("estimated").
			Default(false).
			Comment("True until reconciled with the actual usage record"),
	}
}

// Edges of the TokenRecord.
func (TokenRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("ledger_entry", LedgerEntry.Type).
			Ref("token_record").
			Field("ledger_entry_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the TokenRecord.
func (TokenRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("ledger_entry_id").Unique(),
		index.Fields("estimated"),
	}
}
