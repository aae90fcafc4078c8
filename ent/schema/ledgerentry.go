package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LedgerEntry holds the schema definition for the LedgerEntry entity
// (spec §3 "Ledger entry"). Append-only: never updated or deleted.
type LedgerEntry struct {
	ent.Schema
}

// Fields of the LedgerEntry.
func (LedgerEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("entry_id").
			Unique().
			Immutable(),
		field.String("org_id").
			Immutable(),
		field.String("amount").
			Immutable().
			Comment("Decimal string, always non-negative; sign is carried by direction"),
		field.Enum("direction").
			Values("debit", "credit").
			Immutable(),
		field.Enum("transaction_type").
			Values("token_usage", "purchase", "refund", "promo", "trial", "adjustment").
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.String("run_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("agent_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("task_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("step_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("idempotency_key").
			Immutable().
			Comment("Unique within (org_id, idempotency_key) — spec invariant (b)"),
	}
}

// Edges of the LedgerEntry.
func (LedgerEntry) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("token_record", TokenRecord.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the LedgerEntry.
func (LedgerEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("org_id"),
		index.Fields("run_id"),
		index.Fields("org_id", "idempotency_key").Unique(),
	}
}
