package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TokenReconciliation holds the schema definition for the
// TokenReconciliation entity (spec §4.3 "Reconciliation"). Records that a
// run's estimated token records have been reconciled (flagged as no
// longer estimated) and the matching ledger adjustment posted; idempotent
// on (run_id, "reconcile").
type TokenReconciliation struct {
	ent.Schema
}

// Fields of the TokenReconciliation.
func (TokenReconciliation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("reconciliation_id").
			Unique().
			Immutable(),
		field.String("run_id").
			Immutable(),
		field.String("idempotency_key").
			Immutable().
			Comment(`Always "<run_id>:reconcile"`),
		field.String("adjustment_amount").
			Immutable().
			Comment("Signed decimal string; positive = credit back, negative = additional debit"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the TokenReconciliation.
func (TokenReconciliation) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("idempotency_key").Unique(),
		index.Fields("run_id"),
	}
}
