package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// CreditBalance holds the schema definition for the CreditBalance entity
// (spec §3 "Credit balance"). One row per org; only ever written by the
// same atomic operation that appends a LedgerEntry.
type CreditBalance struct {
	ent.Schema
}

// Fields of the CreditBalance.
func (CreditBalance) Fields() []ent.Field {
	return []ent.Field{
		field.String("org_id").
			StorageKey("org_id").
			Unique().
			Immutable(),
		field.String("available").
			Default("0").
			Comment("Decimal string, invariant: available >= 0"),
		field.String("reserved").
			Default("0").
			Comment("Decimal string, advisory hold total — see DESIGN.md Open Question (b)"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}
