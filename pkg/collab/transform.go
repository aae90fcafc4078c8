package collab

// This file implements the primitive transformations from spec §4.6
// and the TP1 property they compose into. Each function takes one
// operation from each of two concurrent batches, both composed
// against the same base document version, and returns the pair
// transformed against each other.

// transformInsertInsert transforms two concurrent inserts against
// each other. On a tie, priority decides which one shifts right.
func transformInsertInsert(a, b Op, priority Priority) (Op, Op) {
	switch {
	case a.Position < b.Position:
		b.Position += len(a.Text)
		return a, b
	case a.Position > b.Position:
		a.Position += len(b.Text)
		return a, b
	default:
		if priority == PriorityLeft {
			b.Position += len(a.Text)
		} else {
			a.Position += len(b.Text)
		}
		return a, b
	}
}

// transformInsertDelete transforms an insert against a concurrent
// delete. Three cases per spec §4.6:
//   - insert at or before the delete start: delete shifts right.
//   - insert at or after the delete end: insert shifts left.
//   - insert strictly inside the delete range: the insert is absorbed
//     (becomes a no-op) and the delete's count grows to cover it.
func transformInsertDelete(ins, del Op) (Op, Op) {
	delEnd := del.Position + del.Count
	switch {
	case ins.Position <= del.Position:
		del.Position += len(ins.Text)
		return ins, del
	case ins.Position >= delEnd:
		ins.Position -= del.Count
		return ins, del
	default:
		del.Count += len(ins.Text)
		return Op{Type: OpRetain, Count: 0}, del
	}
}

// transformDeleteDelete transforms two concurrent deletes against
// each other. Disjoint ranges shift by the other's count; overlapping
// ranges each keep only their non-overlapping portion (the shared
// overlap is removed once, by whichever delete applies first, so
// neither transformed delete covers it); a delete fully covered by
// the other becomes a no-op.
func transformDeleteDelete(a, b Op) (Op, Op) {
	aEnd := a.Position + a.Count
	bEnd := b.Position + b.Count

	overlapStart := max(a.Position, b.Position)
	overlapEnd := min(aEnd, bEnd)
	overlap := max(0, overlapEnd-overlapStart)

	newA := Op{Type: OpDelete, Position: a.Position, Count: a.Count - overlap}
	if b.Position < a.Position {
		newA.Position = a.Position - min(b.Count, a.Position-b.Position)
	}

	newB := Op{Type: OpDelete, Position: b.Position, Count: b.Count - overlap}
	if a.Position < b.Position {
		newB.Position = b.Position - min(a.Count, b.Position-a.Position)
	}

	return newA, newB
}

// transformOp transforms op against other (both composed against the
// same base version), returning op' such that op' captures op's
// intent after other has already been applied. priority only matters
// for insert/insert ties.
func transformOp(op, other Op, priority Priority) Op {
	switch op.Type {
	case OpInsert:
		switch other.Type {
		case OpInsert:
			// other is the already-applied side; pass it first so the
			// tie-break priority resolves relative to it, then take the
			// second return value (op's transformed position).
			_, opPrime := transformInsertInsert(other, op, priority)
			return opPrime
		case OpDelete:
			ins, _ := transformInsertDelete(op, other)
			return ins
		default:
			return op
		}
	case OpDelete:
		switch other.Type {
		case OpInsert:
			// Symmetric to transformInsertDelete with roles swapped:
			// transform the delete against the other's insert.
			_, del := transformInsertDelete(other, op)
			return del
		case OpDelete:
			a, _ := transformDeleteDelete(op, other)
			return a
		default:
			return op
		}
	default:
		return op
	}
}

// Transform rebases batch against against, which is assumed to have
// already been applied to the document batch was composed against.
// The result's operations reflect batch's intent post-against; the
// caller is responsible for bumping BaseVersion.
func Transform(batch, against Batch, priority Priority) Batch {
	out := batch
	out.Operations = make([]Op, len(batch.Operations))
	copy(out.Operations, batch.Operations)

	for _, otherOp := range against.Operations {
		for i, op := range out.Operations {
			out.Operations[i] = transformOp(op, otherOp, priority)
		}
	}
	return out
}
