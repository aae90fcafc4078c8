package collab

import "testing"

func TestTransformInsertInsert_LowerPositionUnaffected(t *testing.T) {
	a := Op{Type: OpInsert, Position: 2, Text: "XX"}
	b := Op{Type: OpInsert, Position: 5, Text: "YYY"}
	gotA, gotB := transformInsertInsert(a, b, PriorityLeft)
	if gotA.Position != 2 {
		t.Fatalf("a.Position = %d, want 2", gotA.Position)
	}
	if gotB.Position != 7 {
		t.Fatalf("b.Position = %d, want 7 (5+len(XX))", gotB.Position)
	}
}

func TestTransformInsertInsert_TieBreaksByPriority(t *testing.T) {
	a := Op{Type: OpInsert, Position: 5, Text: "A"}
	b := Op{Type: OpInsert, Position: 5, Text: "BB"}

	gotA, gotB := transformInsertInsert(a, b, PriorityLeft)
	if gotA.Position != 5 || gotB.Position != 6 {
		t.Fatalf("priority left: got a=%d b=%d, want a=5 b=6", gotA.Position, gotB.Position)
	}

	gotA, gotB = transformInsertInsert(a, b, PriorityRight)
	if gotB.Position != 5 || gotA.Position != 7 {
		t.Fatalf("priority right: got a=%d b=%d, want a=7 b=5", gotA.Position, gotB.Position)
	}
}

func TestTransformInsertDelete_InsertBeforeDelete_DeleteShifts(t *testing.T) {
	ins := Op{Type: OpInsert, Position: 1, Text: "XX"}
	del := Op{Type: OpDelete, Position: 5, Count: 3}
	gotIns, gotDel := transformInsertDelete(ins, del)
	if gotIns.Position != 1 {
		t.Fatalf("insert position changed: %d", gotIns.Position)
	}
	if gotDel.Position != 7 {
		t.Fatalf("delete.Position = %d, want 7", gotDel.Position)
	}
}

func TestTransformInsertDelete_InsertAfterDelete_InsertShiftsLeft(t *testing.T) {
	ins := Op{Type: OpInsert, Position: 10, Text: "XX"}
	del := Op{Type: OpDelete, Position: 2, Count: 3}
	gotIns, gotDel := transformInsertDelete(ins, del)
	if gotIns.Position != 7 {
		t.Fatalf("insert.Position = %d, want 7 (10-3)", gotIns.Position)
	}
	if gotDel.Position != 2 || gotDel.Count != 3 {
		t.Fatalf("delete changed unexpectedly: %+v", gotDel)
	}
}

func TestTransformInsertDelete_InsertInsideDelete_AbsorbedAndDeleteGrows(t *testing.T) {
	ins := Op{Type: OpInsert, Position: 4, Text: "XYZ"}
	del := Op{Type: OpDelete, Position: 2, Count: 5} // range [2,7), 4 is strictly inside
	gotIns, gotDel := transformInsertDelete(ins, del)
	if gotIns.Count != 0 {
		t.Fatalf("absorbed insert should be a no-op, got %+v", gotIns)
	}
	if gotDel.Count != 8 {
		t.Fatalf("delete.Count = %d, want 8 (5+len(XYZ))", gotDel.Count)
	}
}

func TestTransformDeleteDelete_Disjoint_LaterShiftsByEarliersCount(t *testing.T) {
	a := Op{Type: OpDelete, Position: 2, Count: 3} // [2,5)
	b := Op{Type: OpDelete, Position: 10, Count: 4} // [10,14)
	gotA, gotB := transformDeleteDelete(a, b)
	if gotA.Position != 2 || gotA.Count != 3 {
		t.Fatalf("a changed unexpectedly: %+v", gotA)
	}
	if gotB.Position != 7 || gotB.Count != 4 {
		t.Fatalf("b = %+v, want Position=7 Count=4", gotB)
	}
}

func TestTransformDeleteDelete_Overlapping_CreditedOnce(t *testing.T) {
	a := Op{Type: OpDelete, Position: 2, Count: 5} // [2,7)
	b := Op{Type: OpDelete, Position: 5, Count: 5} // [5,10), overlap [5,7) = 2
	gotA, gotB := transformDeleteDelete(a, b)
	if gotA.Count != 3 { // a keeps its non-overlapping [2,5)
		t.Fatalf("a.Count = %d, want 3", gotA.Count)
	}
	if gotB.Count != 3 { // b keeps its non-overlapping [7,10)
		t.Fatalf("b.Count = %d, want 3", gotB.Count)
	}
}

func TestTransformDeleteDelete_FullyCovered_BecomesNoOp(t *testing.T) {
	a := Op{Type: OpDelete, Position: 4, Count: 2} // [4,6)
	b := Op{Type: OpDelete, Position: 0, Count: 10} // covers all of a
	gotA, gotB := transformDeleteDelete(a, b)
	if gotA.Count != 0 {
		t.Fatalf("a should be fully absorbed, got %+v", gotA)
	}
	if gotB.Count != 8 {
		t.Fatalf("b.Count = %d, want 8 (10-2)", gotB.Count)
	}
}

func TestTP1_ConcurrentInsertsConverge(t *testing.T) {
	// Matches spec §8 scenario 5: "Hello" + insert(5," World") vs insert(5," There").
	base := "Hello"
	a := Batch{UserID: "A", Operations: []Op{{Type: OpInsert, Position: 5, Text: " World"}}}
	b := Batch{UserID: "B", Operations: []Op{{Type: OpInsert, Position: 5, Text: " There"}}}

	// Server applies A first (priority left on tie), so B is rebased against A.
	bPrime := Transform(b, a, PriorityLeft)

	content := base
	if err := applyBatchLocked(&content, a); err != nil {
		t.Fatal(err)
	}
	if err := applyBatchLocked(&content, bPrime); err != nil {
		t.Fatal(err)
	}
	if content != "Hello World There" {
		t.Fatalf("content = %q, want %q", content, "Hello World There")
	}
}
