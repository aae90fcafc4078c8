package collab

import "testing"

func TestSubmitBatch_AtCurrentVersion_AppliesDirectly(t *testing.T) {
	d := NewDocument("doc1", "Hello", 50)
	batch := Batch{ID: "b1", UserID: "A", BaseVersion: 0, Operations: []Op{{Type: OpInsert, Position: 5, Text: "!"}}}

	applied, version, hash, err := d.SubmitBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	if applied.BaseVersion != 0 {
		t.Fatalf("applied.BaseVersion = %d, want 0", applied.BaseVersion)
	}
	content, v, h := d.Snapshot()
	if content != "Hello!" {
		t.Fatalf("content = %q, want %q", content, "Hello!")
	}
	if v != 1 || h != hash {
		t.Fatalf("snapshot mismatch")
	}
}

func TestSubmitBatch_AheadOfVersion_Rejected(t *testing.T) {
	d := NewDocument("doc1", "Hello", 50)
	_, _, _, err := d.SubmitBatch(Batch{UserID: "A", BaseVersion: 5, Operations: nil})
	if err != ErrVersionAhead {
		t.Fatalf("err = %v, want ErrVersionAhead", err)
	}
}

func TestSubmitBatch_BehindVersion_RebasesAgainstOtherUsersHistory(t *testing.T) {
	d := NewDocument("doc1", "Hello", 50)

	// A submits at v0.
	if _, _, _, err := d.SubmitBatch(Batch{ID: "a1", UserID: "A", BaseVersion: 0,
		Operations: []Op{{Type: OpInsert, Position: 5, Text: " World"}}}); err != nil {
		t.Fatal(err)
	}

	// B submits at v0 too (concurrent), server rebases it against A's already-applied batch.
	applied, version, _, err := d.SubmitBatch(Batch{ID: "b1", UserID: "B", BaseVersion: 0,
		Operations: []Op{{Type: OpInsert, Position: 5, Text: " There"}}})
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if applied.Operations[0].Position != 11 {
		t.Fatalf("rebased insert position = %d, want 11", applied.Operations[0].Position)
	}

	content, _, _ := d.Snapshot()
	if content != "Hello World There" {
		t.Fatalf("content = %q, want %q", content, "Hello World There")
	}
}

func TestSubmitBatch_SameUserHistoryNotRebasedAgainst(t *testing.T) {
	d := NewDocument("doc1", "Hello", 50)
	if _, _, _, err := d.SubmitBatch(Batch{ID: "a1", UserID: "A", BaseVersion: 0,
		Operations: []Op{{Type: OpInsert, Position: 5, Text: "!!!"}}}); err != nil {
		t.Fatal(err)
	}
	// A submits a second batch still claiming base_version 0 (e.g. offline
	// queueing its own prior op); it should NOT be rebased against its own history.
	applied, _, _, err := d.SubmitBatch(Batch{ID: "a2", UserID: "A", BaseVersion: 0,
		Operations: []Op{{Type: OpInsert, Position: 0, Text: ">"}}})
	if err != nil {
		t.Fatal(err)
	}
	if applied.Operations[0].Position != 0 {
		t.Fatalf("own-history batch was rebased unexpectedly: position=%d", applied.Operations[0].Position)
	}
}

func TestHistorySince_ReturnsBatchesAfterVersion(t *testing.T) {
	d := NewDocument("doc1", "", 50)
	d.SubmitBatch(Batch{ID: "1", UserID: "A", BaseVersion: 0, Operations: []Op{{Type: OpInsert, Position: 0, Text: "a"}}})
	d.SubmitBatch(Batch{ID: "2", UserID: "A", BaseVersion: 1, Operations: []Op{{Type: OpInsert, Position: 1, Text: "b"}}})

	ops, err := d.HistorySince(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].ID != "2" {
		t.Fatalf("HistorySince(1) = %+v, want just batch 2", ops)
	}
}

func TestHistorySince_PredatingWindow_ReturnsErrHistoryPruned(t *testing.T) {
	d := NewDocument("doc1", "", 1) // window of 1
	d.SubmitBatch(Batch{ID: "1", UserID: "A", BaseVersion: 0, Operations: []Op{{Type: OpInsert, Position: 0, Text: "a"}}})
	d.SubmitBatch(Batch{ID: "2", UserID: "A", BaseVersion: 1, Operations: []Op{{Type: OpInsert, Position: 1, Text: "b"}}})

	_, err := d.HistorySince(0)
	if err != ErrHistoryPruned {
		t.Fatalf("err = %v, want ErrHistoryPruned", err)
	}
}

func TestApplyBatchLocked_DeleteOutOfRange_Errors(t *testing.T) {
	content := "short"
	err := applyBatchLocked(&content, Batch{Operations: []Op{{Type: OpDelete, Position: 2, Count: 100}}})
	if err == nil {
		t.Fatal("expected out-of-range delete to error")
	}
}

func TestSubmitBatch_EmptyBatch_DocumentUnaffected(t *testing.T) {
	d := NewDocument("doc1", "same", 10)
	_, version, _, err := d.SubmitBatch(Batch{UserID: "A", BaseVersion: 0, Operations: nil})
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1 (empty batch still counts as applied)", version)
	}
	content, _, _ := d.Snapshot()
	if content != "same" {
		t.Fatalf("content changed by empty batch: %q", content)
	}
}
