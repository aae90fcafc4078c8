package collab

import (
	"testing"
	"time"
)

type recordingSink struct {
	changed []Presence
	left    []string
}

func (s *recordingSink) PresenceChanged(documentID string, p Presence) { s.changed = append(s.changed, p) }
func (s *recordingSink) PresenceLeft(documentID, userID string)        { s.left = append(s.left, userID) }

func TestPresence_JoinAndUpdateCursor(t *testing.T) {
	sink := &recordingSink{}
	ps := NewPresenceSet(sink, time.Minute)
	now := time.Now()

	ps.Join("doc1", "u1", 0, now)
	ps.UpdateCursor("doc1", "u1", 5, nil, nil, now.Add(time.Second))

	snap := ps.Snapshot()
	if len(snap) != 1 || snap[0].Position != 5 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(sink.changed) != 2 {
		t.Fatalf("expected 2 PresenceChanged calls, got %d", len(sink.changed))
	}
}

func TestPresence_TransformAgainstShiftsOtherCursors(t *testing.T) {
	ps := NewPresenceSet(nil, time.Minute)
	now := time.Now()
	ps.Join("doc1", "u1", 10, now)
	ps.Join("doc1", "u2", 3, now)

	// u2's insert at position 0 should push u1's cursor right, but not its own.
	ps.TransformAgainst(Batch{UserID: "u2", Operations: []Op{{Type: OpInsert, Position: 0, Text: "XXX"}}})

	snap := ps.Snapshot()
	positions := map[string]int{}
	for _, p := range snap {
		positions[p.UserID] = p.Position
	}
	if positions["u1"] != 13 {
		t.Fatalf("u1 position = %d, want 13", positions["u1"])
	}
	if positions["u2"] != 3 {
		t.Fatalf("u2 (batch author) position should be untouched, got %d", positions["u2"])
	}
}

func TestPresence_MarkIdleAfterInactivity(t *testing.T) {
	ps := NewPresenceSet(nil, time.Minute)
	now := time.Now()
	ps.Join("doc1", "u1", 0, now)

	if changed := ps.MarkIdle(now.Add(30 * time.Second)); len(changed) != 0 {
		t.Fatalf("should not be idle yet: %v", changed)
	}
	changed := ps.MarkIdle(now.Add(2 * time.Minute))
	if len(changed) != 1 || changed[0] != "u1" {
		t.Fatalf("changed = %v, want [u1]", changed)
	}
}

func TestPresence_Leave(t *testing.T) {
	sink := &recordingSink{}
	ps := NewPresenceSet(sink, time.Minute)
	ps.Join("doc1", "u1", 0, time.Now())
	ps.Leave("doc1", "u1")

	if len(ps.Snapshot()) != 0 {
		t.Fatal("expected presence removed")
	}
	if len(sink.left) != 1 || sink.left[0] != "u1" {
		t.Fatalf("left = %v", sink.left)
	}
}
