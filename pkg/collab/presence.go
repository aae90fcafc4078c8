package collab

import (
	"sync"
	"time"
)

// Presence tracks one client's cursor state within a document (spec
// §4.6 "Presence"). Cursor updates are transformed against intervening
// content ops so remote cursors do not drift relative to a moving
// document.
type Presence struct {
	UserID         string
	Position       int
	SelectionStart int
	SelectionEnd   int
	LastActivity   time.Time
	Idle           bool
}

// PresenceSet is the per-document collection of live Presence records,
// owned by the document's gateway session rather than the connection
// manager (spec §9 "break cycles with interface abstractions" — this
// holds a PresenceSink callback, not a back-reference).
type PresenceSet struct {
	mu       sync.Mutex
	byUser   map[string]*Presence
	sink     PresenceSink
	idleAfter time.Duration
}

// PresenceSink is invoked whenever a presence record joins, updates,
// or leaves, so the gateway can fan the change out to other clients
// without PresenceSet holding a reference to the connection manager.
type PresenceSink interface {
	PresenceChanged(documentID string, p Presence)
	PresenceLeft(documentID, userID string)
}

// NewPresenceSet constructs an empty PresenceSet reporting changes to sink.
func NewPresenceSet(sink PresenceSink, idleAfter time.Duration) *PresenceSet {
	return &PresenceSet{byUser: make(map[string]*Presence), sink: sink, idleAfter: idleAfter}
}

// Join registers a new client's presence at the given cursor position.
func (ps *PresenceSet) Join(documentID, userID string, position int, now time.Time) {
	ps.mu.Lock()
	p := &Presence{UserID: userID, Position: position, LastActivity: now}
	ps.byUser[userID] = p
	snapshot := *p
	ps.mu.Unlock()

	if ps.sink != nil {
		ps.sink.PresenceChanged(documentID, snapshot)
	}
}

// UpdateCursor moves userID's cursor and marks it active.
func (ps *PresenceSet) UpdateCursor(documentID, userID string, position int, selStart, selEnd *int, now time.Time) {
	ps.mu.Lock()
	p, ok := ps.byUser[userID]
	if !ok {
		p = &Presence{UserID: userID}
		ps.byUser[userID] = p
	}
	p.Position = position
	if selStart != nil {
		p.SelectionStart = *selStart
	}
	if selEnd != nil {
		p.SelectionEnd = *selEnd
	}
	p.LastActivity = now
	p.Idle = false
	snapshot := *p
	ps.mu.Unlock()

	if ps.sink != nil {
		ps.sink.PresenceChanged(documentID, snapshot)
	}
}

// TransformAgainst shifts every tracked cursor by a batch that was
// just applied, so cursors owned by clients who didn't send the batch
// don't drift out from under them.
func (ps *PresenceSet) TransformAgainst(batch Batch) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for userID, p := range ps.byUser {
		if userID == batch.UserID {
			continue
		}
		p.Position = transformCursor(p.Position, batch)
	}
}

// transformCursor advances a cursor position past a batch's effect,
// using the same insert/delete position arithmetic as the OT
// primitives (an insert at or before the cursor pushes it right; a
// delete overlapping or before the cursor pulls it back).
func transformCursor(pos int, batch Batch) int {
	for _, op := range batch.Operations {
		switch op.Type {
		case OpInsert:
			if op.Position <= pos {
				pos += len(op.Text)
			}
		case OpDelete:
			end := op.Position + op.Count
			switch {
			case end <= pos:
				pos -= op.Count
			case op.Position < pos:
				pos = op.Position
			}
		}
	}
	return pos
}

// MarkIdle flags any presence untouched since idleAfter as idle.
// Returns the userIDs that transitioned to idle this call.
func (ps *PresenceSet) MarkIdle(now time.Time) []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	var changed []string
	for userID, p := range ps.byUser {
		if !p.Idle && now.Sub(p.LastActivity) >= ps.idleAfter {
			p.Idle = true
			changed = append(changed, userID)
		}
	}
	return changed
}

// Leave removes a client's presence, e.g. after the disconnect grace
// period elapses without a reconnect.
func (ps *PresenceSet) Leave(documentID, userID string) {
	ps.mu.Lock()
	_, existed := ps.byUser[userID]
	delete(ps.byUser, userID)
	ps.mu.Unlock()

	if existed && ps.sink != nil {
		ps.sink.PresenceLeft(documentID, userID)
	}
}

// Snapshot returns the current presence set for a registered{presence[]} frame.
func (ps *PresenceSet) Snapshot() []PresenceInfo {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]PresenceInfo, 0, len(ps.byUser))
	for _, p := range ps.byUser {
		out = append(out, PresenceInfo{UserID: p.UserID, Position: p.Position, Idle: p.Idle})
	}
	return out
}
