package collab

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Document holds one OT document's authoritative state: content,
// version, and a bounded window of applied history (spec §4.6 "Per
// document the server holds (content, version, history)").
//
// historyBase is the version the oldest retained history entry was
// applied FROM, so history[i] transitions historyBase+i -> historyBase+i+1.
// Trimming only discards entries outside the configured window; it
// never rewinds Version.
type Document struct {
	ID string

	mu          sync.Mutex
	content     string
	version     int
	history     []Batch
	historyBase int
	window      int
}

// NewDocument creates a Document at version 0 with the given initial
// content and an empty history, retaining at most window batches.
func NewDocument(id, content string, window int) *Document {
	return &Document{ID: id, content: content, version: 0, window: window}
}

// Snapshot returns the current content, version, and content hash
// without mutating anything.
func (d *Document) Snapshot() (content string, version int, hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, d.version, contentHash(d.content)
}

// Version reports the current server version.
func (d *Document) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// SubmitBatch implements the spec §4.6 server protocol steps 1-3 for
// one incoming batch: reject if ahead of the document, rebase against
// intervening history from other users if behind, apply, and append
// to history. Returns the batch as actually applied (base_version
// rewritten to the pre-apply version) plus the resulting version and
// content hash, for step 4's ack/broadcast.
func (d *Document) SubmitBatch(batch Batch) (applied Batch, newVersion int, hash string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if batch.BaseVersion > d.version {
		return Batch{}, 0, "", ErrVersionAhead
	}

	working := batch
	if batch.BaseVersion < d.version {
		working, err = d.rebaseLocked(working)
		if err != nil {
			return Batch{}, 0, "", err
		}
	}

	if err := applyBatchLocked(&d.content, working); err != nil {
		return Batch{}, 0, "", err
	}

	working.BaseVersion = d.version
	d.version++
	d.history = append(d.history, working)
	d.trimHistoryLocked()

	return working, d.version, contentHash(d.content), nil
}

// rebaseLocked transforms batch sequentially against every historical
// batch from history[batch.BaseVersion : d.version] that came from a
// different user, with priority "left" (historical operations win
// ties), per spec §4.6 step 2. Callers must hold d.mu.
func (d *Document) rebaseLocked(batch Batch) (Batch, error) {
	startIdx := batch.BaseVersion - d.historyBase
	if startIdx < 0 {
		return Batch{}, fmt.Errorf("%w: requested %d, retained from %d", ErrHistoryPruned, batch.BaseVersion, d.historyBase)
	}

	out := batch
	for _, hist := range d.history[startIdx:] {
		if hist.UserID == batch.UserID {
			continue
		}
		out = Transform(out, hist, PriorityLeft)
	}
	return out, nil
}

// HistorySince returns the batches applied since fromVersion,
// transformed for a client that never saw them, for the reconnection
// protocol (spec §4.6 "Reconnection"). Returns ErrHistoryPruned if
// fromVersion predates the retained window.
func (d *Document) HistorySince(fromVersion int) ([]Batch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fromVersion < d.historyBase {
		return nil, ErrHistoryPruned
	}
	startIdx := fromVersion - d.historyBase
	if startIdx > len(d.history) {
		startIdx = len(d.history)
	}
	out := make([]Batch, len(d.history[startIdx:]))
	copy(out, d.history[startIdx:])
	return out, nil
}

// OldestRetainedVersion reports the earliest version HistorySince can
// serve; below it a full snapshot must be sent instead.
func (d *Document) OldestRetainedVersion() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.historyBase
}

func (d *Document) trimHistoryLocked() {
	if d.window <= 0 || len(d.history) <= d.window {
		return
	}
	drop := len(d.history) - d.window
	d.history = d.history[drop:]
	d.historyBase += drop
}

// applyBatchLocked mutates *content in place by applying batch's
// operations in order. Positions in each successive op are relative
// to the content as mutated by the preceding ops in the same batch.
func applyBatchLocked(content *string, batch Batch) error {
	cur := *content
	for _, op := range batch.Operations {
		switch op.Type {
		case OpInsert:
			if op.Position < 0 || op.Position > len(cur) {
				return fmt.Errorf("collab: insert position %d out of range (len %d)", op.Position, len(cur))
			}
			cur = cur[:op.Position] + op.Text + cur[op.Position:]
		case OpDelete:
			if op.Count <= 0 {
				continue
			}
			end := op.Position + op.Count
			if op.Position < 0 || end > len(cur) {
				return fmt.Errorf("collab: delete range [%d,%d) out of range (len %d)", op.Position, end, len(cur))
			}
			cur = cur[:op.Position] + cur[end:]
		case OpRetain:
			// no-op; used as the absorbed-insert placeholder from transform.go.
		default:
			return fmt.Errorf("collab: unknown op type %q", op.Type)
		}
	}
	*content = cur
	return nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
