package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Broadcaster is the capability the OT server depends on to fan a
// just-applied batch out to every other client of the document,
// whether local (same pod) or remote (other pods, via NOTIFY). The
// gateway implements it; the server never holds a reference back to
// the gateway (spec §9 "break cycles with interface abstractions").
type Broadcaster interface {
	Broadcast(documentID string, frame ServerFrame)
}

// documentChannel derives the PostgreSQL NOTIFY channel name for a
// document's OT batches.
func documentChannel(documentID string) string {
	return "collab_doc:" + documentID
}

// NotifyFanout publishes locally-applied batches to a PostgreSQL
// channel and republishes received NOTIFYs to the local Broadcaster
// (spec §4.6 "Cross-pod fan-out"): at-least-once delivery,
// per-document ordered on the wire. A received batch is forwarded to
// local clients as an operation frame only: it is not applied to this
// pod's in-memory Document and is not checked for duplicates, and a
// pod that LISTENs on a channel it publishes to forwards its own
// batches to its local clients as well.
//
// Grounded on the teacher's NotifyListener/EventPublisher split: one
// dedicated pgx connection receives notifications, and LISTEN/UNLISTEN
// commands and pg_notify calls are all serialized through it via a
// command channel.
type NotifyFanout struct {
	connString string
	broadcast  Broadcaster

	conn   *pgx.Conn
	connMu sync.Mutex

	listening   map[string]bool
	listeningMu sync.RWMutex

	cmdCh      chan listenCmd
	running    bool
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

type listenCmd struct {
	sql    string
	args   []any
	result chan error
}

// fanoutEnvelope is the NOTIFY payload: a document batch plus the
// document id the receiving pod routes it by.
type fanoutEnvelope struct {
	DocumentID string `json:"document_id"`
	Batch      Batch  `json:"batch"`
}

// NewNotifyFanout constructs a NotifyFanout. Call Start before use.
func NewNotifyFanout(connString string, broadcast Broadcaster) *NotifyFanout {
	return &NotifyFanout{
		connString: connString,
		broadcast:  broadcast,
		listening:  make(map[string]bool),
		cmdCh:      make(chan listenCmd, 16),
	}
}

// Start establishes the dedicated LISTEN connection and begins the receive loop.
func (f *NotifyFanout) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, f.connString)
	if err != nil {
		return fmt.Errorf("collab fanout: connecting for LISTEN: %w", err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	f.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	f.cancelLoop = cancel
	f.loopDone = make(chan struct{})
	go func() {
		defer close(f.loopDone)
		f.receiveLoop(loopCtx)
	}()
	return nil
}

// Stop halts the receive loop and closes the LISTEN connection.
func (f *NotifyFanout) Stop(ctx context.Context) {
	f.running = false
	if f.cancelLoop != nil {
		f.cancelLoop()
	}
	if f.loopDone != nil {
		<-f.loopDone
	}
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close(ctx)
		f.conn = nil
	}
}

// Subscribe LISTENs on a document's channel. Idempotent; safe to call
// more than once for the same document.
func (f *NotifyFanout) Subscribe(ctx context.Context, documentID string) error {
	channel := documentChannel(documentID)
	if err := f.exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize(), nil); err != nil {
		return err
	}
	f.listeningMu.Lock()
	f.listening[channel] = true
	f.listeningMu.Unlock()
	return nil
}

// Unsubscribe UNLISTENs a document's channel once no local clients remain.
func (f *NotifyFanout) Unsubscribe(ctx context.Context, documentID string) error {
	channel := documentChannel(documentID)
	if err := f.exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize(), nil); err != nil {
		return err
	}
	f.listeningMu.Lock()
	delete(f.listening, channel)
	f.listeningMu.Unlock()
	return nil
}

func (f *NotifyFanout) exec(ctx context.Context, sql string, args []any) error {
	cmd := listenCmd{sql: sql, args: args, result: make(chan error, 1)}
	select {
	case f.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends an applied batch to every other pod subscribed to its
// document. Uses the same connection as LISTEN (pg_notify doesn't
// conflict with WaitForNotification between calls) serialized through
// the command channel, matching the teacher's single-goroutine-owns-
// the-connection rule.
func (f *NotifyFanout) Publish(ctx context.Context, documentID string, batch Batch) error {
	env := fanoutEnvelope{DocumentID: documentID, Batch: batch}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("collab fanout: marshaling batch: %w", err)
	}
	return f.exec(ctx, "SELECT pg_notify($1, $2)", []any{documentChannel(documentID), string(payload)})
}

func (f *NotifyFanout) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.processPendingCmds(ctx)

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			f.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("collab fanout: NOTIFY receive error", "error", err)
			f.reconnect(ctx)
			continue
		}

		var env fanoutEnvelope
		if err := json.Unmarshal([]byte(notification.Payload), &env); err != nil {
			slog.Warn("collab fanout: malformed NOTIFY payload", "error", err)
			continue
		}
		f.broadcast.Broadcast(env.DocumentID, ServerFrame{
			Type:       ServerMsgOperation,
			DocumentID: env.DocumentID,
			Batch:      &env.Batch,
		})
	}
}

func (f *NotifyFanout) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-f.cmdCh:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				cmd.result <- fmt.Errorf("collab fanout: LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql, cmd.args...)
			cmd.result <- err
		default:
			return
		}
	}
}

func (f *NotifyFanout) reconnect(ctx context.Context) {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close(ctx)
		f.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, f.connString)
		if err != nil {
			slog.Error("collab fanout: reconnect failed", "error", err, "backoff", backoff)
			backoff = min2(backoff*2, 30*time.Second)
			continue
		}
		f.conn = conn

		f.listeningMu.RLock()
		for ch := range f.listening {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				slog.Error("collab fanout: re-LISTEN failed", "channel", ch, "error", err)
			}
		}
		f.listeningMu.RUnlock()
		return
	}
}

func min2(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
