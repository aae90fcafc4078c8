package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/codeready-toolchain/agentcore/pkg/ratelimit"
)

// DocumentLoader fetches (or lazily creates) a document's initial
// content when the gateway has no in-memory Document for an id yet.
// Implemented by whatever owns persistence for ot_documents (spec §6
// "Persisted state layout").
type DocumentLoader interface {
	LoadDocument(ctx context.Context, documentID string) (content string, version int, err error)
}

// BatchPersister records an applied batch and the document's resulting
// state durably, so a restart or another pod's DocumentLoader.LoadDocument
// picks up where the in-memory Document left off. Optional: a Gateway
// with no persister runs purely in-memory for the process lifetime.
type BatchPersister interface {
	PersistBatch(ctx context.Context, documentID string, batch Batch, newContent string, newVersion int) error
}

// Gateway is the collaboration data-plane entry point: one per
// process, owning every locally-connected client, the in-memory
// Document set, presence, the circuit breaker, per-user rate limits,
// and (optionally) cross-pod fan-out.
type Gateway struct {
	cfg       *config.CollabConfig
	loader    DocumentLoader
	persister BatchPersister // nil disables durable persistence
	fanout    *NotifyFanout
	breaker   *Breaker

	opLimiter   ratelimit.Limiter // per-user token bucket, ops/sec
	connLimiter ratelimit.Limiter // per-user sliding window, conns/min

	mu        sync.RWMutex
	docs      map[string]*Document
	presences map[string]*PresenceSet
	subs      map[string]map[string]*gwConn // documentID -> connID -> conn
	conns     map[string]*gwConn

	reconnect *ReconnectManager
}

// gwConn is one locally-connected client.
type gwConn struct {
	id         string
	userID     string
	documentID string
	conn       *websocket.Conn
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex // serializes writes to conn
}

// NewGateway constructs a Gateway. fanout may be nil for a
// single-process deployment with no cross-pod fan-out.
func NewGateway(cfg *config.CollabConfig, rl *config.RateLimitConfig, breakerCfg *config.BreakerConfig, loader DocumentLoader, fanout *NotifyFanout, onBreakerChange StateChangeFunc) *Gateway {
	g := &Gateway{
		cfg:         cfg,
		loader:      loader,
		fanout:      fanout,
		breaker:     NewBreaker(breakerCfg, onBreakerChange),
		opLimiter:   ratelimit.NewTokenBucket(rl.GatewayOpsPerSecond, rl.GatewayOpsBurst),
		connLimiter: ratelimit.NewSlidingWindow(rl.GatewayConnsPerMinute, time.Minute),
		docs:        make(map[string]*Document),
		presences:   make(map[string]*PresenceSet),
		subs:        make(map[string]map[string]*gwConn),
		conns:       make(map[string]*gwConn),
		reconnect:   NewReconnectManager(cfg),
	}
	if fanout != nil {
		fanout.broadcast = g
	}
	return g
}

// Breaker exposes the admission breaker, e.g. so a sampling loop in
// the composition root can feed it backpressure readings.
func (g *Gateway) Breaker() *Breaker { return g.breaker }

// SetPersister wires a BatchPersister after construction, mirroring
// Server.SetGateway's optional-dependency pattern in pkg/api: a
// Gateway built without one is fully functional in-memory, gaining
// durability only once the composition root has a store to offer.
func (g *Gateway) SetPersister(p BatchPersister) { g.persister = p }

// ActiveConnections reports the number of locally-connected clients,
// one of the signals BackpressureSource implementations typically use
// for ConnectionRatio.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

func (g *Gateway) documentLocked(ctx context.Context, documentID string) (*Document, *PresenceSet, error) {
	if doc, ok := g.docs[documentID]; ok {
		return doc, g.presences[documentID], nil
	}

	content, version, err := g.loader.LoadDocument(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}
	doc := NewDocument(documentID, content, g.cfg.HistoryWindow)
	doc.version = version
	doc.historyBase = version
	ps := NewPresenceSet(&presenceSink{g: g, documentID: documentID}, g.cfg.PresenceLeaveGrace.Dur())
	g.docs[documentID] = doc
	g.presences[documentID] = ps
	return doc, ps, nil
}

// presenceSink adapts a Gateway into the PresenceSink a PresenceSet
// reports through, without PresenceSet holding a back-reference to
// the gateway's connection bookkeeping (spec §9 cyclic-reference note).
type presenceSink struct {
	g          *Gateway
	documentID string
}

func (s *presenceSink) PresenceChanged(documentID string, p Presence) {
	s.g.Broadcast(documentID, ServerFrame{
		Type:       ServerMsgPresenceJoin,
		DocumentID: documentID,
		UserID:     p.UserID,
		Position:   p.Position,
	})
}

func (s *presenceSink) PresenceLeft(documentID, userID string) {
	s.g.Broadcast(documentID, ServerFrame{
		Type:       ServerMsgPresenceLeave,
		DocumentID: documentID,
		UserID:     userID,
	})
}

// Broadcast implements Broadcaster: sends frame to every locally
// connected client subscribed to documentID. Used both for same-pod
// delivery and for frames arriving from NotifyFanout.
func (g *Gateway) Broadcast(documentID string, frame ServerFrame) {
	g.mu.RLock()
	subs := g.subs[documentID]
	targets := make([]*gwConn, 0, len(subs))
	for _, c := range subs {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			slog.Warn("collab: failed to send frame", "connection_id", c.id, "error", err)
		}
	}
}

// HandleConnection manages one client's lifecycle after an HTTP->WS
// upgrade. Blocks until the connection closes.
func (g *Gateway) HandleConnection(parentCtx context.Context, conn *websocket.Conn, userID string) {
	if g.connLimiter.Check(userID).Decision == ratelimit.Deny {
		_ = conn.Close(websocket.StatusPolicyViolation, "connection rate limit exceeded")
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	c := &gwConn{id: uuid.New().String(), userID: userID, conn: conn, ctx: ctx, cancel: cancel}

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()

	defer g.disconnect(c)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = c.send(ServerFrame{Type: ServerMsgError, Message: "malformed frame"})
			continue
		}
		g.handleFrame(ctx, c, frame)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, c *gwConn, frame ClientFrame) {
	switch frame.Type {
	case ClientMsgRegister:
		g.handleRegister(ctx, c, frame)
	case ClientMsgOperation:
		g.handleOperation(ctx, c, frame)
	case ClientMsgCursor:
		g.handleCursor(c, frame)
	case ClientMsgSync:
		g.handleSync(ctx, c, frame)
	case ClientMsgHeartbeat:
		_ = c.send(ServerFrame{Type: ServerMsgHeartbeatAck})
	default:
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: "unknown frame type: " + frame.Type})
	}
}

func (g *Gateway) handleRegister(ctx context.Context, c *gwConn, frame ClientFrame) {
	if !g.breaker.Admit() {
		_ = c.send(ServerFrame{Type: ServerMsgError, Code: "circuit_open", Message: "gateway overloaded, try again shortly"})
		return
	}

	g.mu.Lock()
	doc, ps, err := g.documentLocked(ctx, frame.DocumentID)
	if err != nil {
		g.mu.Unlock()
		g.breaker.ReportResult(false, 0, time.Now())
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: err.Error()})
		return
	}
	c.documentID = frame.DocumentID
	if g.subs[frame.DocumentID] == nil {
		g.subs[frame.DocumentID] = make(map[string]*gwConn)
	}
	g.subs[frame.DocumentID][c.id] = c
	g.mu.Unlock()

	if g.fanout != nil {
		_ = g.fanout.Subscribe(ctx, frame.DocumentID)
	}

	content, version, hash := doc.Snapshot()
	ps.Join(frame.DocumentID, c.userID, 0, time.Now())

	_ = c.send(ServerFrame{
		Type:       ServerMsgRegistered,
		DocumentID: frame.DocumentID,
		Version:    version,
		Content:    content,
		Hash:       hash,
		Presence:   ps.Snapshot(),
	})
	g.breaker.ReportResult(true, 0, time.Now())
}

func (g *Gateway) handleOperation(ctx context.Context, c *gwConn, frame ClientFrame) {
	if frame.Batch == nil {
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: "operation frame missing batch"})
		return
	}
	if res := g.opLimiter.Check(c.userID); res.Decision == ratelimit.Deny {
		_ = c.send(ServerFrame{
			Type: ServerMsgError, Code: "rate_limited",
			Message: "operation rate limit exceeded", RetryAfter: res.RetryAfter.Seconds(),
		})
		return
	}
	if !g.breaker.Admit() {
		_ = c.send(ServerFrame{Type: ServerMsgError, Code: "circuit_open", Message: "gateway overloaded, try again shortly"})
		return
	}

	g.mu.RLock()
	doc := g.docs[frame.DocumentID]
	ps := g.presences[frame.DocumentID]
	g.mu.RUnlock()
	if doc == nil {
		g.breaker.ReportResult(false, 0, time.Now())
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: "unknown document"})
		return
	}

	batch := *frame.Batch
	batch.UserID = c.userID
	batch.DocumentID = frame.DocumentID

	applied, version, hash, err := doc.SubmitBatch(batch)
	if err != nil {
		g.breaker.ReportResult(false, 0, time.Now())
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: err.Error()})
		return
	}
	g.breaker.ReportResult(true, 0, time.Now())

	if ps != nil {
		ps.TransformAgainst(applied)
	}

	_ = c.send(ServerFrame{Type: ServerMsgAck, BatchID: applied.ID, Version: version, Hash: hash})
	g.broadcastExcept(frame.DocumentID, c.id, ServerFrame{
		Type: ServerMsgOperation, DocumentID: frame.DocumentID, Batch: &applied,
	})

	if g.fanout != nil {
		if err := g.fanout.Publish(ctx, frame.DocumentID, applied); err != nil {
			slog.Warn("collab: fanout publish failed", "document_id", frame.DocumentID, "error", err)
		}
	}

	if g.persister != nil {
		content, _, _ := doc.Snapshot()
		if err := g.persister.PersistBatch(ctx, frame.DocumentID, applied, content, version); err != nil {
			slog.Warn("collab: persisting batch failed", "document_id", frame.DocumentID, "error", err)
		}
	}
}

func (g *Gateway) handleCursor(c *gwConn, frame ClientFrame) {
	g.mu.RLock()
	ps := g.presences[frame.DocumentID]
	g.mu.RUnlock()
	if ps == nil {
		return
	}
	ps.UpdateCursor(frame.DocumentID, c.userID, frame.Position, frame.SelectionStart, frame.SelectionEnd, time.Now())
	g.broadcastExcept(frame.DocumentID, c.id, ServerFrame{
		Type: ServerMsgCursor, DocumentID: frame.DocumentID, UserID: c.userID, Position: frame.Position,
	})
}

func (g *Gateway) handleSync(ctx context.Context, c *gwConn, frame ClientFrame) {
	g.mu.RLock()
	doc := g.docs[frame.DocumentID]
	g.mu.RUnlock()
	if doc == nil {
		_ = c.send(ServerFrame{Type: ServerMsgError, Message: "unknown document"})
		return
	}

	ops, err := doc.HistorySince(frame.Version)
	if err != nil {
		// Client's version predates retained history: send a full
		// snapshot so it can discard local pending ops (spec §4.6).
		content, version, hash := doc.Snapshot()
		_ = c.send(ServerFrame{Type: ServerMsgSync, DocumentID: frame.DocumentID, Version: version, Content: content, Hash: hash})
		return
	}
	_ = c.send(ServerFrame{Type: ServerMsgSync, DocumentID: frame.DocumentID, Version: doc.Version(), Operations: ops})
}

func (g *Gateway) broadcastExcept(documentID, exceptConnID string, frame ServerFrame) {
	g.mu.RLock()
	subs := g.subs[documentID]
	targets := make([]*gwConn, 0, len(subs))
	for id, c := range subs {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			slog.Warn("collab: failed to send frame", "connection_id", c.id, "error", err)
		}
	}
}

// disconnect stores a RecoveryRecord, issues a reconnection token, and
// tears down bookkeeping for c. Presence removal is deferred by
// PresenceLeaveGrace so a fast reconnect doesn't flicker presence.
func (g *Gateway) disconnect(c *gwConn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	if c.documentID != "" {
		if subs := g.subs[c.documentID]; subs != nil {
			delete(subs, c.id)
		}
	}
	ps := g.presences[c.documentID]
	doc := g.docs[c.documentID]
	g.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")

	if doc != nil {
		rec := RecoveryRecord{UserID: c.userID, DocumentID: c.documentID, LastAckVersion: doc.Version()}
		if _, err := g.reconnect.IssueToken(rec, time.Now()); err != nil {
			slog.Warn("collab: failed to issue reconnect token", "error", err)
		}
	}

	if ps != nil {
		grace := g.cfg.PresenceLeaveGrace.Dur()
		documentID := c.documentID
		userID := c.userID
		go func() {
			time.Sleep(grace)
			g.mu.RLock()
			stillConnected := false
			for _, other := range g.subs[documentID] {
				if other.userID == userID {
					stillConnected = true
					break
				}
			}
			g.mu.RUnlock()
			if !stillConnected {
				ps.Leave(documentID, userID)
			}
		}()
	}
}

func (c *gwConn) send(frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling server frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}
