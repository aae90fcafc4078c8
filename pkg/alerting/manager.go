package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager fans an event out to every registered Subscription, delivering
// each concurrently and logging (never returning) delivery failures —
// an alert subscriber being down must not block the caller that raised
// the event.
type Manager struct {
	notifier *Notifier
	now      func() time.Time

	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewManager constructs a Manager with no subscriptions registered.
func NewManager(notifier *Notifier) *Manager {
	return &Manager{notifier: notifier, subs: make(map[string]Subscription), now: time.Now}
}

// Register adds or replaces a subscription.
func (m *Manager) Register(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
}

// Unregister removes a subscription.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
}

// Publish delivers event/data to every interested subscription
// concurrently. Fail-open: individual delivery errors are logged, never
// returned, so one unreachable subscriber cannot stall the others.
func (m *Manager) Publish(ctx context.Context, event string, data map[string]any) {
	m.mu.RLock()
	targets := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.Wants(event) {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	now := m.now()
	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			if err := m.notifier.Deliver(ctx, sub, event, data, now); err != nil {
				slog.Warn("webhook delivery failed", "webhook_id", sub.ID, "event", event, "error", err)
			}
		}(sub)
	}
	wg.Wait()
}

// BreakerAlertFunc adapts a circuit-breaker state-change callback (spec
// §4.6 "State changes invoke a callback used by the alert manager") into
// a Manager.Publish call, decoupling pkg/collab from pkg/alerting.
func (m *Manager) BreakerAlertFunc(component string) func(from, to string, backpressure float64) {
	return func(from, to string, backpressure float64) {
		m.Publish(context.Background(), "circuit_breaker.state_changed", map[string]any{
			"component":    component,
			"from":         from,
			"to":           to,
			"backpressure": backpressure,
		})
	}
}
