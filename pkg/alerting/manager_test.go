package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_PublishFansOutToInterestedSubscriptionsOnly(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	m := NewManager(n)
	m.Register(Subscription{ID: "all", URL: srv.URL, Secret: "s"})
	m.Register(Subscription{ID: "scoped", URL: srv.URL, Secret: "s", Events: []string{"other.event"}})

	m.Publish(context.Background(), "run.completed", map[string]any{"run_id": "r1"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestManager_Unregister(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	m := NewManager(n)
	m.Register(Subscription{ID: "a", URL: srv.URL, Secret: "s"})
	m.Unregister("a")

	m.Publish(context.Background(), "event", nil)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestManager_BreakerAlertFunc_PublishesStateChange(t *testing.T) {
	var gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Webhook-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	m := NewManager(n)
	m.Register(Subscription{ID: "breaker-sub", URL: srv.URL, Secret: "s"})

	cb := m.BreakerAlertFunc("collab_gateway")
	cb("closed", "open", 0.97)

	// Publish inside BreakerAlertFunc runs synchronously via Manager.Publish's
	// internal WaitGroup, so by the time cb returns the request landed.
	assert.Equal(t, "breaker-sub", gotEvent)
}
