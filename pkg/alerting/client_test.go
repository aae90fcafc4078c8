package alerting

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

func testWebhookConfig() *config.WebhookConfig {
	return &config.WebhookConfig{
		RetryBase:    config.Duration(time.Millisecond),
		RetryCeiling: config.Duration(10 * time.Millisecond),
		MaxRetries:   3,
		MaxSkew:      config.Duration(5 * time.Minute),
	}
}

func TestDeliver_SignsRequestHeadersCorrectly(t *testing.T) {
	var gotSig, gotID, gotTS string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotID = r.Header.Get("X-Webhook-ID")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	sub := Subscription{ID: "wh1", URL: srv.URL, Secret: "s3cret"}
	now := time.Unix(1700000000, 0)

	err := n.Deliver(context.Background(), sub, "run.completed", map[string]any{"run_id": "r1"}, now)
	require.NoError(t, err)

	assert.Equal(t, "wh1", gotID)
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), gotTS)

	wantSig := sign("s3cret", now.Unix(), gotBody)
	assert.Equal(t, signatureHeader(wantSig), gotSig)
}

func TestDeliver_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	sub := Subscription{ID: "wh1", URL: srv.URL, Secret: "s"}

	err := n.Deliver(context.Background(), sub, "event", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDeliver_4xxIsPermanentNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(testWebhookConfig(), srv.Client())
	sub := Subscription{ID: "wh1", URL: srv.URL, Secret: "s"}

	err := n.Deliver(context.Background(), sub, "event", nil, time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDeliver_ExhaustsMaxRetriesOnPersistent5xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testWebhookConfig()
	cfg.MaxRetries = 2
	n := NewNotifier(cfg, srv.Client())
	sub := Subscription{ID: "wh1", URL: srv.URL, Secret: "s"}

	err := n.Deliver(context.Background(), sub, "event", nil, time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts)) // 1 initial + 2 retries
}

func TestSubscription_Wants(t *testing.T) {
	all := Subscription{ID: "a"}
	assert.True(t, all.Wants("anything"))

	scoped := Subscription{ID: "b", Events: []string{"run.completed"}}
	assert.True(t, scoped.Wants("run.completed"))
	assert.False(t, scoped.Wants("run.failed"))
}
