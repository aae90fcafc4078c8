package alerting

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// Notifier delivers signed webhook payloads to subscribers with
// exponential-backoff retry (spec §6: "base 1 s, ceiling 60 s, default
// 3 retries").
type Notifier struct {
	cfg        *config.WebhookConfig
	httpClient *http.Client
}

// NewNotifier constructs a Notifier using cfg's retry parameters.
func NewNotifier(cfg *config.WebhookConfig, httpClient *http.Client) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{cfg: cfg, httpClient: httpClient}
}

// Deliver sends event/data to sub, retrying transient failures (network
// errors and 5xx responses) with exponential backoff. A 4xx response is
// treated as a permanent rejection and is not retried.
func (n *Notifier) Deliver(ctx context.Context, sub Subscription, event string, data map[string]any, now time.Time) error {
	if !sub.Wants(event) {
		return nil
	}

	payload := NewPayload(event, data, now)
	body, err := canonicalJSON(payload)
	if err != nil {
		return fmt.Errorf("alerting: marshal payload: %w", err)
	}

	ts := now.Unix()
	sig := sign(sub.Secret, ts, body)
	log := slog.With("webhook_id", sub.ID, "event", event)

	policy := backoff.WithMaxRetries(n.retryPolicy(), uint64(n.cfg.MaxRetries))
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		deliverErr := n.post(ctx, sub.URL, sub.ID, ts, sig, body)
		if deliverErr != nil {
			log.Warn("webhook delivery attempt failed", "attempt", attempt, "error", deliverErr)
		}
		return deliverErr
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("alerting: delivering %s to %s: %w", event, sub.URL, err)
	}
	return nil
}

// retryPolicy builds an exponential backoff bounded by cfg's base/ceiling.
func (n *Notifier) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.cfg.RetryBase.Dur()
	b.MaxInterval = n.cfg.RetryCeiling.Dur()
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxRetries instead of wall-clock
	return b
}

func (n *Notifier) post(ctx context.Context, url, webhookID string, ts int64, sig string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", webhookID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-Signature", signatureHeader(sig))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err // network errors are transient, retry
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("webhook endpoint rejected delivery: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook endpoint error: status %d", resp.StatusCode)
	}
}
