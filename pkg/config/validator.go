package config

import "fmt"

// Validator performs semantic validation across configuration sections
// that a struct tag alone cannot express (cross-field and cross-section
// invariants).
type Validator struct {
	cfg *Config
}

// NewValidator constructs a Validator bound to cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every section's checks and returns the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateBilling(); err != nil {
		return err
	}
	if err := v.validateRateLimit(); err != nil {
		return err
	}
	if err := v.validateBreaker(); err != nil {
		return err
	}
	if err := v.validateSandbox(); err != nil {
		return err
	}
	if err := v.validateQueue(); err != nil {
		return err
	}
	if err := v.validateCollab(); err != nil {
		return err
	}
	if err := v.validateWebhook(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateBilling() error {
	b := v.cfg.Billing
	if b.SafetyBufferPct < 0 {
		return fmt.Errorf("billing.safety_buffer_pct must be >= 0, got %v", b.SafetyBufferPct)
	}
	if b.PerCallCapUSD <= 0 {
		return fmt.Errorf("billing.per_call_cap_usd must be > 0, got %v", b.PerCallCapUSD)
	}
	if b.FailureThreshold <= 0 {
		return fmt.Errorf("billing.failure_threshold must be > 0, got %d", b.FailureThreshold)
	}
	if b.MaxRetries < 0 {
		return fmt.Errorf("billing.max_retries must be >= 0, got %d", b.MaxRetries)
	}
	for model, price := range b.PriceTable {
		if price.InputPerToken < 0 || price.OutputPerToken < 0 {
			return fmt.Errorf("billing.price_table[%s]: token prices must be >= 0", model)
		}
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	r := v.cfg.RateLimit
	if r.OrgRequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.org_requests_per_minute must be > 0, got %d", r.OrgRequestsPerMinute)
	}
	if r.OrgTokensPerMinute <= 0 {
		return fmt.Errorf("rate_limit.org_tokens_per_minute must be > 0, got %d", r.OrgTokensPerMinute)
	}
	if r.GatewayOpsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.gateway_ops_per_second must be > 0, got %v", r.GatewayOpsPerSecond)
	}
	if r.GatewayOpsBurst <= 0 {
		return fmt.Errorf("rate_limit.gateway_ops_burst must be > 0, got %d", r.GatewayOpsBurst)
	}
	return nil
}

func (v *Validator) validateBreaker() error {
	b := v.cfg.Breaker
	if b.ActivationThreshold <= 0 || b.ActivationThreshold > 1 {
		return fmt.Errorf("breaker.activation_threshold must be in (0,1], got %v", b.ActivationThreshold)
	}
	if b.DeactivationThreshold <= 0 || b.DeactivationThreshold > 1 {
		return fmt.Errorf("breaker.deactivation_threshold must be in (0,1], got %v", b.DeactivationThreshold)
	}
	if b.DeactivationThreshold >= b.ActivationThreshold {
		return fmt.Errorf("breaker.deactivation_threshold (%v) must be less than activation_threshold (%v)",
			b.DeactivationThreshold, b.ActivationThreshold)
	}
	if b.OpenDuration.Dur() <= 0 {
		return fmt.Errorf("breaker.open_duration must be > 0")
	}
	if b.HalfOpenMaxRequests <= 0 {
		return fmt.Errorf("breaker.half_open_max_requests must be > 0, got %d", b.HalfOpenMaxRequests)
	}
	return nil
}

func (v *Validator) validateSandbox() error {
	s := v.cfg.Sandbox
	if s.MaxConcurrentEnvironments <= 0 {
		return fmt.Errorf("sandbox.max_concurrent_environments must be > 0, got %d", s.MaxConcurrentEnvironments)
	}
	if s.IdleTTL.Dur() <= 0 {
		return fmt.Errorf("sandbox.idle_ttl must be > 0")
	}
	if len(s.Tiers) == 0 {
		return fmt.Errorf("sandbox.tiers must define at least one tier")
	}
	for name, t := range s.Tiers {
		if t.CPUMillicores <= 0 || t.MemoryBytes <= 0 {
			return fmt.Errorf("sandbox.tiers[%s]: cpu_millicores and memory_bytes must be > 0", name)
		}
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount <= 0 {
		return fmt.Errorf("queue.worker_count must be > 0, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("queue.max_concurrent_jobs must be > 0, got %d", q.MaxConcurrentJobs)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be > 0")
	}
	if q.JobTimeout <= 0 {
		return fmt.Errorf("queue.job_timeout must be > 0")
	}
	return nil
}

func (v *Validator) validateCollab() error {
	c := v.cfg.Collab
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("collab.history_window must be > 0, got %d", c.HistoryWindow)
	}
	if c.ReconnectTokenTTL.Dur() <= 0 {
		return fmt.Errorf("collab.reconnect_token_ttl must be > 0")
	}
	if c.ReconnectBackoffMax.Dur() < c.ReconnectBackoffBase.Dur() {
		return fmt.Errorf("collab.reconnect_backoff_max must be >= reconnect_backoff_base")
	}
	if c.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("collab.reconnect_max_attempts must be > 0, got %d", c.ReconnectMaxAttempts)
	}
	return nil
}

func (v *Validator) validateWebhook() error {
	w := v.cfg.Webhook
	if w.RetryCeiling.Dur() < w.RetryBase.Dur() {
		return fmt.Errorf("webhook.retry_ceiling must be >= retry_base")
	}
	if w.MaxRetries < 0 {
		return fmt.Errorf("webhook.max_retries must be >= 0, got %d", w.MaxRetries)
	}
	if w.MaxSkew.Dur() <= 0 {
		return fmt.Errorf("webhook.max_skew must be > 0")
	}
	return nil
}
