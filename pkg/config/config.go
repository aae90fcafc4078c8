package config

// Config is the umbrella configuration object that encapsulates all
// sections loaded from YAML plus environment overrides. This is the
// primary object returned by Initialize() and threaded through the
// composition root in cmd/agentcore.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Billing   *BillingConfig
	RateLimit *RateLimitConfig
	Breaker   *BreakerConfig
	Sandbox   *SandboxConfig
	Queue     *QueueConfig
	Collab    *CollabConfig
	Webhook   *WebhookConfig
	API       *APIConfig
}

// APIConfig holds control-plane HTTP server defaults (spec §6).
type APIConfig struct {
	// BearerToken authenticates control-plane requests; empty disables auth
	// (local development only).
	BearerToken string `yaml:"bearer_token"`
	ListenAddr  string `yaml:"listen_addr"`
	// WSOriginPatterns allowlists Origin headers for the collaboration
	// WebSocket upgrade (coder/websocket's OriginPatterns). Defaults to
	// ["*"], matching the control plane's own bearer-token gate rather
	// than browser same-origin policy.
	WSOriginPatterns []string `yaml:"ws_origin_patterns"`
}

// Initialize is defined in loader.go

// BillingConfig holds billing-service defaults (spec §4.3).
type BillingConfig struct {
	// SafetyBufferPct is the pre-call budget-check buffer, e.g. 0.20 for +20%.
	SafetyBufferPct float64 `yaml:"safety_buffer_pct"`
	// PerCallCapUSD rejects any single call estimated above this amount.
	PerCallCapUSD float64 `yaml:"per_call_cap_usd"`
	// FailureThreshold is consecutive store failures before entering read_only.
	FailureThreshold int `yaml:"failure_threshold"`
	// RecoveryInterval is the quiet period before attempting normal mode again.
	RecoveryInterval Duration `yaml:"recovery_interval"`
	// MaxRetries bounds post-call retry attempts on retryable store failures.
	MaxRetries int `yaml:"max_retries"`
	// PriceTable maps model id to per-token input/output rates (USD).
	PriceTable map[string]ModelPrice `yaml:"price_table"`
}

// ModelPrice is the per-token price for one model.
type ModelPrice struct {
	InputPerToken  float64 `yaml:"input_per_token"`
	OutputPerToken float64 `yaml:"output_per_token"`
}

// RateLimitConfig holds the per-org request/token sliding-minute limits
// used by billing (§4.3) and the per-user gateway limits (§4.6).
type RateLimitConfig struct {
	OrgRequestsPerMinute int `yaml:"org_requests_per_minute"`
	OrgTokensPerMinute   int `yaml:"org_tokens_per_minute"`

	GatewayOpsPerSecond   float64 `yaml:"gateway_ops_per_second"`
	GatewayOpsBurst       int     `yaml:"gateway_ops_burst"`
	GatewayConnsPerMinute int     `yaml:"gateway_conns_per_minute"`
}

// BreakerConfig holds the collaboration gateway's circuit-breaker
// thresholds and timers (§4.6).
type BreakerConfig struct {
	ActivationThreshold   float64  `yaml:"activation_threshold"`
	DeactivationThreshold float64  `yaml:"deactivation_threshold"`
	OpenDuration          Duration `yaml:"open_duration"`
	HalfOpenMaxRequests   int      `yaml:"half_open_max_requests"`
	SampleInterval        Duration `yaml:"sample_interval"`
}

// SandboxConfig holds sandbox-manager resource presets and limits (§4.4).
type SandboxConfig struct {
	MaxConcurrentEnvironments int             `yaml:"max_concurrent_environments"`
	IdleTTL                   Duration        `yaml:"idle_ttl"`
	SweepInterval             Duration        `yaml:"sweep_interval"`
	Tiers                     map[string]Tier `yaml:"tiers"`
}

// Tier is a resource-limit preset selected by the sandbox tier name.
type Tier struct {
	CPUMillicores  int   `yaml:"cpu_millicores"`
	MemoryBytes    int64 `yaml:"memory_bytes"`
	DiskBytes      int64 `yaml:"disk_bytes"`
	NetworkBpsCap  int64 `yaml:"network_bps_cap"`
	MaxProcesses   int   `yaml:"max_processes"`
	MaxFileHandles int   `yaml:"max_file_handles"`
	IOBpsCap       int64 `yaml:"io_bps_cap"`
	IOPSCap        int   `yaml:"iops_cap"`
}

// CollabConfig holds OT/collaboration-core defaults (§3 Document, §4.6).
type CollabConfig struct {
	HistoryWindow        int      `yaml:"history_window"`
	ReconnectTokenTTL    Duration `yaml:"reconnect_token_ttl"`
	ReconnectBackoffBase Duration `yaml:"reconnect_backoff_base"`
	ReconnectBackoffMax  Duration `yaml:"reconnect_backoff_max"`
	ReconnectMaxAttempts int      `yaml:"reconnect_max_attempts"`
	PresenceLeaveGrace   Duration `yaml:"presence_leave_grace"`
}

// WebhookConfig holds outbound alert-webhook defaults (§6).
type WebhookConfig struct {
	RetryBase    Duration `yaml:"retry_base"`
	RetryCeiling Duration `yaml:"retry_ceiling"`
	MaxRetries   int      `yaml:"max_retries"`
	MaxSkew      Duration `yaml:"max_skew"`
}

// ConfigStats contains statistics about loaded configuration.
type ConfigStats struct {
	PriceTableModels int
	SandboxTiers     int
	RateLimitOrgRPM  int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		PriceTableModels: len(c.Billing.PriceTable),
		SandboxTiers:     len(c.Sandbox.Tiers),
		RateLimitOrgRPM:  c.RateLimit.OrgRequestsPerMinute,
	}
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
