package config

import "time"

// builtinDefaults returns the built-in configuration baseline, applied
// before any user-supplied agentcore.yaml values are merged on top.
func builtinDefaults() *Config {
	return &Config{
		Billing: &BillingConfig{
			SafetyBufferPct:  0.20,
			PerCallCapUSD:    5.00,
			FailureThreshold: 3,
			RecoveryInterval: Duration(60 * time.Second),
			MaxRetries:       3,
			PriceTable: map[string]ModelPrice{
				"gpt-4o":            {InputPerToken: 0.0000025, OutputPerToken: 0.00001},
				"gpt-4o-mini":       {InputPerToken: 0.00000015, OutputPerToken: 0.0000006},
				"claude-3-5-sonnet": {InputPerToken: 0.000003, OutputPerToken: 0.000015},
			},
		},
		RateLimit: &RateLimitConfig{
			OrgRequestsPerMinute:  600,
			OrgTokensPerMinute:    1_000_000,
			GatewayOpsPerSecond:   10,
			GatewayOpsBurst:       50,
			GatewayConnsPerMinute: 10,
		},
		Breaker: &BreakerConfig{
			ActivationThreshold:   0.95,
			DeactivationThreshold: 0.85,
			OpenDuration:          Duration(30 * time.Second),
			HalfOpenMaxRequests:   5,
			SampleInterval:        Duration(1 * time.Second),
		},
		Sandbox: &SandboxConfig{
			MaxConcurrentEnvironments: 50,
			IdleTTL:                   Duration(15 * time.Minute),
			SweepInterval:             Duration(1 * time.Minute),
			Tiers: map[string]Tier{
				"small": {
					CPUMillicores: 500, MemoryBytes: 512 << 20, DiskBytes: 1 << 30,
					NetworkBpsCap: 5 << 20, MaxProcesses: 32, MaxFileHandles: 256,
					IOBpsCap: 20 << 20, IOPSCap: 500,
				},
				"medium": {
					CPUMillicores: 1000, MemoryBytes: 2 << 30, DiskBytes: 5 << 30,
					NetworkBpsCap: 20 << 20, MaxProcesses: 64, MaxFileHandles: 1024,
					IOBpsCap: 50 << 20, IOPSCap: 1500,
				},
				"large": {
					CPUMillicores: 2000, MemoryBytes: 8 << 30, DiskBytes: 20 << 30,
					NetworkBpsCap: 50 << 20, MaxProcesses: 128, MaxFileHandles: 4096,
					IOBpsCap: 100 << 20, IOPSCap: 4000,
				},
			},
		},
		Queue: DefaultQueueConfig(),
		Collab: &CollabConfig{
			HistoryWindow:        500,
			ReconnectTokenTTL:    Duration(1 * time.Hour),
			ReconnectBackoffBase: Duration(1 * time.Second),
			ReconnectBackoffMax:  Duration(60 * time.Second),
			ReconnectMaxAttempts: 5,
			PresenceLeaveGrace:   Duration(10 * time.Second),
		},
		Webhook: &WebhookConfig{
			RetryBase:    Duration(1 * time.Second),
			RetryCeiling: Duration(60 * time.Second),
			MaxRetries:   3,
			MaxSkew:      Duration(5 * time.Minute),
		},
		API: &APIConfig{
			ListenAddr:       ":8080",
			WSOriginPatterns: []string{"*"},
		},
	}
}
