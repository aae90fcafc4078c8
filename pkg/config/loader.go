package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AgentCoreYAMLConfig represents the complete agentcore.yaml file structure.
// Every section is optional; anything left unset is filled in from
// builtinDefaults() during load().
type AgentCoreYAMLConfig struct {
	Billing   *BillingConfig   `yaml:"billing"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Breaker   *BreakerConfig   `yaml:"breaker"`
	Sandbox   *SandboxConfig   `yaml:"sandbox"`
	Queue     *QueueConfig     `yaml:"queue"`
	Collab    *CollabConfig    `yaml:"collab"`
	Webhook   *WebhookConfig   `yaml:"webhook"`
	API       *APIConfig       `yaml:"api"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load agentcore.yaml from configDir
//  2. Expand environment variables
//  3. Merge built-in defaults with user-defined overrides
//  4. Validate all configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"price_table_models", stats.PriceTableModels,
		"sandbox_tiers", stats.SandboxTiers,
		"rate_limit_org_rpm", stats.RateLimitOrgRPM)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	user, err := loader.loadAgentCoreYAML()
	if err != nil {
		return nil, NewLoadError("agentcore.yaml", err)
	}

	cfg := builtinDefaults()
	cfg.configDir = configDir

	if err := mergeOverride(cfg.Billing, user.Billing); err != nil {
		return nil, fmt.Errorf("failed to merge billing config: %w", err)
	}
	if err := mergeOverride(cfg.RateLimit, user.RateLimit); err != nil {
		return nil, fmt.Errorf("failed to merge rate_limit config: %w", err)
	}
	if err := mergeOverride(cfg.Breaker, user.Breaker); err != nil {
		return nil, fmt.Errorf("failed to merge breaker config: %w", err)
	}
	if err := mergeOverride(cfg.Sandbox, user.Sandbox); err != nil {
		return nil, fmt.Errorf("failed to merge sandbox config: %w", err)
	}
	if err := mergeOverride(cfg.Queue, user.Queue); err != nil {
		return nil, fmt.Errorf("failed to merge queue config: %w", err)
	}
	if err := mergeOverride(cfg.Collab, user.Collab); err != nil {
		return nil, fmt.Errorf("failed to merge collab config: %w", err)
	}
	if err := mergeOverride(cfg.Webhook, user.Webhook); err != nil {
		return nil, fmt.Errorf("failed to merge webhook config: %w", err)
	}
	if err := mergeOverride(cfg.API, user.API); err != nil {
		return nil, fmt.Errorf("failed to merge api config: %w", err)
	}

	return cfg, nil
}

// mergeOverride merges a user-supplied section onto the built-in default
// in place, non-zero user values taking precedence. A nil user section
// leaves the default untouched.
func mergeOverride[T any](dst *T, src *T) error {
	if src == nil {
		return nil
	}
	return mergo.Merge(dst, src, mergo.WithOverride)
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Note: ExpandEnv cannot fail; unset variables expand to empty strings
	// and the YAML parser reports any content that no longer parses.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadAgentCoreYAML() (*AgentCoreYAMLConfig, error) {
	var cfg AgentCoreYAMLConfig

	path := filepath.Join(l.configDir, "agentcore.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// No user overrides; built-in defaults apply wholesale.
		return &cfg, nil
	}

	if err := l.loadYAML("agentcore.yaml", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
