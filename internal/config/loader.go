package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEngineNames lists known engine provider names.
// Used by [Validate] to warn about unrecognised names.
var ValidEngineNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral",
	"groq", "llamacpp", "llamafile", "local",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engine
	validateEngineName("engine.provider", cfg.Engine.Provider.Name)
	if cfg.Engine.Provider.Name == "" {
		slog.Warn("no engine provider configured; correction triggers will fail until one is set")
	}
	if cfg.Engine.Provider.Name == "local" && len(cfg.Engine.Provider.Command) == 0 {
		errs = append(errs, errors.New("engine.provider.command is required when name is local"))
	}
	if cfg.Engine.Provider.Name != "" && cfg.Engine.Provider.Name != "local" && cfg.Engine.Provider.Model == "" {
		errs = append(errs, fmt.Errorf("engine.provider.model is required for provider %q", cfg.Engine.Provider.Name))
	}
	if cfg.Engine.FallbackModel != "" && cfg.Engine.Provider.Name == "" {
		slog.Warn("engine.fallback_model is set but no provider is configured; it will never run")
	}
	if cfg.Engine.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("engine.timeout_ms %d must not be negative", cfg.Engine.TimeoutMs))
	}

	// Timing
	for _, v := range []struct {
		name  string
		value int
	}{
		{"capture.settle_ms", cfg.Capture.SettleMs},
		{"capture.poll_timeout_ms", cfg.Capture.PollTimeoutMs},
		{"writeback.settle_ms", cfg.Writeback.SettleMs},
		{"writeback.restore_delay_ms", cfg.Writeback.RestoreDelayMs},
		{"live_feedback.interval_ms", cfg.LiveFeedback.IntervalMs},
		{"live_feedback.quiet_ms", cfg.LiveFeedback.QuietMs},
		{"checkers.lint.cooldown_ms", cfg.Checkers.Lint.CooldownMs},
	} {
		if v.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", v.name, v.value))
		}
	}

	// Live feedback
	if cfg.LiveFeedback.MaxIssues < 0 {
		errs = append(errs, fmt.Errorf("live_feedback.max_issues %d must not be negative", cfg.LiveFeedback.MaxIssues))
	}
	if slow := cfg.LiveFeedback.Slow; slow != nil {
		validateEngineName("live_feedback.slow.provider", slow.Provider.Name)
		if slow.Provider.Name == "local" && len(slow.Provider.Command) == 0 {
			errs = append(errs, errors.New("live_feedback.slow.provider.command is required when name is local"))
		}
		if slow.IntervalMs < 0 {
			errs = append(errs, fmt.Errorf("live_feedback.slow.interval_ms %d must not be negative", slow.IntervalMs))
		}
		if slow.Provider.Name == "" && cfg.Engine.Provider.Name == "" {
			slog.Warn("live_feedback.slow is configured with no provider anywhere; the slow check will not run")
		}
	}

	// History
	if cfg.History.Path != "" && cfg.History.PostgresDSN != "" {
		slog.Warn("history.path and history.postgres_dsn are both set; postgres takes precedence")
	}

	// Checkers
	if cfg.Checkers.Lint.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("checkers.lint.max_failures %d must not be negative", cfg.Checkers.Lint.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is non-empty and not found in
// [ValidEngineNames].
func validateEngineName(key, name string) {
	if name == "" || slices.Contains(ValidEngineNames, name) {
		return
	}
	slog.Warn("unknown engine provider name — may be a typo or third-party provider",
		"key", key,
		"name", name,
		"known", ValidEngineNames,
	)
}
