package config_test

import (
	"testing"

	"github.com/inkbound/redline/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Engine: config.EngineConfig{SystemPrompt: "Fix spelling."},
		LiveFeedback: config.LiveFeedbackConfig{
			Enabled:    true,
			IntervalMs: 700,
			Slow:       &config.SlowCheckConfig{IntervalMs: 8000},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_SystemPromptChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Engine: config.EngineConfig{SystemPrompt: "Fix spelling."}}
	new := &config.Config{Engine: config.EngineConfig{SystemPrompt: "Fix spelling and grammar."}}

	d := config.Diff(old, new)
	if !d.SystemPromptChanged {
		t.Error("expected SystemPromptChanged=true")
	}
	if d.NewSystemPrompt != "Fix spelling and grammar." {
		t.Errorf("NewSystemPrompt = %q", d.NewSystemPrompt)
	}
}

func TestDiff_LiveFeedbackToggled(t *testing.T) {
	t.Parallel()
	old := &config.Config{LiveFeedback: config.LiveFeedbackConfig{Enabled: false}}
	new := &config.Config{LiveFeedback: config.LiveFeedbackConfig{Enabled: true, MaxIssues: 12}}

	d := config.Diff(old, new)
	if !d.LiveFeedbackChanged {
		t.Error("expected LiveFeedbackChanged=true")
	}
	if !d.NewLiveFeedback.Enabled || d.NewLiveFeedback.MaxIssues != 12 {
		t.Errorf("NewLiveFeedback = %+v", d.NewLiveFeedback)
	}
}

func TestDiff_SlowBlockAddedOrRemoved(t *testing.T) {
	t.Parallel()
	without := &config.Config{LiveFeedback: config.LiveFeedbackConfig{Enabled: true}}
	with := &config.Config{LiveFeedback: config.LiveFeedbackConfig{
		Enabled: true,
		Slow:    &config.SlowCheckConfig{IntervalMs: 8000},
	}}

	if d := config.Diff(without, with); !d.LiveFeedbackChanged {
		t.Error("adding the slow block should register as a change")
	}
	if d := config.Diff(with, without); !d.LiveFeedbackChanged {
		t.Error("removing the slow block should register as a change")
	}
}

func TestDiff_EngineProviderChangeIgnored(t *testing.T) {
	t.Parallel()
	// The engine provider cannot be swapped live; Diff must not report it.
	old := &config.Config{Engine: config.EngineConfig{
		Provider: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
	}}
	new := &config.Config{Engine: config.EngineConfig{
		Provider: config.ProviderEntry{Name: "anthropic", Model: "claude-3-5-haiku-latest"},
	}}

	if d := config.Diff(old, new); d.Any() {
		t.Errorf("provider swap should not be hot-reloadable, got %+v", d)
	}
}
