package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/inkbound/redline/internal/config"
)

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
engine:
  provider:
    name: local
  timeout_ms: -1
writeback:
  restore_delay_ms: -300
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"log_level", "command", "timeout_ms", "restore_delay_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_SlowLocalRequiresCommand(t *testing.T) {
	t.Parallel()
	yaml := `
live_feedback:
  enabled: true
  slow:
    provider:
      name: local
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for slow local provider without command, got nil")
	}
}

func TestValidate_UnknownProviderNameIsSoft(t *testing.T) {
	t.Parallel()
	// Unrecognised provider names warn but do not fail; third-party
	// providers may be registered under any name.
	yaml := `
engine:
  provider:
    name: acme-llm
    model: acme-1
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_LocalNeedsNoModel(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  provider:
    name: local
    command: ["redline-local", "--model", "/opt/models/small.gguf"]
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidEngineNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"openai", "anthropic", "ollama", "local"} {
		if !slices.Contains(config.ValidEngineNames, name) {
			t.Errorf("ValidEngineNames should contain %q", name)
		}
	}
}
