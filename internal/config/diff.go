package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (engine provider, history backend, checker commands) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SystemPromptChanged bool
	NewSystemPrompt     string

	LiveFeedbackChanged bool
	NewLiveFeedback     LiveFeedbackConfig
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SystemPromptChanged || d.LiveFeedbackChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Engine.SystemPrompt != new.Engine.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Engine.SystemPrompt
	}

	if liveFeedbackChanged(old.LiveFeedback, new.LiveFeedback) {
		d.LiveFeedbackChanged = true
		d.NewLiveFeedback = new.LiveFeedback
	}

	return d
}

// liveFeedbackChanged compares the tunable parts of the live feedback config.
// The Slow block contains a nested ProviderEntry with a map, so the structs
// are compared field by field.
func liveFeedbackChanged(old, new LiveFeedbackConfig) bool {
	if old.Enabled != new.Enabled ||
		old.IntervalMs != new.IntervalMs ||
		old.QuietMs != new.QuietMs ||
		old.MaxIssues != new.MaxIssues {
		return true
	}
	switch {
	case old.Slow == nil && new.Slow == nil:
		return false
	case old.Slow == nil || new.Slow == nil:
		return true
	}
	return old.Slow.SystemPrompt != new.Slow.SystemPrompt ||
		old.Slow.IntervalMs != new.Slow.IntervalMs ||
		old.Slow.Provider.Name != new.Slow.Provider.Name ||
		old.Slow.Provider.Model != new.Slow.Provider.Model
}
