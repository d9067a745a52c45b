package livefeedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkbound/redline/internal/textdiff"
	"github.com/inkbound/redline/pkg/provider/checker"
	"github.com/inkbound/redline/pkg/provider/engine"
)

// slowChecker is the subset of [engine.Provider] the slow check needs.
type slowChecker interface {
	Correct(ctx context.Context, systemPrompt, text string) (string, error)
	Name() string
}

// WithSlowEngine enables the secondary, slower correction-quality check: on
// its own longer interval, the already-checked text is run through p and the
// output diffed against it to derive additional style issues. Results are
// discarded when the text changed while the engine was thinking.
func WithSlowEngine(p engine.Provider, systemPrompt string, interval time.Duration) Option {
	return func(l *Loop) {
		l.slowEngine = p
		l.slowPrompt = systemPrompt
		l.slowInterval = interval
	}
}

// slowCheckOnce is one tick of the slow check loop.
func (l *Loop) slowCheckOnce(ctx context.Context) {
	if l.suspended.Load() {
		return
	}

	l.mu.Lock()
	text := l.checkedText
	already := l.slowChecked
	l.mu.Unlock()
	if text == "" || text == already {
		return
	}

	gen := l.generation.Load()

	out, err := l.slowEngine.Correct(ctx, l.slowPrompt, text)
	if err != nil {
		slog.Debug("slow check failed", "provider", l.slowEngine.Name(), "error", err)
		return
	}
	derived := deriveIssues(text, out, l.slowEngine.Name())

	l.mu.Lock()
	if l.generation.Load() != gen || l.checkedText != text {
		// Text moved on while the engine was thinking.
		l.mu.Unlock()
		return
	}
	l.slowChecked = text

	existing := make([]checker.Issue, len(l.issues))
	for i, iss := range l.issues {
		existing[i] = iss.Issue
	}
	merged := l.issues
	for _, d := range derived {
		if overlapsAny(d.Issue, existing) {
			continue
		}
		merged = append(merged, d)
	}
	sortIssues(merged)
	merged = l.filter(text, merged)

	l.issues = merged
	status := l.statusForLocked()
	l.status = status
	l.mu.Unlock()

	l.indicator.Show(status, l.Issues())
	l.metrics.SetLiveIssues(ctx, len(merged))
}

// deriveIssues diffs the engine's output against the checked text and turns
// each rewritten span into a style issue anchored at its old-text offset.
func deriveIssues(old, corrected, source string) []TrackedIssue {
	segs := textdiff.Diff(old, corrected, textdiff.Word)

	var issues []TrackedIssue
	oldOff := 0
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		switch seg.Kind {
		case textdiff.Equal:
			oldOff += len(seg.Text)

		case textdiff.Deletion:
			start := oldOff
			oldOff += len(seg.Text)

			var suggestions []string
			if i+1 < len(segs) && segs[i+1].Kind == textdiff.Insertion {
				if s := strings.TrimSpace(segs[i+1].Text); s != "" {
					suggestions = []string{s}
				}
				i++
			}

			// Word segments carry their leading whitespace; the issue
			// anchors on the word itself.
			trimmed := strings.TrimLeft(seg.Text, " \t\n")
			start += len(seg.Text) - len(trimmed)
			word := strings.TrimRight(trimmed, " \t\n")
			if word == "" || len(suggestions) == 0 {
				continue
			}

			issues = append(issues, TrackedIssue{
				Issue: checker.Issue{
					Word:        word,
					Start:       start,
					Length:      len(word),
					Kind:        checker.Style,
					Message:     fmt.Sprintf("Consider %q", suggestions[0]),
					Suggestions: suggestions,
				},
				Source: source,
			})

		case textdiff.Insertion:
			// Pure insertions have no old-text word to anchor on.
		}
	}
	return issues
}
