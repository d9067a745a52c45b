package livefeedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkbound/redline/internal/field"
)

// FixPair is the before/after text of an [Loop.ApplyAllFixes] run, handed to
// the caller for history recording.
type FixPair struct {
	Original string
	Fixed    string
}

// ApplyFix replaces one tracked issue's word with replacement in the focused
// field. The focused element is resolved fresh and the issue's range is
// re-verified against the current text; on any mismatch the fix is abandoned
// with [ErrStaleRange] and the next poll re-checks from scratch. All other
// tracked issues at or after the edit are shifted by the length delta.
func (l *Loop) ApplyFix(ctx context.Context, iss TrackedIssue, replacement string) error {
	target, full, err := l.freshText(ctx)
	if err != nil {
		return err
	}

	if iss.Start < 0 || iss.End() > len(full) || full[iss.Start:iss.End()] != iss.Word {
		l.forceRecheck()
		return ErrStaleRange
	}

	newFull := full[:iss.Start] + replacement + full[iss.End():]
	if !l.fields.SetText(ctx, target, newFull) {
		return fmt.Errorf("livefeedback: set text failed")
	}
	l.fields.SetCursor(ctx, target, iss.Start+len(replacement))

	delta := len(replacement) - iss.Length
	l.commitEdit(iss, delta, newFull)

	l.metrics.RecordFix(ctx, iss.Kind.String())
	return nil
}

// ApplyAllFixes applies the first suggestion of every tracked issue in one
// pass, processing issues from last position to first so earlier ranges stay
// valid without incremental shifting. The field is written once. Returns nil
// when nothing changed. Any range mismatch abandons the whole run with
// [ErrStaleRange].
func (l *Loop) ApplyAllFixes(ctx context.Context) (*FixPair, error) {
	target, full, err := l.freshText(ctx)
	if err != nil {
		return nil, err
	}

	issues := l.Issues()
	original := full
	fixed := full
	applied := 0

	for i := len(issues) - 1; i >= 0; i-- {
		iss := issues[i]
		if len(iss.Suggestions) == 0 {
			continue
		}
		if iss.Start < 0 || iss.End() > len(original) || original[iss.Start:iss.End()] != iss.Word {
			l.forceRecheck()
			return nil, ErrStaleRange
		}
		fixed = fixed[:iss.Start] + iss.Suggestions[0] + fixed[iss.End():]
		applied++
	}

	if applied == 0 || fixed == original {
		return nil, nil
	}

	// The cursor is read before the write: toolkits commonly reset the
	// caret on a full-text replace, so the shift must apply to the
	// position the user actually had.
	cursor, cursorOK := l.fields.ReadCursor(ctx, target)

	if !l.fields.SetText(ctx, target, fixed) {
		return nil, fmt.Errorf("livefeedback: set text failed")
	}

	// One combined cursor shift for all edits before the cursor.
	if cursorOK {
		delta := 0
		for _, iss := range issues {
			if len(iss.Suggestions) == 0 || iss.Start >= cursor {
				continue
			}
			delta += len(iss.Suggestions[0]) - iss.Length
		}
		l.fields.SetCursor(ctx, target, cursor+delta)
	}

	l.mu.Lock()
	l.issues = nil
	l.checkedText = fixed
	l.lastRead = fixed
	l.lastReadAt = l.now()
	l.status = Status{Phase: PhaseClean}
	status := l.status
	l.mu.Unlock()
	l.generation.Add(1)

	l.indicator.Show(status, nil)
	l.metrics.SetLiveIssues(ctx, 0)
	for _, iss := range issues {
		if len(iss.Suggestions) > 0 {
			l.metrics.RecordFix(ctx, iss.Kind.String())
		}
	}

	return &FixPair{Original: original, Fixed: fixed}, nil
}

// IgnoreOnce removes a single issue from the current list without touching
// the persistent ignore list. The next poll re-checks from scratch.
func (l *Loop) IgnoreOnce(iss TrackedIssue) {
	l.mu.Lock()
	kept := l.issues[:0]
	for _, cur := range l.issues {
		if cur.Start == iss.Start && cur.Word == iss.Word {
			continue
		}
		kept = append(kept, cur)
	}
	l.issues = kept
	l.checkedText = ""
	l.force = true
	status := l.statusForLocked()
	l.status = status
	l.mu.Unlock()

	l.indicator.Show(status, l.Issues())
}

// IgnoreAlways adds the lowercased word to the persistent ignore list and
// removes every current issue matching it. The next poll re-checks from
// scratch.
func (l *Loop) IgnoreAlways(word string) error {
	if err := l.ignore.Add(strings.ToLower(word)); err != nil {
		return fmt.Errorf("livefeedback: ignore %q: %w", word, err)
	}

	l.mu.Lock()
	kept := l.issues[:0]
	for _, cur := range l.issues {
		if strings.EqualFold(cur.Word, word) {
			continue
		}
		kept = append(kept, cur)
	}
	l.issues = kept
	l.checkedText = ""
	l.force = true
	status := l.statusForLocked()
	l.status = status
	l.mu.Unlock()

	l.indicator.Show(status, l.Issues())
	return nil
}

// freshText resolves the focused element and its current text. Never reuses
// a stored target reference; intervening UI interaction may have invalidated
// it.
func (l *Loop) freshText(ctx context.Context) (target field.Target, full string, err error) {
	t, ok := l.fields.FocusedTarget(ctx)
	if !ok {
		l.forceRecheck()
		return "", "", ErrStaleRange
	}
	text, ok := l.fields.ReadFullText(ctx, t)
	if !ok {
		l.forceRecheck()
		return "", "", ErrStaleRange
	}
	return t, text, nil
}

// commitEdit updates the tracked state after a single-issue fix: the fixed
// issue is dropped and every issue starting at or after the edit shifts by
// delta.
func (l *Loop) commitEdit(fixed TrackedIssue, delta int, newText string) {
	l.mu.Lock()
	kept := l.issues[:0]
	for _, cur := range l.issues {
		if cur.Start == fixed.Start && cur.Word == fixed.Word {
			continue
		}
		if cur.Start >= fixed.Start {
			cur.Start += delta
		}
		kept = append(kept, cur)
	}
	l.issues = kept
	l.checkedText = newText
	l.lastRead = newText
	l.lastReadAt = l.now()
	status := l.statusForLocked()
	l.status = status
	l.mu.Unlock()
	l.generation.Add(1)

	l.indicator.Show(status, l.Issues())
}

// statusForLocked derives the status from the current issue list. Caller
// holds l.mu.
func (l *Loop) statusForLocked() Status {
	if len(l.issues) == 0 {
		return Status{Phase: PhaseClean}
	}
	return Status{Phase: PhaseIssues, IssueCount: len(l.issues)}
}
