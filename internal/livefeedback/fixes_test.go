package livefeedback

import (
	"context"
	"errors"
	"testing"

	"github.com/inkbound/redline/internal/field"
	fieldmock "github.com/inkbound/redline/internal/field/mock"
	"github.com/inkbound/redline/pkg/provider/checker"
	checkermock "github.com/inkbound/redline/pkg/provider/checker/mock"
)

// trackedFields keeps FullText in sync with SetText so successive fixes see
// the edited text.
func trackedFields(text string) *fieldmock.Adapter {
	f := focusedFields(text)
	f.SetTextFunc = func(ctx context.Context, tg field.Target, newText string) bool {
		f.FullText = newText
		return true
	}
	return f
}

func issueAt(word string, start int, suggestions ...string) TrackedIssue {
	return TrackedIssue{
		Issue: checker.Issue{
			Word:        word,
			Start:       start,
			Length:      len(word),
			Kind:        checker.Spelling,
			Suggestions: suggestions,
		},
		Source: "dictionary",
	}
}

func TestApplyFix_ShiftsRemainingRanges(t *testing.T) {
	t.Parallel()

	// Issues at [0,5), [10,3), [20,4); the first is replaced by a
	// 7-character string, so the others must shift by +2.
	text := "abcde     fgh       ijkl"
	fields := trackedFields(text)
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{
		issueAt("abcde", 0, "abcdefg"),
		issueAt("fgh", 10),
		issueAt("ijkl", 20),
	}
	l.checkedText = text
	l.mu.Unlock()

	if err := l.ApplyFix(context.Background(), l.Issues()[0], "abcdefg"); err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}

	issues := l.Issues()
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(issues), issues)
	}
	if issues[0].Word != "fgh" || issues[0].Start != 12 {
		t.Errorf("issue 0 = %+v, want fgh at 12", issues[0])
	}
	if issues[1].Word != "ijkl" || issues[1].Start != 22 {
		t.Errorf("issue 1 = %+v, want ijkl at 22", issues[1])
	}

	if fields.FullText != "abcdefg     fgh       ijkl" {
		t.Errorf("field text = %q", fields.FullText)
	}
	if n := len(fields.SetCursorCalls); n != 1 || fields.SetCursorCalls[0] != len("abcdefg") {
		t.Errorf("SetCursorCalls = %v, want cursor after the replacement", fields.SetCursorCalls)
	}
}

func TestApplyFix_StaleRangeForcesRecheck(t *testing.T) {
	t.Parallel()

	// The field was edited since the check: the recorded range no longer
	// holds the issue's word.
	fields := trackedFields("completely different text")
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{issueAt("teh", 0, "the")}
	l.checkedText = "teh cat"
	l.mu.Unlock()

	err := l.ApplyFix(context.Background(), l.Issues()[0], "the")
	if !errors.Is(err, ErrStaleRange) {
		t.Fatalf("err = %v, want ErrStaleRange", err)
	}

	if len(fields.SetTextCalls) != 0 {
		t.Error("field modified despite stale range")
	}
	l.mu.Lock()
	forced := l.force
	issues := len(l.issues)
	l.mu.Unlock()
	if !forced || issues != 0 {
		t.Errorf("force = %v, issues = %d; want forced re-check with no issues", forced, issues)
	}
}

func TestApplyAllFixes_EndToEnd(t *testing.T) {
	t.Parallel()

	text := "teh cat sat on teh mat"
	fields := trackedFields(text)
	fields.Cursor = len(text)
	fields.CursorOK = true
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{
		issueAt("teh", 0, "the"),
		issueAt("teh", 15, "the"),
	}
	l.checkedText = text
	l.mu.Unlock()

	pair, err := l.ApplyAllFixes(context.Background())
	if err != nil {
		t.Fatalf("ApplyAllFixes: %v", err)
	}
	if pair == nil {
		t.Fatal("pair = nil, want a change")
	}
	if pair.Original != "teh cat sat on teh mat" || pair.Fixed != "the cat sat on the mat" {
		t.Errorf("pair = %+v", pair)
	}

	if len(fields.SetTextCalls) != 1 {
		t.Errorf("SetTextCalls = %d, want a single write", len(fields.SetTextCalls))
	}
	if fields.FullText != "the cat sat on the mat" {
		t.Errorf("field text = %q", fields.FullText)
	}
	if len(l.Issues()) != 0 {
		t.Errorf("remaining issues = %+v, want none", l.Issues())
	}
	if got := l.Status(); got.Phase != PhaseClean {
		t.Errorf("status = %+v, want clean", got)
	}
}

func TestApplyAllFixes_CursorShiftUsesPreWritePosition(t *testing.T) {
	t.Parallel()

	// The full-text replace resets the caret to 0, the way AT-SPI
	// SetTextContents does. The combined shift must still be applied to
	// the position the user had before the write.
	text := "alot of work"
	fields := focusedFields(text)
	fields.Cursor = len(text)
	fields.CursorOK = true
	fields.SetTextFunc = func(ctx context.Context, tg field.Target, newText string) bool {
		fields.FullText = newText
		fields.Cursor = 0
		return true
	}
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{issueAt("alot", 0, "a lot")}
	l.checkedText = text
	l.mu.Unlock()

	pair, err := l.ApplyAllFixes(context.Background())
	if err != nil {
		t.Fatalf("ApplyAllFixes: %v", err)
	}
	if pair == nil || pair.Fixed != "a lot of work" {
		t.Fatalf("pair = %+v", pair)
	}

	want := len(text) + 1 // one inserted character before the old cursor
	if n := len(fields.SetCursorCalls); n != 1 || fields.SetCursorCalls[0] != want {
		t.Errorf("SetCursorCalls = %v, want cursor at %d", fields.SetCursorCalls, want)
	}
}

func TestApplyAllFixes_NothingToFix(t *testing.T) {
	t.Parallel()

	fields := trackedFields("all good here")
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	pair, err := l.ApplyAllFixes(context.Background())
	if err != nil {
		t.Fatalf("ApplyAllFixes: %v", err)
	}
	if pair != nil {
		t.Errorf("pair = %+v, want nil when nothing changed", pair)
	}
	if len(fields.SetTextCalls) != 0 {
		t.Error("field written with no fixes to apply")
	}
}

func TestIgnoreAlways_RemovesMatchingAndPersists(t *testing.T) {
	t.Parallel()

	fields := trackedFields("teh cat teh mat")
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{
		issueAt("teh", 0, "the"),
		issueAt("cat", 4),
		issueAt("Teh", 8, "The"),
	}
	l.mu.Unlock()

	if err := l.IgnoreAlways("teh"); err != nil {
		t.Fatalf("IgnoreAlways: %v", err)
	}

	issues := l.Issues()
	if len(issues) != 1 || issues[0].Word != "cat" {
		t.Errorf("issues = %+v, want only cat", issues)
	}
	if !l.ignore.Contains("TEH") {
		t.Error("word not persisted to the ignore store")
	}
	l.mu.Lock()
	forced := l.force
	l.mu.Unlock()
	if !forced {
		t.Error("IgnoreAlways did not force a re-check")
	}
}

func TestIgnoreOnce_RemovesSingleIssue(t *testing.T) {
	t.Parallel()

	fields := trackedFields("teh cat teh mat")
	l := newTestLoop(fields, &checkermock.Checker{}, nil)

	l.mu.Lock()
	l.issues = []TrackedIssue{
		issueAt("teh", 0, "the"),
		issueAt("teh", 8, "the"),
	}
	l.mu.Unlock()

	l.IgnoreOnce(l.Issues()[0])

	issues := l.Issues()
	if len(issues) != 1 || issues[0].Start != 8 {
		t.Errorf("issues = %+v, want only the second teh", issues)
	}
	if l.ignore.Contains("teh") {
		t.Error("IgnoreOnce must not touch the persistent store")
	}
}
