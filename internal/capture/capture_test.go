package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkbound/redline/internal/capture"
	"github.com/inkbound/redline/internal/clipboard"
	clipmock "github.com/inkbound/redline/internal/clipboard/mock"
	fieldmock "github.com/inkbound/redline/internal/field/mock"
)

func fastOpts() []capture.Option {
	return []capture.Option{
		capture.WithSettleDelay(0),
		capture.WithPollTimeout(50 * time.Millisecond),
		capture.WithPollIntervals(time.Millisecond, 2*time.Millisecond),
	}
}

func TestChain_DirectReadWins(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{
		Focused: "app|/field/1", FocusedOK: true,
		Selection: "selected words", SelectionOK: true,
	}
	clip := &clipmock.Adapter{}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "selected words" || got.Source != capture.SourceAccessibility {
		t.Errorf("got %+v", got)
	}
	if got.ClipboardSnapshot != nil {
		t.Error("direct read must not touch the clipboard")
	}
	if clip.SnapshotCalls != 0 || len(clip.CopyCalls) != 0 {
		t.Errorf("clipboard strategy ran: %d snapshots, %d copies", clip.SnapshotCalls, clip.CopyCalls)
	}
}

func TestChain_FallsBackToCursorLineWithoutClipboard(t *testing.T) {
	t.Parallel()

	// Direct read yields an empty selection; the cursor sits on line two.
	fields := &fieldmock.Adapter{
		Focused: "app|/field/1", FocusedOK: true,
		Selection: "", SelectionOK: true,
		FullText: "first line\nsecond line\nthird", FullTextOK: true,
		Cursor: len("first line\nsec"), CursorOK: true,
	}
	clip := &clipmock.Adapter{}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "second line" {
		t.Errorf("Text = %q, want %q", got.Text, "second line")
	}
	if got.Line == nil {
		t.Fatal("Line context missing")
	}
	if got.Line.Start != len("first line\n") || got.Line.End != len("first line\nsecond line") {
		t.Errorf("line range [%d,%d)", got.Line.Start, got.Line.End)
	}
	if len(clip.CopyCalls) != 0 {
		t.Error("clipboard strategy ran despite successful line extraction")
	}
}

func TestChain_ReplacementGlyphSkipsDirectRead(t *testing.T) {
	t.Parallel()

	// Direct read "succeeds" but carries the unrenderable glyph; the chain
	// must move on to cursor-line extraction.
	fields := &fieldmock.Adapter{
		Focused: "app|/field/1", FocusedOK: true,
		Selection: "image: ￼ here", SelectionOK: true,
		FullText: "caption text", FullTextOK: true,
		Cursor: 3, CursorOK: true,
	}
	clip := &clipmock.Adapter{}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "caption text" {
		t.Errorf("Text = %q, want cursor-line result", got.Text)
	}
}

func TestChain_BlankCursorLineFallsThrough(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{
		Focused: "app|/field/1", FocusedOK: true,
		Selection: "", SelectionOK: true,
		FullText: "above\n   \nbelow", FullTextOK: true,
		Cursor: len("above\n "), CursorOK: true,
	}
	clip := &clipmock.Adapter{
		Content: "prior clipboard", HasContent: true,
		CopyOK:    map[clipboard.Delivery]bool{clipboard.DeliveryVirtualKeyboard: true},
		ReadTexts: []string{"copied text"},
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Source != capture.SourceClipboard || got.Text != "copied text" {
		t.Errorf("got %+v, want clipboard capture", got)
	}
	if got.ClipboardSnapshot == nil || got.ClipboardSnapshot.Text != "prior clipboard" {
		t.Errorf("snapshot = %+v, want prior clipboard content", got.ClipboardSnapshot)
	}
}

func TestChain_ClipboardPollIgnoresSentinel(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{} // no focused element at all
	clip := &clipmock.Adapter{
		CopyOK: map[clipboard.Delivery]bool{clipboard.DeliveryXTest: true},
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	// The mock returns the written sentinel until the scripted value
	// appears, mimicking a slow target application.
	clip.ReadTexts = nil // first reads return Content, i.e. the sentinel written by the chain
	go func() {
		time.Sleep(10 * time.Millisecond)
		clip.WritePlainText(context.Background(), "  real copy  ")
	}()

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "real copy" {
		t.Errorf("Text = %q, want trimmed copied value", got.Text)
	}
}

func TestChain_RecoversGlyphsFromRichClipboard(t *testing.T) {
	t.Parallel()

	// The copied text carries an object replacement glyph; the rich
	// clipboard representation holds the real character at the same
	// position.
	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		CopyOK:    map[clipboard.Delivery]bool{clipboard.DeliveryVirtualKeyboard: true},
		ReadTexts: []string{"pic ￼ done"},
		RichText:  "pic ★ done",
		RichOK:    true,
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "pic ★ done" {
		t.Errorf("Text = %q, want the glyph recovered from the rich representation", got.Text)
	}
}

func TestChain_GlyphStaysWithoutRichAlternative(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		CopyOK:    map[clipboard.Delivery]bool{clipboard.DeliveryVirtualKeyboard: true},
		ReadTexts: []string{"pic ￼ done"},
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	got, err := chain.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Text != "pic ￼ done" {
		t.Errorf("Text = %q, want the glyph left in place", got.Text)
	}
}

func TestChain_AllStrategiesFail(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		Content: "keep me", HasContent: true,
		CopyOK: map[clipboard.Delivery]bool{}, // both deliveries fail
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	_, err := chain.Capture(context.Background())
	if !errors.Is(err, capture.ErrNoTextSelected) {
		t.Fatalf("err = %v, want ErrNoTextSelected", err)
	}

	// The snapshot must be restored when capture fails.
	if len(clip.RestoreCalls) != 1 {
		t.Fatalf("got %d restores, want 1", len(clip.RestoreCalls))
	}
	if clip.RestoreCalls[0].Text != "keep me" {
		t.Errorf("restored %q, want original content", clip.RestoreCalls[0].Text)
	}
}

func TestChain_RestoreSurvivesExpiredContext(t *testing.T) {
	t.Parallel()

	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		Content: "keep me", HasContent: true,
		CopyOK: map[clipboard.Delivery]bool{}, // both deliveries fail
	}
	chain := capture.NewChain(fields, clip, fastOpts()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := chain.Capture(ctx); !errors.Is(err, capture.ErrNoTextSelected) {
		t.Fatalf("err = %v, want ErrNoTextSelected", err)
	}

	// The restore must run on a live context; the production adapter
	// cannot start its subprocess under a done one.
	if len(clip.RestoreCalls) != 1 {
		t.Fatalf("got %d restores, want 1", len(clip.RestoreCalls))
	}
	if ctxErr := clip.RestoreCtxErrs[0]; ctxErr != nil {
		t.Errorf("snapshot restored under a dead context: %v", ctxErr)
	}
}
