package correct_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkbound/redline/internal/capture"
	"github.com/inkbound/redline/internal/clipboard"
	clipmock "github.com/inkbound/redline/internal/clipboard/mock"
	"github.com/inkbound/redline/internal/correct"
	"github.com/inkbound/redline/internal/field"
	fieldmock "github.com/inkbound/redline/internal/field/mock"
	"github.com/inkbound/redline/internal/history"
	"github.com/inkbound/redline/internal/tokenguard"
	"github.com/inkbound/redline/internal/writeback"
	"github.com/inkbound/redline/pkg/provider/engine"
	enginemock "github.com/inkbound/redline/pkg/provider/engine/mock"
)

const target = field.Target("app|/org/a11y/atspi/accessible/7")

// selectionFields returns a field mock where the selection reads as text
// until a replacement happens, then reads as the replaced value. That makes
// both capture and write-back verification behave like a cooperative field.
func selectionFields(text string) *fieldmock.Adapter {
	f := &fieldmock.Adapter{
		Focused:   target,
		FocusedOK: true,
		ReplaceOK: true,
	}
	f.ReadSelectionFunc = func(ctx context.Context, tg field.Target) (string, bool) {
		if n := len(f.ReplaceCalls); n > 0 {
			return f.ReplaceCalls[n-1].Text, true
		}
		return text, true
	}
	return f
}

func newOrchestrator(f *fieldmock.Adapter, c *clipmock.Adapter, eng *enginemock.Provider,
	opts ...correct.Option,
) *correct.Orchestrator {
	chain := capture.NewChain(f, c,
		capture.WithSettleDelay(time.Millisecond),
		capture.WithPollTimeout(20*time.Millisecond),
		capture.WithPollIntervals(time.Millisecond, time.Millisecond),
	)
	writer := writeback.NewWriter(f, c,
		writeback.WithSettleDelay(time.Millisecond),
		writeback.WithRestoreDelay(time.Millisecond),
	)
	return correct.New(chain, tokenguard.New(), eng, writer, c, "Fix spelling and grammar.", opts...)
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat https://example.test/x")
	clip := &clipmock.Adapter{}
	eng := &enginemock.Provider{
		Responses:    []string{"the cat ⟦0⟧"},
		ProviderName: "anyllm/ollama",
		ModelName:    "llama3.2",
	}
	store := history.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl"))

	o := newOrchestrator(fields, clip, eng, correct.WithHistory(store))
	outcome, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The engine must never see the URL, only its placeholder.
	if len(eng.Calls) != 1 {
		t.Fatalf("engine calls = %d, want 1", len(eng.Calls))
	}
	if strings.Contains(eng.Calls[0].Text, "https://") {
		t.Errorf("engine saw unprotected URL: %q", eng.Calls[0].Text)
	}

	if outcome.Corrected != "the cat https://example.test/x" {
		t.Errorf("Corrected = %q", outcome.Corrected)
	}
	if outcome.Result != writeback.Applied {
		t.Errorf("Result = %v, want Applied", outcome.Result)
	}
	if outcome.Provider != "anyllm/ollama" || outcome.Model != "llama3.2" {
		t.Errorf("provider/model = %q/%q", outcome.Provider, outcome.Model)
	}
	if o.State() != correct.StateSucceeded {
		t.Errorf("state = %v, want succeeded", o.State())
	}

	entries, err := store.Recent(context.Background(), 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent: %v, %d entries", err, len(entries))
	}
	if !entries[0].Succeeded || entries[0].Corrected != outcome.Corrected {
		t.Errorf("history entry = %+v", entries[0])
	}
}

func TestRun_RetriesOnceOnFallback(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat")
	clip := &clipmock.Adapter{}
	primary := &enginemock.Provider{
		Errs:         []error{engine.ErrTimedOut},
		ProviderName: "openai",
	}
	fallback := &enginemock.Provider{
		Responses:    []string{"the cat"},
		ProviderName: "anyllm/ollama",
		ModelName:    "llama3.2",
	}

	o := newOrchestrator(fields, clip, primary, correct.WithFallback(fallback))
	outcome, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(primary.Calls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.Calls))
	}
	if len(fallback.Calls) != 1 {
		t.Errorf("fallback calls = %d, want exactly 1 retry", len(fallback.Calls))
	}
	if outcome.Provider != "anyllm/ollama" {
		t.Errorf("Provider = %q, want the fallback", outcome.Provider)
	}
}

func TestRun_NonRetriableSkipsFallback(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat")
	clip := &clipmock.Adapter{}
	primary := &enginemock.Provider{
		Errs:         []error{engine.ErrAuthenticationRequired},
		ProviderName: "openai",
	}
	fallback := &enginemock.Provider{Responses: []string{"the cat"}}
	store := history.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl"))

	o := newOrchestrator(fields, clip, primary,
		correct.WithFallback(fallback),
		correct.WithHistory(store),
	)
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("Run: err = nil, want auth error")
	}

	if len(fallback.Calls) != 0 {
		t.Errorf("fallback calls = %d, want 0 for a non-retriable failure", len(fallback.Calls))
	}
	if len(fields.ReplaceCalls) != 0 {
		t.Error("field modified despite engine failure")
	}
	if o.State() != correct.StateFailed {
		t.Errorf("state = %v, want failed", o.State())
	}

	entries, err := store.Recent(context.Background(), 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent: %v, %d entries", err, len(entries))
	}
	if entries[0].Succeeded {
		t.Error("failure recorded as succeeded")
	}
}

func TestRun_CaptureFailureRecordsHistory(t *testing.T) {
	t.Parallel()

	// No focused element and every copy delivery fails, so nothing is
	// captured and the engine is never invoked.
	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{}
	eng := &enginemock.Provider{ProviderName: "openai", ModelName: "gpt-4o-mini"}
	store := history.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl"))

	o := newOrchestrator(fields, clip, eng, correct.WithHistory(store))
	if _, err := o.Run(context.Background()); !errors.Is(err, capture.ErrNoTextSelected) {
		t.Fatalf("Run: err = %v, want ErrNoTextSelected", err)
	}
	if len(eng.Calls) != 0 {
		t.Errorf("engine calls = %d, want 0", len(eng.Calls))
	}

	entries, err := store.Recent(context.Background(), 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent: %v, %d entries", err, len(entries))
	}
	if entries[0].Succeeded || entries[0].Original != "" || entries[0].Provider != "openai" {
		t.Errorf("history entry = %+v", entries[0])
	}
}

func TestRun_RejectsConcurrentTrigger(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat")
	clip := &clipmock.Adapter{}

	release := make(chan struct{})
	started := make(chan struct{})
	var once bool
	eng := &enginemock.Provider{
		Responses: []string{"the cat"},
		DelayFunc: func(ctx context.Context) {
			if !once {
				once = true
				close(started)
				<-release
			}
		},
	}

	o := newOrchestrator(fields, clip, eng)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()

	<-started
	if _, err := o.Run(context.Background()); !errors.Is(err, correct.ErrAlreadyProcessing) {
		t.Errorf("second Run: err = %v, want ErrAlreadyProcessing", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}

func TestRun_RestoresClipboardSnapshotOnFailure(t *testing.T) {
	t.Parallel()

	// No focused element, so capture falls through to the simulated copy.
	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		Content:    "user data",
		HasContent: true,
		CopyOK:     map[clipboard.Delivery]bool{clipboard.DeliveryVirtualKeyboard: true},
		ReadTexts:  []string{"copied text"},
	}
	eng := &enginemock.Provider{
		Errs: []error{engine.ErrEngineNotFound},
	}

	o := newOrchestrator(fields, clip, eng)
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("Run: err = nil, want engine error")
	}

	restored := false
	for _, s := range clip.RestoreCalls {
		if s.Text == "user data" && s.HasText {
			restored = true
		}
	}
	if !restored {
		t.Errorf("RestoreCalls = %+v, want the capture snapshot restored", clip.RestoreCalls)
	}
}

func TestRun_RestoreOutlivesRequestDeadline(t *testing.T) {
	t.Parallel()

	// Capture goes through the simulated-copy fallback so a snapshot is
	// taken, then the engine blocks until the request deadline expires.
	// The deferred restore must still run, on a context that is alive;
	// the production adapter refuses to start its subprocess under a
	// done context.
	fields := &fieldmock.Adapter{}
	clip := &clipmock.Adapter{
		Content:    "user data",
		HasContent: true,
		CopyOK:     map[clipboard.Delivery]bool{clipboard.DeliveryVirtualKeyboard: true},
		ReadTexts:  []string{"copied text"},
	}
	eng := &enginemock.Provider{
		Errs:      []error{engine.ErrTimedOut},
		DelayFunc: func(ctx context.Context) { <-ctx.Done() },
	}

	o := newOrchestrator(fields, clip, eng)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := o.Run(ctx); err == nil {
		t.Fatal("Run: err = nil, want an engine error")
	}
	if ctx.Err() == nil {
		t.Fatal("request context still live; the engine did not consume the deadline")
	}

	restored := false
	for i, s := range clip.RestoreCalls {
		if s.Text != "user data" || !s.HasText {
			continue
		}
		restored = true
		if ctxErr := clip.RestoreCtxErrs[i]; ctxErr != nil {
			t.Errorf("snapshot restored under a dead context: %v", ctxErr)
		}
	}
	if !restored {
		t.Errorf("RestoreCalls = %+v, want the capture snapshot restored", clip.RestoreCalls)
	}
}

func TestRun_StreamingPreview(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat")
	clip := &clipmock.Adapter{}
	eng := &enginemock.Provider{
		Responses: []string{"the cat"},
		Chunks:    []string{"the", "the cat"},
	}

	var previews []string
	o := newOrchestrator(fields, clip, eng,
		correct.WithStreamingPreview(func(acc string) { previews = append(previews, acc) }),
	)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(eng.Calls) != 1 || !eng.Calls[0].Streaming {
		t.Fatalf("Calls = %+v, want one streaming call", eng.Calls)
	}
	if len(previews) != 2 || previews[1] != "the cat" {
		t.Errorf("previews = %v", previews)
	}
}

func TestUndo(t *testing.T) {
	t.Parallel()

	fields := selectionFields("teh cat")
	clip := &clipmock.Adapter{}
	eng := &enginemock.Provider{Responses: []string{"the cat"}}

	o := newOrchestrator(fields, clip, eng)
	ctx := context.Background()

	if _, err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := o.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	last := fields.ReplaceCalls[len(fields.ReplaceCalls)-1]
	if last.Text != "teh cat" {
		t.Errorf("undo wrote %q, want the original text", last.Text)
	}

	// A second undo has nothing left to revert.
	if err := o.Undo(ctx); !errors.Is(err, correct.ErrNothingToUndo) {
		t.Errorf("second Undo: err = %v, want ErrNothingToUndo", err)
	}
}
