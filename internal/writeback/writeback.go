// Package writeback inserts corrected text into the field it was captured
// from and verifies the insertion actually took effect.
//
// Direct introspection-based replacement is attempted first and verified by
// reading the field back — some toolkits accept the replacement call and
// silently ignore it. On verification failure the writer falls back to a
// clipboard paste: snapshot, write, activate the target, inject a paste
// chord through each delivery mechanism, then restore the snapshot. The
// snapshot is restored on every path, including failure.
package writeback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/inkbound/redline/internal/capture"
	"github.com/inkbound/redline/internal/clipboard"
	"github.com/inkbound/redline/internal/field"
)

// ErrPasteFailed means neither paste delivery mechanism worked. Terminal
// for the attempt; the caller must notify the user.
var ErrPasteFailed = errors.New("paste failed")

// Result reports how the write-back landed.
type Result int

const (
	// Applied means direct replacement succeeded and verified.
	Applied Result = iota

	// AppliedViaClipboard means verification failed and the clipboard
	// paste fallback succeeded.
	AppliedViaClipboard

	// Failed means the text could not be written at all.
	Failed
)

// String returns a short name for r.
func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case AppliedViaClipboard:
		return "applied-via-clipboard"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Request is one write-back operation.
type Request struct {
	// Target is the field to write into.
	Target field.Target

	// Line is non-nil for line-scoped corrections: only that line of the
	// field is replaced, preserving the rest of the content and the
	// line's trailing-newline shape.
	Line *capture.LineContext

	// Text is the corrected text to insert.
	Text string
}

// Option configures a [Writer].
type Option func(*Writer)

// WithSettleDelay sets the pause between writing and reading back for
// verification. Default: 80ms.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Writer) { w.settle = d }
}

// WithRestoreDelay sets how long the corrected text stays on the clipboard
// after a paste before the snapshot is restored, giving the target time to
// consume it. Default: 300ms.
func WithRestoreDelay(d time.Duration) Option {
	return func(w *Writer) { w.restoreDelay = d }
}

// Writer applies corrected text to target fields. Safe for concurrent use,
// though the pipeline serializes all field mutations anyway.
type Writer struct {
	fields field.Adapter
	clip   clipboard.Adapter

	settle       time.Duration
	restoreDelay time.Duration
}

// NewWriter creates a [Writer] over the given adapters.
func NewWriter(fields field.Adapter, clip clipboard.Adapter, opts ...Option) *Writer {
	w := &Writer{
		fields:       fields,
		clip:         clip,
		settle:       80 * time.Millisecond,
		restoreDelay: 300 * time.Millisecond,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Apply writes req.Text into req.Target, verifying the write and falling
// back to a clipboard paste when the direct path is silently ignored.
func (w *Writer) Apply(ctx context.Context, req Request) (Result, error) {
	if w.applyDirect(ctx, req) {
		return Applied, nil
	}

	slog.Debug("direct write-back not verified, falling back to paste",
		"target", string(req.Target))
	return w.applyViaClipboard(ctx, req)
}

// applyDirect attempts introspection-based replacement and read-back
// verification. Returns false when the write must be retried via the
// clipboard.
func (w *Writer) applyDirect(ctx context.Context, req Request) bool {
	if req.Line != nil {
		return w.applyLine(ctx, req)
	}

	if !w.fields.ReplaceSelection(ctx, req.Target, req.Text) {
		return false
	}
	w.sleep(ctx, w.settle)

	sel, ok := w.fields.ReadSelection(ctx, req.Target)
	if !ok {
		// The field stopped exposing a selection; treat as unverified.
		return false
	}
	// Two valid success signals: the selection now holds the corrected
	// text, or the field legitimately cleared its selection after a
	// successful replacement.
	return sel == req.Text || sel == ""
}

// applyLine rebuilds the full field value with only the captured line
// replaced, then verifies the whole value.
func (w *Writer) applyLine(ctx context.Context, req Request) bool {
	line := req.Line
	newFull := line.FullText[:line.Start] + req.Text + line.FullText[line.End:]

	if !w.fields.SetText(ctx, req.Target, newFull) {
		return false
	}
	w.sleep(ctx, w.settle)

	full, ok := w.fields.ReadFullText(ctx, req.Target)
	if !ok || full != newFull {
		return false
	}
	w.fields.SetCursor(ctx, req.Target, line.Start+len(req.Text))
	return true
}

// applyViaClipboard pastes req.Text through simulated keystrokes. The
// clipboard snapshot taken here is restored on every return path.
func (w *Writer) applyViaClipboard(ctx context.Context, req Request) (Result, error) {
	prevFocus, hadFocus := w.fields.FocusedTarget(ctx)

	// The snapshot goes back on every return path, including after the
	// request deadline has expired; restores run on a context detached
	// from cancellation.
	snap := w.clip.Snapshot(ctx)
	restored := false
	defer func() {
		if !restored {
			w.clip.Restore(context.WithoutCancel(ctx), snap)
		}
	}()

	if err := w.clip.WritePlainText(ctx, req.Text); err != nil {
		return Failed, errors.Join(ErrPasteFailed, err)
	}

	w.fields.Activate(ctx, req.Target)

	for _, d := range clipboard.Deliveries {
		if !w.clip.SimulatePaste(ctx, d) {
			continue
		}

		// Give the target time to consume the clipboard before the
		// snapshot goes back.
		w.sleep(ctx, w.restoreDelay)
		w.clip.Restore(context.WithoutCancel(ctx), snap)
		restored = true

		w.positionCursor(ctx, req)
		w.restoreFocus(ctx, prevFocus, hadFocus)
		return AppliedViaClipboard, nil
	}

	return Failed, ErrPasteFailed
}

// positionCursor best-effort moves the cursor to the end of the inserted
// text.
func (w *Writer) positionCursor(ctx context.Context, req Request) {
	if req.Line != nil {
		w.fields.SetCursor(ctx, req.Target, req.Line.Start+len(req.Text))
		return
	}
	if full, ok := w.fields.ReadFullText(ctx, req.Target); ok {
		if cur, ok := w.fields.ReadCursor(ctx, req.Target); ok && cur <= len(full) {
			return // cursor already valid after paste
		}
		w.fields.SetCursor(ctx, req.Target, len(full))
	}
}

// restoreFocus re-activates whatever held focus before the paste when the
// operation stole it.
func (w *Writer) restoreFocus(ctx context.Context, prev field.Target, hadFocus bool) {
	if !hadFocus {
		return
	}
	if now, ok := w.fields.FocusedTarget(ctx); ok && now != prev {
		w.fields.Activate(ctx, prev)
	}
}

func (w *Writer) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
