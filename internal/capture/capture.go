// Package capture obtains the text to be corrected from the foreground
// application.
//
// Three strategies are tried as a strict ordered fallback:
//
//  1. Direct read — ask the focused element for its selection through the
//     introspection layer. Skipped when the element exposes no text or the
//     selection carries the object replacement glyph (the source renders
//     non-text content the correction engine cannot safely operate on).
//  2. Cursor-line extraction — with no selection, lift the line under the
//     cursor out of the full field contents. Blank lines are skipped.
//  3. Simulated copy — write a sentinel to the clipboard, inject a copy
//     chord through each available delivery mechanism, and poll until the
//     clipboard differs from the sentinel or the timeout elapses. Object
//     replacement glyphs in the copied text are recovered from the
//     clipboard's rich representation when one is offered.
//
// When every strategy fails, [Chain.Capture] returns [ErrNoTextSelected]
// and the pipeline performs no further action.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inkbound/redline/internal/clipboard"
	"github.com/inkbound/redline/internal/field"
	"github.com/inkbound/redline/internal/tokenguard"
)

// ErrNoTextSelected is returned when no strategy produced text. It is
// user-facing and never retried.
var ErrNoTextSelected = errors.New("no text selected")

// Source identifies which strategy produced a [Captured] value.
type Source int

const (
	// SourceAccessibility means the text came from introspection (direct
	// read or cursor-line extraction).
	SourceAccessibility Source = iota

	// SourceClipboard means the text came from the simulated-copy fallback.
	SourceClipboard
)

// LineContext is present when the captured text is a single line lifted out
// of a larger field. Start and End are byte offsets of the line within
// FullText, excluding the trailing newline.
type LineContext struct {
	FullText string
	Start    int
	End      int
}

// Captured is the output of one capture attempt. It is owned by the single
// correction request that produced it and never mutated.
type Captured struct {
	Text   string
	Source Source

	// Target is the focused element the text came from, when introspection
	// resolved one. Empty for clipboard captures of unknown origin.
	Target field.Target

	// Line is non-nil for cursor-line extractions.
	Line *LineContext

	// ClipboardSnapshot is non-nil when the simulated-copy fallback ran;
	// the caller must restore it once the request finishes, on every path.
	ClipboardSnapshot *clipboard.Snapshot
}

// Option configures a [Chain].
type Option func(*Chain)

// WithSettleDelay sets the pause after a simulated key chord before reading
// results, letting the chord release. Default: 50ms.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Chain) { c.settle = d }
}

// WithPollTimeout sets the hard deadline for the clipboard poll.
// Default: 1.2s.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Chain) { c.pollTimeout = d }
}

// WithPollIntervals sets the accelerated interval used for roughly the
// first 200ms of the clipboard poll and the slower interval used after.
// Defaults: 25ms and 100ms.
func WithPollIntervals(fast, slow time.Duration) Option {
	return func(c *Chain) {
		c.fastInterval = fast
		c.slowInterval = slow
	}
}

// Chain runs the capture strategies in order. Safe for concurrent use,
// though the correction pipeline only ever runs one capture at a time.
type Chain struct {
	fields field.Adapter
	clip   clipboard.Adapter

	settle       time.Duration
	pollTimeout  time.Duration
	fastInterval time.Duration
	slowInterval time.Duration
	fastWindow   time.Duration

	now      func() time.Time
	sentinel func() string
}

// NewChain creates a capture [Chain] over the given adapters.
func NewChain(fields field.Adapter, clip clipboard.Adapter, opts ...Option) *Chain {
	c := &Chain{
		fields:       fields,
		clip:         clip,
		settle:       50 * time.Millisecond,
		pollTimeout:  1200 * time.Millisecond,
		fastInterval: 25 * time.Millisecond,
		slowInterval: 100 * time.Millisecond,
		fastWindow:   200 * time.Millisecond,
		now:          time.Now,
		sentinel:     defaultSentinel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capture runs the strategy chain and returns the first result. The
// returned Captured carries a clipboard snapshot only when the
// simulated-copy fallback was reached; the caller owns its restoration.
func (c *Chain) Capture(ctx context.Context) (*Captured, error) {
	target, focused := c.fields.FocusedTarget(ctx)

	if focused {
		// Strategy 1: direct selection read.
		if sel, ok := c.fields.ReadSelection(ctx, target); ok {
			trimmed := strings.TrimSpace(sel)
			switch {
			case trimmed == "":
				// No selection; fall through to line extraction.
			case strings.ContainsRune(sel, tokenguard.ObjectReplacementChar):
				// Non-text content embedded in the selection; the
				// direct read "succeeded" but is unusable.
				slog.Debug("selection contains replacement glyph, trying next strategy")
			default:
				return &Captured{Text: sel, Source: SourceAccessibility, Target: target}, nil
			}
		}

		// Strategy 2: cursor-line extraction.
		if cap, ok := c.captureCursorLine(ctx, target); ok {
			return cap, nil
		}
	}

	// Strategy 3: simulated copy with sentinel poll.
	return c.captureViaClipboard(ctx)
}

// captureCursorLine lifts the line containing the cursor out of the field's
// full text. ok is false when the field exposes no text/cursor or the line
// is blank.
func (c *Chain) captureCursorLine(ctx context.Context, target field.Target) (*Captured, bool) {
	full, ok := c.fields.ReadFullText(ctx, target)
	if !ok || full == "" {
		return nil, false
	}
	cursor, ok := c.fields.ReadCursor(ctx, target)
	if !ok || cursor < 0 || cursor > len(full) {
		return nil, false
	}

	start := strings.LastIndexByte(full[:cursor], '\n') + 1
	end := strings.IndexByte(full[cursor:], '\n')
	if end < 0 {
		end = len(full)
	} else {
		end += cursor
	}

	line := full[start:end]
	if strings.TrimSpace(line) == "" {
		return nil, false
	}

	return &Captured{
		Text:   line,
		Source: SourceAccessibility,
		Target: target,
		Line:   &LineContext{FullText: full, Start: start, End: end},
	}, true
}

// captureViaClipboard snapshots the clipboard, writes a sentinel, injects a
// copy chord through each delivery mechanism in sequence, and polls until
// the clipboard holds something other than the sentinel. The poll interval
// is accelerated during the first fastWindow, then slows down.
func (c *Chain) captureViaClipboard(ctx context.Context) (*Captured, error) {
	snap := c.clip.Snapshot(ctx)
	sentinel := c.sentinel()

	if err := c.clip.WritePlainText(ctx, sentinel); err != nil {
		c.clip.Restore(context.WithoutCancel(ctx), snap)
		return nil, fmt.Errorf("capture: write sentinel: %w", err)
	}

	for _, d := range clipboard.Deliveries {
		if !c.clip.SimulateCopy(ctx, d) {
			continue
		}
		c.sleep(ctx, c.settle)

		if text, ok := c.pollClipboard(ctx, sentinel); ok {
			return &Captured{
				Text:              c.recoverGlyphs(ctx, text),
				Source:            SourceClipboard,
				ClipboardSnapshot: &snap,
			}, nil
		}
	}

	// Cleanup runs even when the request deadline already expired.
	c.clip.Restore(context.WithoutCancel(ctx), snap)
	return nil, ErrNoTextSelected
}

// recoverGlyphs swaps object replacement glyphs in copied text for their
// textual equivalents from the clipboard's rich representation, when one is
// offered. Glyphs with no richer equivalent stay in place.
func (c *Chain) recoverGlyphs(ctx context.Context, text string) string {
	if !strings.ContainsRune(text, tokenguard.ObjectReplacementChar) {
		return text
	}
	rich, ok := c.clip.ReadRichAlternative(ctx)
	if !ok {
		return text
	}
	return tokenguard.RecoverReplacementGlyphs(text, rich)
}

// pollClipboard waits for the clipboard content to differ from the
// sentinel, returning the first non-sentinel, non-empty trimmed value.
func (c *Chain) pollClipboard(ctx context.Context, sentinel string) (string, bool) {
	start := c.now()
	deadline := start.Add(c.pollTimeout)

	for {
		if text, ok := c.clip.ReadBestText(ctx); ok {
			trimmed := strings.TrimSpace(text)
			if trimmed != "" && text != sentinel {
				return trimmed, true
			}
		}

		now := c.now()
		if now.After(deadline) || ctx.Err() != nil {
			return "", false
		}

		interval := c.slowInterval
		if now.Sub(start) < c.fastWindow {
			interval = c.fastInterval
		}
		c.sleep(ctx, interval)
	}
}

// sleep blocks for d or until ctx is done, whichever comes first.
func (c *Chain) sleep(ctx context.Context, d time.Duration) {
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

// defaultSentinel returns a clipboard sentinel unlikely to collide with
// real content.
func defaultSentinel() string {
	return fmt.Sprintf("⁣redline-sentinel-%d⁣", time.Now().UnixNano())
}
