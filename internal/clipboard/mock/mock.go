// Package mock provides a test double for the clipboard.Adapter interface.
//
// Reads are scripted: set ReadTexts to the sequence of values successive
// ReadBestText calls should return (the last value repeats). Writes,
// snapshots, restores, and keystroke injections are recorded for assertion.
package mock

import (
	"context"
	"sync"

	"github.com/inkbound/redline/internal/clipboard"
)

// Adapter is a mock implementation of clipboard.Adapter.
// Safe for concurrent use.
type Adapter struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Content is the current clipboard text returned by Snapshot and, when
	// ReadTexts is empty, by ReadBestText.
	Content    string
	HasContent bool

	// ReadTexts scripts successive ReadBestText results. Each call consumes
	// one entry until a single entry remains, which then repeats.
	ReadTexts []string

	// RichText is returned by ReadRichAlternative when RichOK is true.
	RichText string
	RichOK   bool

	// CopyOK and PasteOK configure SimulateCopy/SimulatePaste per delivery.
	// A nil map means every delivery fails.
	CopyOK  map[clipboard.Delivery]bool
	PasteOK map[clipboard.Delivery]bool

	// WriteErr, when non-nil, is returned by WritePlainText.
	WriteErr error

	// --- Call records ---

	SnapshotCalls int
	RestoreCalls  []clipboard.Snapshot

	// RestoreCtxErrs records ctx.Err() at each Restore call, so tests can
	// assert cleanup runs on a live context after the request deadline.
	RestoreCtxErrs []error

	Writes     []string
	ReadCalls  int
	CopyCalls  []clipboard.Delivery
	PasteCalls []clipboard.Delivery
}

var _ clipboard.Adapter = (*Adapter)(nil)

func (a *Adapter) Snapshot(ctx context.Context) clipboard.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SnapshotCalls++
	return clipboard.Snapshot{Text: a.Content, HasText: a.HasContent}
}

func (a *Adapter) Restore(ctx context.Context, s clipboard.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RestoreCalls = append(a.RestoreCalls, s)
	a.RestoreCtxErrs = append(a.RestoreCtxErrs, ctx.Err())
	a.Content, a.HasContent = s.Text, s.HasText
}

func (a *Adapter) WritePlainText(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WriteErr != nil {
		return a.WriteErr
	}
	a.Writes = append(a.Writes, text)
	a.Content, a.HasContent = text, true
	return nil
}

func (a *Adapter) ReadBestText(ctx context.Context) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ReadCalls++
	if len(a.ReadTexts) > 0 {
		text := a.ReadTexts[0]
		if len(a.ReadTexts) > 1 {
			a.ReadTexts = a.ReadTexts[1:]
		}
		return text, true
	}
	return a.Content, a.HasContent
}

func (a *Adapter) ReadRichAlternative(ctx context.Context) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.RichText, a.RichOK
}

func (a *Adapter) SimulateCopy(ctx context.Context, d clipboard.Delivery) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CopyCalls = append(a.CopyCalls, d)
	return a.CopyOK[d]
}

func (a *Adapter) SimulatePaste(ctx context.Context, d clipboard.Delivery) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PasteCalls = append(a.PasteCalls, d)
	return a.PasteOK[d]
}
