// Package mock provides a test double for the field.Adapter interface.
//
// Response fields configure what each method returns; optional hook
// functions override a method entirely for tests that need sequenced
// behaviour (e.g., a read-back that differs from the written value). All
// invocations are recorded and can be inspected after the test.
package mock

import (
	"context"
	"sync"

	"github.com/inkbound/redline/internal/field"
)

// ReplaceCall records one invocation of ReplaceSelection or SetText.
type ReplaceCall struct {
	Target field.Target
	Text   string
}

// Adapter is a mock implementation of field.Adapter. The zero value fails
// every read. Safe for concurrent use.
type Adapter struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Focused is returned by FocusedTarget when FocusedOK is true.
	Focused   field.Target
	FocusedOK bool

	// Selection is returned by ReadSelection when SelectionOK is true.
	Selection   string
	SelectionOK bool

	// FullText is returned by ReadFullText when FullTextOK is true.
	FullText   string
	FullTextOK bool

	// Cursor is returned by ReadCursor when CursorOK is true.
	Cursor   int
	CursorOK bool

	// ReplaceOK is returned by ReplaceSelection; SetTextOK by SetText;
	// ActivateOK by Activate.
	ReplaceOK  bool
	SetTextOK  bool
	ActivateOK bool

	// --- Optional hooks; when non-nil they take precedence ---

	FocusedTargetFunc func(ctx context.Context) (field.Target, bool)
	ReadSelectionFunc func(ctx context.Context, t field.Target) (string, bool)
	ReadFullTextFunc  func(ctx context.Context, t field.Target) (string, bool)
	ReplaceFunc       func(ctx context.Context, t field.Target, text string) bool
	SetTextFunc       func(ctx context.Context, t field.Target, text string) bool

	// --- Call records (read after test) ---

	FocusedTargetCalls   int
	ReadSelectionCalls   int
	ReadFullTextCalls    int
	ReadCursorCalls      int
	ReplaceCalls         []ReplaceCall
	SetTextCalls         []ReplaceCall
	SetCursorCalls       []int
	ActivateCalls        []field.Target
}

var _ field.Adapter = (*Adapter)(nil)

func (a *Adapter) FocusedTarget(ctx context.Context) (field.Target, bool) {
	a.mu.Lock()
	a.FocusedTargetCalls++
	fn := a.FocusedTargetFunc
	t, ok := a.Focused, a.FocusedOK
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return t, ok
}

func (a *Adapter) ReadSelection(ctx context.Context, t field.Target) (string, bool) {
	a.mu.Lock()
	a.ReadSelectionCalls++
	fn := a.ReadSelectionFunc
	s, ok := a.Selection, a.SelectionOK
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, t)
	}
	return s, ok
}

func (a *Adapter) ReadFullText(ctx context.Context, t field.Target) (string, bool) {
	a.mu.Lock()
	a.ReadFullTextCalls++
	fn := a.ReadFullTextFunc
	s, ok := a.FullText, a.FullTextOK
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, t)
	}
	return s, ok
}

func (a *Adapter) ReadCursor(ctx context.Context, t field.Target) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ReadCursorCalls++
	return a.Cursor, a.CursorOK
}

func (a *Adapter) ReplaceSelection(ctx context.Context, t field.Target, text string) bool {
	a.mu.Lock()
	a.ReplaceCalls = append(a.ReplaceCalls, ReplaceCall{Target: t, Text: text})
	fn := a.ReplaceFunc
	ok := a.ReplaceOK
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, t, text)
	}
	return ok
}

func (a *Adapter) SetText(ctx context.Context, t field.Target, text string) bool {
	a.mu.Lock()
	a.SetTextCalls = append(a.SetTextCalls, ReplaceCall{Target: t, Text: text})
	fn := a.SetTextFunc
	ok := a.SetTextOK
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, t, text)
	}
	return ok
}

func (a *Adapter) SetCursor(ctx context.Context, t field.Target, pos int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SetCursorCalls = append(a.SetCursorCalls, pos)
}

func (a *Adapter) Activate(ctx context.Context, t field.Target) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ActivateCalls = append(a.ActivateCalls, t)
	return a.ActivateOK
}
