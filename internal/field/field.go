// Package field defines the adapter boundary for reading and mutating the
// focused text field of the foreground application.
//
// The host platform's introspection layer is unreliable by nature: fields
// may expose no text, silently ignore writes, or invalidate references
// between calls. Adapter methods therefore report plain success/failure
// instead of structured errors — a failed read is an expected outcome, not
// an exceptional one. Callers must re-resolve the focused target rather than
// hold references across user interactions.
package field

import "context"

// Target identifies a text field within the host introspection layer. The
// value is adapter-specific and opaque to callers; it is only valid until
// the user's focus or the application's widget tree changes.
type Target string

// Adapter reads and mutates text fields through the host platform's
// introspection layer. Implementations must be safe for concurrent use.
type Adapter interface {
	// FocusedTarget resolves the currently focused text-bearing element.
	// ok is false when nothing is focused or the focused element exposes
	// no text interface.
	FocusedTarget(ctx context.Context) (t Target, ok bool)

	// ReadSelection returns the selected text of t. ok is false when t
	// exposes no selection; an empty selection returns ("", true).
	ReadSelection(ctx context.Context, t Target) (text string, ok bool)

	// ReadFullText returns the entire text content of t.
	ReadFullText(ctx context.Context, t Target) (text string, ok bool)

	// ReadCursor returns the cursor position of t as a byte offset into
	// the text returned by ReadFullText.
	ReadCursor(ctx context.Context, t Target) (pos int, ok bool)

	// ReplaceSelection replaces the current selection of t with text.
	// A true return only means the call was accepted; some toolkits accept
	// the call and ignore it, so callers must verify by reading back.
	ReplaceSelection(ctx context.Context, t Target, text string) bool

	// SetText replaces the entire text content of t.
	SetText(ctx context.Context, t Target, text string) bool

	// SetCursor moves the cursor of t to the byte offset pos. Best-effort.
	SetCursor(ctx context.Context, t Target, pos int)

	// Activate gives t's window and element the input focus. Best-effort.
	Activate(ctx context.Context, t Target) bool
}
