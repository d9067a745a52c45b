// Package clipboard defines the adapter boundary for the system clipboard
// and simulated copy/paste keystrokes.
//
// The clipboard is a shared mutable resource: every simulated copy or paste
// the pipeline performs is bracketed by [Adapter.Snapshot] and
// [Adapter.Restore] so the user's clipboard content survives the operation.
package clipboard

import "context"

// Delivery selects the mechanism used to inject a copy or paste key chord.
// Two independent mechanisms exist because neither works in every target
// application; callers try them in order.
type Delivery int

const (
	// DeliveryVirtualKeyboard injects through a virtual keyboard device
	// (Wayland: wtype).
	DeliveryVirtualKeyboard Delivery = iota

	// DeliveryXTest injects through the XTEST extension (X11: xdotool).
	DeliveryXTest
)

// String returns a short name for d.
func (d Delivery) String() string {
	switch d {
	case DeliveryVirtualKeyboard:
		return "virtual-keyboard"
	case DeliveryXTest:
		return "xtest"
	}
	return "unknown"
}

// Deliveries is the default try-order for simulated keystrokes.
var Deliveries = []Delivery{DeliveryVirtualKeyboard, DeliveryXTest}

// Snapshot captures clipboard content for later restoration.
type Snapshot struct {
	Text    string
	HasText bool
}

// Adapter abstracts the system clipboard and keystroke injection.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Snapshot captures the current clipboard content.
	Snapshot(ctx context.Context) Snapshot

	// Restore writes a previously captured snapshot back. Restoring an
	// empty snapshot clears the clipboard.
	Restore(ctx context.Context, s Snapshot)

	// WritePlainText replaces the clipboard content with text.
	WritePlainText(ctx context.Context, text string) error

	// ReadBestText returns the best plain-text representation of the
	// clipboard. ok is false when the clipboard holds no text.
	ReadBestText(ctx context.Context) (text string, ok bool)

	// ReadRichAlternative returns a richer textual representation of the
	// clipboard content when one exists (e.g., HTML source alongside the
	// plain text).
	ReadRichAlternative(ctx context.Context) (text string, ok bool)

	// SimulateCopy injects the platform copy chord via d. A true return
	// means the injection was delivered, not that the target acted on it.
	SimulateCopy(ctx context.Context, d Delivery) bool

	// SimulatePaste injects the platform paste chord via d.
	SimulatePaste(ctx context.Context, d Delivery) bool
}
