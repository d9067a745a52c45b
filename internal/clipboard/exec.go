package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ExecAdapter implements [Adapter] by shelling out to the standard Linux
// clipboard and input tools: wl-copy/wl-paste on Wayland with xclip as the
// X11 fallback, and wtype/xdotool for keystroke injection.
//
// Tool availability is probed once at construction; missing tools make the
// corresponding operations fail cleanly rather than erroring at call time.
type ExecAdapter struct {
	wayland    bool
	hasWtype   bool
	hasXdotool bool
}

var _ Adapter = (*ExecAdapter)(nil)

// NewExecAdapter probes the environment and returns an [ExecAdapter].
// Wayland tools are preferred when WAYLAND_DISPLAY is set and wl-copy is on
// PATH.
func NewExecAdapter() *ExecAdapter {
	a := &ExecAdapter{}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wl-copy"); err == nil {
			a.wayland = true
		}
	}
	if _, err := exec.LookPath("wtype"); err == nil {
		a.hasWtype = true
	}
	if _, err := exec.LookPath("xdotool"); err == nil {
		a.hasXdotool = true
	}
	return a
}

// Snapshot implements [Adapter].
func (a *ExecAdapter) Snapshot(ctx context.Context) Snapshot {
	text, ok := a.ReadBestText(ctx)
	return Snapshot{Text: text, HasText: ok}
}

// Restore implements [Adapter].
func (a *ExecAdapter) Restore(ctx context.Context, s Snapshot) {
	if !s.HasText {
		// Clearing beats leaving the pipeline's sentinel or corrected
		// text behind.
		if err := a.WritePlainText(ctx, ""); err != nil {
			slog.Debug("clipboard clear failed", "err", err)
		}
		return
	}
	if err := a.WritePlainText(ctx, s.Text); err != nil {
		slog.Warn("clipboard restore failed", "err", err)
	}
}

// WritePlainText implements [Adapter].
func (a *ExecAdapter) WritePlainText(ctx context.Context, text string) error {
	var cmd *exec.Cmd
	if a.wayland {
		cmd = exec.CommandContext(ctx, "wl-copy")
	} else {
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-in")
	}
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}

// ReadBestText implements [Adapter].
func (a *ExecAdapter) ReadBestText(ctx context.Context) (string, bool) {
	return a.read(ctx, "")
}

// ReadRichAlternative implements [Adapter]. On Linux the richer clipboard
// representation is the text/html target when an application offers one.
func (a *ExecAdapter) ReadRichAlternative(ctx context.Context) (string, bool) {
	return a.read(ctx, "text/html")
}

func (a *ExecAdapter) read(ctx context.Context, mime string) (string, bool) {
	var cmd *exec.Cmd
	switch {
	case a.wayland && mime != "":
		cmd = exec.CommandContext(ctx, "wl-paste", "--no-newline", "--type", mime)
	case a.wayland:
		cmd = exec.CommandContext(ctx, "wl-paste", "--no-newline")
	case mime != "":
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-target", mime, "-out")
	default:
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-out")
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", false
	}
	return out.String(), true
}

// SimulateCopy implements [Adapter].
func (a *ExecAdapter) SimulateCopy(ctx context.Context, d Delivery) bool {
	return a.chord(ctx, d, "c")
}

// SimulatePaste implements [Adapter].
func (a *ExecAdapter) SimulatePaste(ctx context.Context, d Delivery) bool {
	return a.chord(ctx, d, "v")
}

func (a *ExecAdapter) chord(ctx context.Context, d Delivery, key string) bool {
	var cmd *exec.Cmd
	switch d {
	case DeliveryVirtualKeyboard:
		if !a.hasWtype {
			return false
		}
		cmd = exec.CommandContext(ctx, "wtype", "-M", "ctrl", key, "-m", "ctrl")
	case DeliveryXTest:
		if !a.hasXdotool {
			return false
		}
		cmd = exec.CommandContext(ctx, "xdotool", "key", "--clearmodifiers", "ctrl+"+key)
	default:
		return false
	}
	if err := cmd.Run(); err != nil {
		slog.Debug("keystroke injection failed", "delivery", d.String(), "err", err)
		return false
	}
	return true
}
