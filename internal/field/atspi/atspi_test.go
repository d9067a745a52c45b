//go:build linux

package atspi

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/inkbound/redline/internal/field"
)

func TestTargetRoundTrip(t *testing.T) {
	t.Parallel()

	tgt := encodeTarget(":1.42", dbus.ObjectPath("/org/a11y/atspi/accessible/2000001"))
	dest, path, ok := decodeTarget(tgt)
	if !ok {
		t.Fatal("decodeTarget failed")
	}
	if dest != ":1.42" || path != "/org/a11y/atspi/accessible/2000001" {
		t.Errorf("got %q %q", dest, path)
	}
}

func TestDecodeTarget_Malformed(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "no-separator", "|/path", ":1.42|"} {
		if _, _, ok := decodeTarget(field.Target(bad)); ok {
			t.Errorf("decodeTarget(%q) accepted malformed target", bad)
		}
	}
}

func TestOffsetConversion(t *testing.T) {
	t.Parallel()

	// "héllo" is 6 bytes, 5 characters; é spans bytes [1,3).
	s := "héllo"

	cases := []struct {
		runeOff, byteOff int
	}{
		{0, 0},
		{1, 1},
		{2, 3},
		{5, 6},
	}
	for _, c := range cases {
		if got := byteOffset(s, c.runeOff); got != c.byteOff {
			t.Errorf("byteOffset(%d) = %d, want %d", c.runeOff, got, c.byteOff)
		}
		if got := runeOffset(s, c.byteOff); got != c.runeOff {
			t.Errorf("runeOffset(%d) = %d, want %d", c.byteOff, got, c.runeOff)
		}
	}

	// Out-of-range offsets clamp.
	if got := byteOffset(s, 99); got != len(s) {
		t.Errorf("byteOffset(99) = %d, want %d", got, len(s))
	}
	if got := runeOffset(s, 99); got != 5 {
		t.Errorf("runeOffset(99) = %d, want 5", got)
	}
	if got := byteOffset(s, -1); got != 0 {
		t.Errorf("byteOffset(-1) = %d, want 0", got)
	}
}

func TestParseStateChanged(t *testing.T) {
	t.Parallel()

	detail, gained, ok := parseStateChanged([]any{"focused", int32(1), int32(0)})
	if !ok || detail != "focused" || !gained {
		t.Errorf("got detail=%q gained=%v ok=%v", detail, gained, ok)
	}

	_, gained, ok = parseStateChanged([]any{"focused", int32(0), int32(0)})
	if !ok || gained {
		t.Errorf("focus loss parsed as gain")
	}

	if _, _, ok := parseStateChanged([]any{int32(1)}); ok {
		t.Error("malformed body accepted")
	}
}
