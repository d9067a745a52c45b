//go:build linux

// Package atspi implements the field adapter on top of the AT-SPI2
// accessibility bus, which exposes the text widgets of GTK, Qt, and
// Electron applications over D-Bus.
//
// AT-SPI addresses text by character offset while the rest of the daemon
// works in byte offsets; the adapter converts at the boundary. Focus is
// tracked by subscribing to object:state-changed:focused events rather
// than walking the desktop tree on every poll.
package atspi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"

	"github.com/inkbound/redline/internal/field"
)

// AT-SPI D-Bus constants
const (
	busService    = "org.a11y.Bus"
	busPath       = "/org/a11y/bus"
	busInterface  = "org.a11y.Bus"
	registryDest  = "org.a11y.atspi.Registry"
	registryPath  = "/org/a11y/atspi/registry"
	registryIface = "org.a11y.atspi.Registry"

	textIface      = "org.a11y.atspi.Text"
	editableIface  = "org.a11y.atspi.EditableText"
	componentIface = "org.a11y.atspi.Component"
	eventIface     = "org.a11y.atspi.Event.Object"

	propsIface = "org.freedesktop.DBus.Properties"

	focusedEvent = "object:state-changed:focused"
)

// Adapter implements [field.Adapter] over the AT-SPI2 accessibility bus.
type Adapter struct {
	bus *dbus.Conn

	mu          sync.RWMutex
	focusedDest string
	focusedPath dbus.ObjectPath

	signals chan *dbus.Signal
}

var _ field.Adapter = (*Adapter)(nil)

// Connect discovers the accessibility bus through the session bus, opens a
// private connection to it, and subscribes to focus events. The caller owns
// the returned adapter and must Close it.
func Connect(ctx context.Context) (*Adapter, error) {
	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("atspi: connect session bus: %w", err)
	}

	// The accessibility bus runs separately from the session bus; its
	// address is published by org.a11y.Bus.
	var addr string
	obj := session.Object(busService, busPath)
	if err := obj.CallWithContext(ctx, busInterface+".GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("atspi: resolve accessibility bus address: %w", err)
	}

	bus, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("atspi: connect accessibility bus at %q: %w", addr, err)
	}

	a := &Adapter{
		bus:     bus,
		signals: make(chan *dbus.Signal, 64),
	}
	if err := a.subscribeFocus(ctx); err != nil {
		bus.Close()
		return nil, err
	}

	bus.Signal(a.signals)
	go a.watch()
	return a, nil
}

// subscribeFocus registers interest in focus state changes both with the bus
// daemon (match rule) and the AT-SPI registry (event routing).
func (a *Adapter) subscribeFocus(ctx context.Context) error {
	if err := a.bus.AddMatchSignalContext(ctx,
		dbus.WithMatchInterface(eventIface),
		dbus.WithMatchMember("StateChanged"),
	); err != nil {
		return fmt.Errorf("atspi: add focus match rule: %w", err)
	}

	reg := a.bus.Object(registryDest, registryPath)
	if err := reg.CallWithContext(ctx, registryIface+".RegisterEvent", 0, focusedEvent).Err; err != nil {
		return fmt.Errorf("atspi: register focus event: %w", err)
	}
	return nil
}

// watch consumes focus signals until the bus connection closes.
func (a *Adapter) watch() {
	for sig := range a.signals {
		detail, gained, ok := parseStateChanged(sig.Body)
		if !ok || detail != "focused" {
			continue
		}

		a.mu.Lock()
		if gained {
			a.focusedDest = sig.Sender
			a.focusedPath = sig.Path
		} else if a.focusedDest == sig.Sender && a.focusedPath == sig.Path {
			a.focusedDest = ""
			a.focusedPath = ""
		}
		a.mu.Unlock()
	}
}

// parseStateChanged extracts the state name and gained flag from an AT-SPI
// StateChanged event body: (detail string, detail1 int32, detail2 int32, ...).
func parseStateChanged(body []any) (detail string, gained, ok bool) {
	if len(body) < 2 {
		return "", false, false
	}
	detail, ok = body[0].(string)
	if !ok {
		return "", false, false
	}
	d1, ok := body[1].(int32)
	if !ok {
		return "", false, false
	}
	return detail, d1 != 0, true
}

// Close disconnects from the accessibility bus. The shared session bus
// connection is left open.
func (a *Adapter) Close() error {
	return a.bus.Close()
}

// Ping verifies the accessibility bus connection is still serving requests.
func (a *Adapter) Ping(ctx context.Context) error {
	reg := a.bus.Object(registryDest, registryPath)
	if err := reg.CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Err; err != nil {
		return fmt.Errorf("atspi: ping registry: %w", err)
	}
	return nil
}

// FocusedTarget implements [field.Adapter]. The last element that reported
// focus gain is probed for the Text interface; widgets without text (buttons,
// menus) are not targets.
func (a *Adapter) FocusedTarget(ctx context.Context) (field.Target, bool) {
	a.mu.RLock()
	dest, path := a.focusedDest, a.focusedPath
	a.mu.RUnlock()
	if dest == "" {
		return "", false
	}

	t := encodeTarget(dest, path)
	obj, ok := a.object(t)
	if !ok {
		return "", false
	}
	var count int32
	if err := a.prop(ctx, obj, textIface, "CharacterCount", &count); err != nil {
		return "", false
	}
	return t, true
}

// ReadSelection implements [field.Adapter].
func (a *Adapter) ReadSelection(ctx context.Context, t field.Target) (string, bool) {
	obj, ok := a.object(t)
	if !ok {
		return "", false
	}

	var n int32
	if err := a.prop(ctx, obj, textIface, "NSelections", &n); err != nil {
		return "", false
	}
	if n == 0 {
		return "", true
	}

	var start, end int32
	if err := obj.CallWithContext(ctx, textIface+".GetSelection", 0, int32(0)).Store(&start, &end); err != nil {
		return "", false
	}
	var text string
	if err := obj.CallWithContext(ctx, textIface+".GetText", 0, start, end).Store(&text); err != nil {
		return "", false
	}
	return text, true
}

// ReadFullText implements [field.Adapter].
func (a *Adapter) ReadFullText(ctx context.Context, t field.Target) (string, bool) {
	obj, ok := a.object(t)
	if !ok {
		return "", false
	}
	text, err := a.fullText(ctx, obj)
	if err != nil {
		return "", false
	}
	return text, true
}

// ReadCursor implements [field.Adapter]. The AT-SPI caret offset counts
// characters; the returned position is a byte offset into the full text.
func (a *Adapter) ReadCursor(ctx context.Context, t field.Target) (int, bool) {
	obj, ok := a.object(t)
	if !ok {
		return 0, false
	}

	var caret int32
	if err := a.prop(ctx, obj, textIface, "CaretOffset", &caret); err != nil {
		return 0, false
	}
	text, err := a.fullText(ctx, obj)
	if err != nil {
		return 0, false
	}
	return byteOffset(text, int(caret)), true
}

// ReplaceSelection implements [field.Adapter]. Without a selection there is
// nothing to replace and the call fails.
func (a *Adapter) ReplaceSelection(ctx context.Context, t field.Target, text string) bool {
	obj, ok := a.object(t)
	if !ok {
		return false
	}

	var n int32
	if err := a.prop(ctx, obj, textIface, "NSelections", &n); err != nil || n == 0 {
		return false
	}
	var start, end int32
	if err := obj.CallWithContext(ctx, textIface+".GetSelection", 0, int32(0)).Store(&start, &end); err != nil {
		return false
	}

	var accepted bool
	if err := obj.CallWithContext(ctx, editableIface+".DeleteText", 0, start, end).Store(&accepted); err != nil || !accepted {
		return false
	}
	runes := int32(utf8.RuneCountInString(text))
	if err := obj.CallWithContext(ctx, editableIface+".InsertText", 0, start, text, runes).Store(&accepted); err != nil || !accepted {
		return false
	}
	obj.CallWithContext(ctx, textIface+".SetCaretOffset", 0, start+runes)
	return true
}

// SetText implements [field.Adapter].
func (a *Adapter) SetText(ctx context.Context, t field.Target, text string) bool {
	obj, ok := a.object(t)
	if !ok {
		return false
	}
	var accepted bool
	if err := obj.CallWithContext(ctx, editableIface+".SetTextContents", 0, text).Store(&accepted); err != nil {
		return false
	}
	return accepted
}

// SetCursor implements [field.Adapter]. pos is a byte offset; AT-SPI wants
// a character offset.
func (a *Adapter) SetCursor(ctx context.Context, t field.Target, pos int) {
	obj, ok := a.object(t)
	if !ok {
		return
	}
	text, err := a.fullText(ctx, obj)
	if err != nil {
		return
	}
	obj.CallWithContext(ctx, textIface+".SetCaretOffset", 0, int32(runeOffset(text, pos)))
}

// Activate implements [field.Adapter].
func (a *Adapter) Activate(ctx context.Context, t field.Target) bool {
	obj, ok := a.object(t)
	if !ok {
		return false
	}
	var grabbed bool
	if err := obj.CallWithContext(ctx, componentIface+".GrabFocus", 0).Store(&grabbed); err != nil {
		return false
	}
	return grabbed
}

// fullText reads the element's entire text content.
func (a *Adapter) fullText(ctx context.Context, obj dbus.BusObject) (string, error) {
	var count int32
	if err := a.prop(ctx, obj, textIface, "CharacterCount", &count); err != nil {
		return "", err
	}
	var text string
	if err := obj.CallWithContext(ctx, textIface+".GetText", 0, int32(0), count).Store(&text); err != nil {
		return "", err
	}
	return text, nil
}

// prop reads a D-Bus property into out.
func (a *Adapter) prop(ctx context.Context, obj dbus.BusObject, iface, name string, out any) error {
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, name).Store(&v); err != nil {
		return err
	}
	return dbus.Store([]any{v.Value()}, out)
}

// object resolves a target back to its bus object.
func (a *Adapter) object(t field.Target) (dbus.BusObject, bool) {
	dest, path, ok := decodeTarget(t)
	if !ok {
		return nil, false
	}
	return a.bus.Object(dest, path), true
}

// encodeTarget packs the element's unique bus name and object path into an
// opaque target value.
func encodeTarget(dest string, path dbus.ObjectPath) field.Target {
	return field.Target(dest + "|" + string(path))
}

func decodeTarget(t field.Target) (dest string, path dbus.ObjectPath, ok bool) {
	s := string(t)
	i := strings.IndexByte(s, '|')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], dbus.ObjectPath(s[i+1:]), true
}

// byteOffset converts a character offset into a byte offset, clamping to the
// ends of s.
func byteOffset(s string, runeOff int) int {
	if runeOff <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runeOff {
			return i
		}
		n++
	}
	return len(s)
}

// runeOffset converts a byte offset into a character offset, clamping to the
// ends of s.
func runeOffset(s string, byteOff int) int {
	if byteOff <= 0 {
		return 0
	}
	if byteOff > len(s) {
		byteOff = len(s)
	}
	return utf8.RuneCountInString(s[:byteOff])
}
