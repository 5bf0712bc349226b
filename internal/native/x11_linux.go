//go:build linux

package native

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xfixes"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// X11 is a Native backed by an X server connection ($DISPLAY).
type X11 struct {
	conn   *xgb.Conn
	root   xproto.Window
	width  int
	height int
	logger *logging.Logger

	// xfixes is false when the server lacks XFIXES 4; CursorHide then
	// reports ErrUnsupported.
	xfixes bool

	mu     sync.Mutex
	hidden bool
	atoms  map[string]xproto.Atom

	closed atomic.Bool
}

func openX11(o options) (Native, error) {
	return newX11(o)
}

// NewX11 connects to the X server named by $DISPLAY.
func NewX11(opts ...Option) (*X11, error) {
	return newX11(buildOptions(opts))
}

func newX11(o options) (*X11, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	if err := xtest.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XTEST extension: %w", err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	x := &X11{
		conn:   conn,
		root:   screen.Root,
		width:  int(screen.WidthInPixels),
		height: int(screen.HeightInPixels),
		logger: o.logger.WithField("backend", "x11"),
		atoms:  make(map[string]xproto.Atom),
	}

	if err := xfixes.Init(conn); err == nil {
		if _, err := xfixes.QueryVersion(conn, 4, 0).Reply(); err == nil {
			x.xfixes = true
		}
	}
	if !x.xfixes {
		x.logger.Warn("XFIXES unavailable, cursor hiding disabled")
	}

	x.logger.Debug("connected, screen %dx%d", x.width, x.height)
	return x, nil
}

// SendKeysDown presses codes through XTEST.
func (x *X11) SendKeysDown(codes []keys.ScanCode) error {
	return x.fake(xproto.KeyPress, codes)
}

// SendKeysUp releases codes through XTEST.
func (x *X11) SendKeysUp(codes []keys.ScanCode) error {
	return x.fake(xproto.KeyRelease, codes)
}

func (x *X11) fake(kind byte, codes []keys.ScanCode) error {
	if x.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, code := range codes {
		if code == keys.None {
			continue
		}
		err := xtest.FakeInputChecked(x.conn, kind, byte(code), 0, x.root, 0, 0, 0).Check()
		if err != nil {
			errs = append(errs, fmt.Errorf("fake input %v: %w", code, err))
		}
	}
	return errors.Join(errs...)
}

// SetMousePos warps the pointer.
func (x *X11) SetMousePos(px, py int) error {
	err := xproto.WarpPointerChecked(x.conn, xproto.WindowNone, x.root,
		0, 0, 0, 0, int16(px), int16(py)).Check()
	if err != nil {
		return fmt.Errorf("warp pointer: %w", err)
	}
	return nil
}

// GetMousePos queries the pointer position on the default screen.
func (x *X11) GetMousePos() (int, int, error) {
	r, err := xproto.QueryPointer(x.conn, x.root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("query pointer: %w", err)
	}
	return int(r.RootX), int(r.RootY), nil
}

// ScreenSize returns the default screen size.
func (x *X11) ScreenSize() (int, int, error) {
	return x.width, x.height, nil
}

// CursorHide hides or shows the cursor over the root window.
func (x *X11) CursorHide(hide bool) error {
	if !x.xfixes {
		return fmt.Errorf("cursor hide: %w", ErrUnsupported)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if hide == x.hidden {
		return nil
	}

	var err error
	if hide {
		err = xfixes.HideCursorChecked(x.conn, x.root).Check()
	} else {
		err = xfixes.ShowCursorChecked(x.conn, x.root).Check()
	}
	if err != nil {
		return fmt.Errorf("cursor hide=%t: %w", hide, err)
	}
	x.hidden = hide
	return nil
}

// IsMainWindowActive reports whether the active normal window's WM_CLASS
// instance name contains name.
func (x *X11) IsMainWindowActive(name string) bool {
	if name == "" {
		return false
	}
	w, err := x.activeWindow()
	if err != nil || w == 0 {
		return false
	}
	return x.matches(w, name)
}

// SetFocusOnWindow activates the first managed window matching name.
func (x *X11) SetFocusOnWindow(name string) bool {
	if name == "" {
		return false
	}
	clients, err := x.clientList()
	if err != nil {
		x.logger.Debug("client list: %v", err)
		return false
	}
	for _, w := range clients {
		if !x.matches(w, name) {
			continue
		}
		if err := x.activate(w); err != nil {
			x.logger.Warn("activate %q: %v", name, err)
			return false
		}
		return true
	}
	return false
}

// FocusedWindow returns the active window if it is viewable.
func (x *X11) FocusedWindow() (Window, error) {
	w, err := x.activeWindow()
	if err != nil {
		return Window{}, err
	}
	if w == 0 || !x.viewable(w) {
		return Window{}, ErrNoWindow
	}
	name, _ := x.instanceName(w)
	return Window{ID: uint32(w), Name: name}, nil
}

// FocusWindow activates w.
func (x *X11) FocusWindow(w Window) error {
	if w.IsZero() {
		return ErrNoWindow
	}
	return x.activate(xproto.Window(w.ID))
}

// Pointer starts a feed that polls the pointer every interval.
func (x *X11) Pointer(interval time.Duration) (PointerSource, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	p := &x11Pointer{
		x:      x,
		events: make(chan PointerEvent, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run(interval)
	return p, nil
}

// Close shows the cursor if it was hidden and disconnects.
func (x *X11) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if x.xfixes {
		err = x.CursorHide(false)
	}
	x.conn.Close()
	return err
}

func (x *X11) atom(name string) (xproto.Atom, error) {
	x.mu.Lock()
	a, ok := x.atoms[name]
	x.mu.Unlock()
	if ok {
		return a, nil
	}

	r, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	x.mu.Lock()
	x.atoms[name] = r.Atom
	x.mu.Unlock()
	return r.Atom, nil
}

func (x *X11) property(w xproto.Window, name string, typ xproto.Atom, length uint32) (*xproto.GetPropertyReply, error) {
	a, err := x.atom(name)
	if err != nil {
		return nil, err
	}
	r, err := xproto.GetProperty(x.conn, false, w, a, typ, 0, length).Reply()
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", name, err)
	}
	return r, nil
}

func (x *X11) activeWindow() (xproto.Window, error) {
	r, err := x.property(x.root, "_NET_ACTIVE_WINDOW", xproto.AtomWindow, 1)
	if err != nil {
		return 0, err
	}
	if r.Format != 32 || len(r.Value) < 4 {
		return 0, ErrNoWindow
	}
	return xproto.Window(xgb.Get32(r.Value)), nil
}

func (x *X11) clientList() ([]xproto.Window, error) {
	r, err := x.property(x.root, "_NET_CLIENT_LIST", xproto.AtomWindow, 1<<12)
	if err != nil {
		return nil, err
	}
	if r.Format != 32 {
		return nil, ErrNoWindow
	}
	out := make([]xproto.Window, 0, len(r.Value)/4)
	for i := 0; i+4 <= len(r.Value); i += 4 {
		out = append(out, xproto.Window(xgb.Get32(r.Value[i:])))
	}
	return out, nil
}

func (x *X11) viewable(w xproto.Window) bool {
	attr, err := xproto.GetWindowAttributes(x.conn, w).Reply()
	return err == nil && attr.MapState == xproto.MapStateViewable
}

// instanceName returns the first WM_CLASS string.
func (x *X11) instanceName(w xproto.Window) (string, error) {
	r, err := xproto.GetProperty(x.conn, false, w, xproto.AtomWmClass, xproto.AtomString, 0, 256).Reply()
	if err != nil {
		return "", fmt.Errorf("get WM_CLASS: %w", err)
	}
	name, _, _ := bytes.Cut(r.Value, []byte{0})
	return string(name), nil
}

func (x *X11) isNormal(w xproto.Window) bool {
	normal, err := x.atom("_NET_WM_WINDOW_TYPE_NORMAL")
	if err != nil {
		return false
	}
	r, err := x.property(w, "_NET_WM_WINDOW_TYPE", xproto.AtomAtom, 1)
	if err != nil || r.Format != 32 || len(r.Value) < 4 {
		return false
	}
	return xproto.Atom(xgb.Get32(r.Value)) == normal
}

func (x *X11) matches(w xproto.Window, name string) bool {
	if !x.viewable(w) {
		return false
	}
	inst, err := x.instanceName(w)
	if err != nil || !strings.Contains(inst, name) {
		return false
	}
	return x.isNormal(w)
}

// activate asks the window manager to focus w.
func (x *X11) activate(w xproto.Window) error {
	a, err := x.atom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return err
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: w,
		Type:   a,
		// Source indication 2: pager, timestamp CurrentTime.
		Data: xproto.ClientMessageDataUnionData32New([]uint32{2, 0, 0, 0, 0}),
	}
	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskSubstructureRedirect)
	if err := xproto.SendEventChecked(x.conn, false, x.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("activate window %d: %w", w, err)
	}
	return nil
}

// x11Pointer polls QueryPointer and reports changes.
type x11Pointer struct {
	x      *X11
	events chan PointerEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

var x11Buttons = [...]struct {
	mask   uint16
	button int
}{
	{xproto.KeyButMaskButton1, ButtonLeft},
	{xproto.KeyButMaskButton3, ButtonRight},
	{xproto.KeyButMaskButton2, ButtonMiddle},
}

func (p *x11Pointer) run(interval time.Duration) {
	defer close(p.done)
	defer close(p.events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := true
	var lastX, lastY int16
	var lastMask uint16

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		r, err := xproto.QueryPointer(p.x.conn, p.x.root).Reply()
		if err != nil {
			if p.x.closed.Load() {
				return
			}
			p.x.logger.Debug("poll pointer: %v", err)
			continue
		}

		if first || r.RootX != lastX || r.RootY != lastY {
			lastX, lastY = r.RootX, r.RootY
			if !p.send(PointerEvent{Kind: PointerMove, X: int(r.RootX), Y: int(r.RootY)}) {
				return
			}
		}
		if !first {
			for _, b := range x11Buttons {
				was, is := lastMask&b.mask != 0, r.Mask&b.mask != 0
				if was == is {
					continue
				}
				ev := PointerEvent{Kind: PointerButton, X: int(r.RootX), Y: int(r.RootY), Button: b.button, Down: is}
				if !p.send(ev) {
					return
				}
			}
		}
		lastMask = r.Mask
		first = false
	}
}

func (p *x11Pointer) send(ev PointerEvent) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.stop:
		return false
	}
}

func (p *x11Pointer) Events() <-chan PointerEvent {
	return p.events
}

func (p *x11Pointer) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return nil
}
