package native

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Backend errors.
var (
	// ErrUnsupported is returned when a backend or capability does not
	// exist on this platform.
	ErrUnsupported = errors.New("not supported on this platform")

	// ErrUnknownBackend is returned by Open for an unrecognized name.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrNoWindow indicates that no matching or focused window exists.
	ErrNoWindow = errors.New("no such window")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backend closed")
)

// Injector emits key events. Codes are X11 keycodes; keys.None entries are
// skipped. Every call emits, even for keys already in the requested state.
type Injector interface {
	SendKeysDown(codes []keys.ScanCode) error
	SendKeysUp(codes []keys.ScanCode) error
}

// Window identifies a top-level window.
type Window struct {
	ID   uint32
	Name string
}

// IsZero reports whether w is unset.
func (w Window) IsZero() bool {
	return w.ID == 0
}

// Desktop is the pointer, cursor and window side of the platform.
// Coordinates have (0, 0) at the top left of the main screen.
type Desktop interface {
	SetMousePos(x, y int) error
	GetMousePos() (x, y int, err error)
	ScreenSize() (w, h int, err error)
	CursorHide(hide bool) error

	// IsMainWindowActive reports whether the focused window's name
	// contains name.
	IsMainWindowActive(name string) bool
	// SetFocusOnWindow focuses the first window whose name contains name.
	SetFocusOnWindow(name string) bool

	FocusedWindow() (Window, error)
	FocusWindow(w Window) error
}

// Native is a complete backend.
type Native interface {
	Injector
	Desktop
	Close() error
}

// PointerEventKind discriminates PointerEvent.
type PointerEventKind uint8

const (
	// PointerMove reports a new pointer position.
	PointerMove PointerEventKind = iota + 1
	// PointerButton reports a button edge.
	PointerButton
	// PointerToggle reports that the panning toggle was requested by the
	// source itself (a terminal key press, for example).
	PointerToggle
	// PointerQuit reports that the user asked the source to exit.
	PointerQuit
)

// String returns the kind name.
func (k PointerEventKind) String() string {
	switch k {
	case PointerMove:
		return "move"
	case PointerButton:
		return "button"
	case PointerToggle:
		return "toggle"
	case PointerQuit:
		return "quit"
	default:
		return fmt.Sprintf("PointerEventKind(%d)", k)
	}
}

// Mouse buttons as reported in PointerEvent.Button.
const (
	ButtonLeft = iota
	ButtonRight
	ButtonMiddle
)

// PointerEvent is one pointer observation.
type PointerEvent struct {
	Kind   PointerEventKind
	X, Y   int
	Button int
	Down   bool
}

// PointerSource delivers pointer events until closed.
type PointerSource interface {
	Events() <-chan PointerEvent
	Close() error
}

// pointerProvider is implemented by backends with their own pointer feed.
type pointerProvider interface {
	Pointer(interval time.Duration) (PointerSource, error)
}

// OpenPointer returns the pointer feed of n, polled every interval where
// the backend polls.
func OpenPointer(n Native, interval time.Duration) (PointerSource, error) {
	if c, ok := n.(*composite); ok {
		if p, ok := c.Desktop.(pointerProvider); ok {
			return p.Pointer(interval)
		}
	}
	p, ok := n.(pointerProvider)
	if !ok {
		return nil, fmt.Errorf("pointer source: %w", ErrUnsupported)
	}
	return p.Pointer(interval)
}

// Option configures a backend.
type Option func(*options)

type options struct {
	logger     *logging.Logger
	uinputPath string
	deviceName string
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithUInputPath sets the uinput device node (default /dev/uinput).
func WithUInputPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.uinputPath = path
		}
	}
}

// WithDeviceName sets the name of the virtual keyboard.
func WithDeviceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.deviceName = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		uinputPath: "/dev/uinput",
		deviceName: "panpad virtual keyboard",
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNull(o.logger).WithComponent("native")
	return o
}
