package pointer

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
	"github.com/dshills/panpad/internal/native"
)

// Default cell size used to scale terminal coordinates to pixels.
const (
	DefaultCellWidth  = 8
	DefaultCellHeight = 16
)

// Terminal is a native.PointerSource reading mouse tracking from a
// terminal. The toggle hotkey and quit keys (q, Esc, Ctrl+C) are reported
// as events too, since a terminal in raw mode swallows them.
type Terminal struct {
	screen tcell.Screen
	logger *logging.Logger

	cellW, cellH int

	mu     sync.Mutex
	toggle keys.Hotkey
	status string

	events chan native.PointerEvent
	once   sync.Once
	stop   chan struct{}
	done   chan struct{}
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithCellSize sets how many pixels one cell counts for.
func WithCellSize(w, h int) TerminalOption {
	return func(t *Terminal) {
		if w > 0 && h > 0 {
			t.cellW, t.cellH = w, h
		}
	}
}

// WithToggle sets the key that produces PointerToggle.
func WithToggle(h keys.Hotkey) TerminalOption {
	return func(t *Terminal) {
		t.toggle = h
	}
}

// WithTerminalLogger sets the logger.
func WithTerminalLogger(l *logging.Logger) TerminalOption {
	return func(t *Terminal) {
		t.logger = logging.OrNull(l)
	}
}

// WithScreen uses s instead of the process terminal.
func WithScreen(s tcell.Screen) TerminalOption {
	return func(t *Terminal) {
		t.screen = s
	}
}

// NewTerminal takes over the terminal and starts reading events.
func NewTerminal(opts ...TerminalOption) (*Terminal, error) {
	t := &Terminal{
		logger: logging.NullLogger,
		cellW:  DefaultCellWidth,
		cellH:  DefaultCellHeight,
		events: make(chan native.PointerEvent, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("terminal")

	if t.screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return nil, err
		}
		t.screen = s
	}
	if err := t.screen.Init(); err != nil {
		return nil, err
	}
	t.screen.EnableMouse(tcell.MouseMotionEvents)
	t.screen.HideCursor()
	t.draw()

	go t.loop()
	return t, nil
}

// SetToggle changes the toggle key.
func (t *Terminal) SetToggle(h keys.Hotkey) {
	t.mu.Lock()
	t.toggle = h
	t.mu.Unlock()
	t.draw()
}

// SetStatus replaces the status line.
func (t *Terminal) SetStatus(s string) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	t.draw()
}

// Events implements native.PointerSource.
func (t *Terminal) Events() <-chan native.PointerEvent {
	return t.events
}

// Close restores the terminal and ends the event loop.
func (t *Terminal) Close() error {
	t.once.Do(func() {
		close(t.stop)
		t.screen.Fini()
	})
	<-t.done
	return nil
}

func (t *Terminal) loop() {
	defer close(t.done)
	defer close(t.events)

	var buttons tcell.ButtonMask
	lastX, lastY := -1, -1

	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}

		switch e := ev.(type) {
		case *tcell.EventMouse:
			cx, cy := e.Position()
			x, y := cx*t.cellW, cy*t.cellH
			if x != lastX || y != lastY {
				lastX, lastY = x, y
				t.emit(native.PointerEvent{Kind: native.PointerMove, X: x, Y: y})
			}
			now := e.Buttons()
			for _, b := range terminalButtons {
				was, is := buttons&b.mask != 0, now&b.mask != 0
				if was != is {
					t.emit(native.PointerEvent{Kind: native.PointerButton, X: x, Y: y, Button: b.button, Down: is})
				}
			}
			buttons = now

		case *tcell.EventKey:
			t.mu.Lock()
			toggle := t.toggle
			t.mu.Unlock()
			switch {
			case isQuitKey(e):
				t.emit(native.PointerEvent{Kind: native.PointerQuit})
			case MatchesToggle(toggle, e):
				t.emit(native.PointerEvent{Kind: native.PointerToggle})
			}

		case *tcell.EventResize:
			t.screen.Sync()
			t.draw()
		}
	}
}

var terminalButtons = [...]struct {
	mask   tcell.ButtonMask
	button int
}{
	{tcell.Button1, native.ButtonLeft},
	{tcell.Button2, native.ButtonRight},
	{tcell.Button3, native.ButtonMiddle},
}

func (t *Terminal) emit(ev native.PointerEvent) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}

func (t *Terminal) draw() {
	t.mu.Lock()
	status := t.status
	toggle := t.toggle
	t.mu.Unlock()

	lines := []string{"panpad"}
	if status != "" {
		lines = append(lines, status)
	}
	if !toggle.IsZero() {
		lines = append(lines, "toggle: "+toggle.String()+"   quit: q")
	} else {
		lines = append(lines, "quit: q")
	}

	t.screen.Clear()
	for y, line := range lines {
		for x, r := range line {
			t.screen.SetContent(x, y, r, nil, tcell.StyleDefault)
		}
	}
	t.screen.Show()
}

func isQuitKey(e *tcell.EventKey) bool {
	switch e.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return e.Rune() == 'q'
	}
	return false
}

// MatchesToggle reports whether a terminal key event is the hotkey h.
// Function keys match regardless of modifiers, which many terminals do not
// report. A letter with Ctrl matches the control character.
func MatchesToggle(h keys.Hotkey, e *tcell.EventKey) bool {
	if h.IsZero() {
		return false
	}
	name := h.Key

	if n, ok := functionKey(name); ok {
		return e.Key() == tcell.KeyF1+tcell.Key(n-1)
	}

	if len(name) == 1 && name[0] >= 'a' && name[0] <= 'z' {
		if h.Mods.Has(keys.ModCtrl) {
			if e.Key() == tcell.KeyRune {
				return e.Modifiers()&tcell.ModCtrl != 0 && unicode.ToLower(e.Rune()) == rune(name[0])
			}
			return e.Key() == tcell.KeyCtrlA+tcell.Key(name[0]-'a')
		}
		return e.Key() == tcell.KeyRune && unicode.ToLower(e.Rune()) == rune(name[0])
	}

	switch name {
	case "space":
		return e.Key() == tcell.KeyRune && e.Rune() == ' '
	case "tab":
		return e.Key() == tcell.KeyTab
	case "enter":
		return e.Key() == tcell.KeyEnter
	}
	return false
}

func functionKey(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "f")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 24 {
		return 0, false
	}
	return n, true
}
