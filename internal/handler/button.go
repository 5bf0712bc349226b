package handler

import (
	"sync"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Button forwards button edges as key presses, one down and one up per
// press. All methods are safe for concurrent use.
type Button struct {
	kb     Keyboard
	logger *logging.Logger

	mu      sync.Mutex
	pressed keys.Set
}

// NewButton creates a button handler sending to kb.
func NewButton(kb Keyboard, l *logging.Logger) *Button {
	return &Button{kb: kb, logger: logging.OrNull(l)}
}

// OnChange records a press (down=true) or release of code.
// Unbound codes, repeated presses and releases of keys that are not
// pressed are ignored. An edge the keyboard refuses is not recorded.
func (b *Button) OnChange(code keys.ScanCode, down bool) {
	if code == keys.None {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pressed.Has(code) == down {
		return
	}

	var err error
	if down {
		err = b.kb.Press(code)
	} else {
		err = b.kb.Release(code)
	}
	if err != nil {
		b.logger.Warn("button %v down=%t: %v", code, down, err)
		return
	}
	if down {
		b.pressed.Add(code)
	} else {
		b.pressed.Remove(code)
	}
}

// OnUpdate is a no-op; button edges are forwarded as they arrive.
func (b *Button) OnUpdate() {}

// OnStop releases every pressed key.
func (b *Button) OnStop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pressed.IsEmpty() {
		return
	}
	if err := b.kb.Release(b.pressed.Codes()...); err != nil {
		b.logger.Warn("button release %v: %v", b.pressed, err)
	}
	b.pressed.Clear()
}

// Pressed returns the codes currently pressed.
func (b *Button) Pressed() keys.Set {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}
