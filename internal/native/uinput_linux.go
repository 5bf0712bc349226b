//go:build linux

package native

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bendahl/uinput"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// UInput injects keys through a virtual kernel keyboard. It works under
// any display server but has no desktop side.
type UInput struct {
	kb     uinput.Keyboard
	logger *logging.Logger
	closed atomic.Bool
}

func openUInput(o options) (injectorCloser, error) {
	return newUInput(o)
}

// NewUInput creates the virtual keyboard. The caller needs write access to
// the uinput device node.
func NewUInput(opts ...Option) (*UInput, error) {
	return newUInput(buildOptions(opts))
}

func newUInput(o options) (*UInput, error) {
	kb, err := uinput.CreateKeyboard(o.uinputPath, []byte(o.deviceName))
	if err != nil {
		return nil, fmt.Errorf("create keyboard on %s: %w", o.uinputPath, err)
	}
	u := &UInput{
		kb:     kb,
		logger: o.logger.WithField("backend", "uinput"),
	}
	u.logger.Debug("virtual keyboard %q on %s", o.deviceName, o.uinputPath)
	return u, nil
}

// SendKeysDown presses codes.
func (u *UInput) SendKeysDown(codes []keys.ScanCode) error {
	return u.send(codes, u.kb.KeyDown)
}

// SendKeysUp releases codes.
func (u *UInput) SendKeysUp(codes []keys.ScanCode) error {
	return u.send(codes, u.kb.KeyUp)
}

func (u *UInput) send(codes []keys.ScanCode, emit func(int) error) error {
	if u.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, code := range codes {
		if code == keys.None {
			continue
		}
		ev, ok := code.Evdev()
		if !ok {
			errs = append(errs, fmt.Errorf("key %v: %w", code, keys.ErrCodeRange))
			continue
		}
		if err := emit(int(ev)); err != nil {
			errs = append(errs, fmt.Errorf("key %v: %w", code, err))
		}
	}
	return errors.Join(errs...)
}

// Close destroys the virtual keyboard.
func (u *UInput) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	return u.kb.Close()
}
