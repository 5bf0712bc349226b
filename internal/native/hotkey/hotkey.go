// Package hotkey registers the global panning toggle.
//
// On macOS the hotkey library needs the process main thread; callers there
// must run through golang.design/x/hotkey/mainthread.
package hotkey

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/hotkey"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Errors.
var (
	// ErrUnmappedKey is returned for keys the hotkey library cannot grab.
	ErrUnmappedKey = errors.New("key cannot be used as a global hotkey")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hotkey registrar closed")
)

// Registrar owns at most one registered hotkey and forwards its presses.
type Registrar struct {
	mu      sync.Mutex
	hk      *hotkey.Hotkey
	current keys.Hotkey
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool

	events chan keys.Hotkey
	logger *logging.Logger
}

// New creates a registrar with nothing registered.
func New(logger *logging.Logger) *Registrar {
	return &Registrar{
		events: make(chan keys.Hotkey, 8),
		logger: logging.OrNull(logger).WithComponent("hotkey"),
	}
}

// Convert maps h to the hotkey library's modifiers and key.
func Convert(h keys.Hotkey) ([]hotkey.Modifier, hotkey.Key, error) {
	key, ok := keyMap[h.Key]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnmappedKey, h.Key)
	}
	var mods []hotkey.Modifier
	for _, m := range []keys.Modifier{keys.ModShift, keys.ModCtrl, keys.ModAlt, keys.ModSuper} {
		if !h.Mods.Has(m) {
			continue
		}
		hm, ok := modMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: modifier %s", ErrUnmappedKey, m)
		}
		mods = append(mods, hm)
	}
	return mods, key, nil
}

// Register replaces the current hotkey with h.
func (r *Registrar) Register(h keys.Hotkey) error {
	mods, key, err := Convert(h)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.hk != nil && r.current == h {
		return nil
	}
	if err := r.unregisterLocked(); err != nil {
		r.logger.Warn("previous toggle: %v", err)
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register %s: %w", h, err)
	}
	r.hk = hk
	r.current = h
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go r.forward(hk, h, r.stop)

	r.logger.Info("toggle hotkey %s registered", h)
	return nil
}

func (r *Registrar) forward(hk *hotkey.Hotkey, h keys.Hotkey, stop chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-stop:
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			select {
			case r.events <- h:
			default:
				r.logger.Debug("toggle %s dropped, consumer busy", h)
			}
		}
	}
}

// Unregister removes the current hotkey, if any.
func (r *Registrar) Unregister() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked()
}

func (r *Registrar) unregisterLocked() error {
	if r.hk == nil {
		return nil
	}
	close(r.stop)
	err := r.hk.Unregister()
	r.logger.Debug("toggle hotkey %s unregistered", r.current)
	r.hk = nil
	r.current = keys.Hotkey{}
	if err != nil {
		return fmt.Errorf("unregister: %w", err)
	}
	return nil
}

// Current returns the registered hotkey, or the zero value.
func (r *Registrar) Current() keys.Hotkey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Events delivers one value per toggle press.
func (r *Registrar) Events() <-chan keys.Hotkey {
	return r.events
}

// Close unregisters and stops forwarding. Events is not closed.
func (r *Registrar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	err := r.unregisterLocked()
	r.mu.Unlock()
	r.wg.Wait()
	return err
}
