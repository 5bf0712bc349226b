// Package app runs the remapper: it owns the panning state machine and
// wires the pointer feed, the toggle hotkey, live configuration and the
// key engine together.
package app

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/controller"
	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
	"github.com/dshills/panpad/internal/native"
	"github.com/dshills/panpad/internal/pointer"
)

// Hotkeys registers the global toggle.
type Hotkeys interface {
	Register(h keys.Hotkey) error
	Unregister() error
	Events() <-chan keys.Hotkey
	Close() error
}

// toggleSetter is implemented by pointer sources that read the toggle key
// themselves.
type toggleSetter interface {
	SetToggle(h keys.Hotkey)
}

// statusSetter is implemented by pointer sources with a status display.
type statusSetter interface {
	SetStatus(s string)
}

// Options configures the application.
type Options struct {
	// Store holds the active configuration. Required.
	Store *config.Store

	// ConfigPath is watched for live reload when set.
	ConfigPath string

	// Env supplies environment overrides on reload.
	Env *config.EnvLoader

	// Native is the platform backend. Required.
	Native native.Native

	// Pointer delivers pointer events. Required.
	Pointer native.PointerSource

	// Hotkeys registers the global toggle. Optional.
	Hotkeys Hotkeys

	// Relative measures each pointer position against the previous one
	// instead of warping back to the screen center.
	Relative bool

	// Logger receives application logs.
	Logger *logging.Logger

	// Clock replaces time.Now.
	Clock func() time.Time
}

// Application is the running remapper.
type Application struct {
	opts    Options
	store   *config.Store
	native  native.Native
	source  native.PointerSource
	hotkeys Hotkeys
	logger  *logging.Logger
	now     func() time.Time

	ctrl     *controller.Controller
	smoother *pointer.Smoother
	sampler  *pointer.Sampler
	watcher  *config.Watcher
	sub      *config.Subscription

	// panMu orders state transitions against stick pushes.
	panMu   sync.Mutex
	state   atomic.Int32
	session *Session

	// Event loop state.
	centerX, centerY int
	lastX, lastY     int
	havePos          bool
	heldButtons      keys.Set
	lastMoved        time.Time
	cursorHidden     bool

	reload chan struct{}
	quit   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	running  atomic.Bool
	shutdown atomic.Bool

	stats stats
}

type stats struct {
	toggles        atomic.Uint64
	sessions       atomic.Uint64
	reloads        atomic.Uint64
	reloadFailures atomic.Uint64
	focusClears    atomic.Uint64
	buttons        atomic.Uint64
}

// Stats is a snapshot of application counters.
type Stats struct {
	State          State
	Toggles        uint64
	Sessions       uint64
	Reloads        uint64
	ReloadFailures uint64
	FocusClears    uint64
	Buttons        uint64
	Engine         controller.Stats
}

// New wires an application. Nothing runs until Start or Run.
func New(opts Options) (*Application, error) {
	switch {
	case opts.Store == nil:
		return nil, &InitError{Component: "config", Err: errors.New("no config store")}
	case opts.Native == nil:
		return nil, &InitError{Component: "native", Err: errors.New("no backend")}
	case opts.Pointer == nil:
		return nil, &InitError{Component: "pointer", Err: errors.New("no pointer source")}
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := logging.OrNull(opts.Logger).WithComponent("app")
	cfg := opts.Store.Current()

	a := &Application{
		opts:    opts,
		store:   opts.Store,
		native:  opts.Native,
		source:  opts.Pointer,
		hotkeys: opts.Hotkeys,
		logger:  logger,
		now:     now,
		reload:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	a.lastMoved = now()

	a.ctrl = controller.New(cfg, opts.Native,
		controller.WithLogger(opts.Logger),
		controller.WithClock(opts.Clock),
	)
	a.smoother = pointer.NewSmoother(gate{a}, pointer.ParamsFrom(cfg))
	a.sampler = pointer.NewSampler(a.smoother, cfg.Tuning.SampleInterval.Std(), a.IsPanning, opts.Logger)
	a.sub = a.store.Subscribe(a.applyConfig)

	return a, nil
}

// Start launches the engine, the sampler, the hotkey and the config
// watcher.
func (a *Application) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running.Load() {
		return ErrAlreadyRunning
	}

	if err := a.ctrl.Start(); err != nil {
		return NewComponentError("controller", "start", err)
	}
	if err := a.sampler.Start(); err != nil {
		_ = a.ctrl.Close(context.Background())
		return NewComponentError("sampler", "start", err)
	}

	cfg := a.store.Current()
	a.registerToggle(cfg)

	if a.opts.ConfigPath != "" {
		w, err := config.NewWatcher(a.opts.ConfigPath, func(string) { a.RequestReload() },
			config.WithWatchLogger(a.opts.Logger))
		if err != nil {
			a.logger.Warn("live reload disabled: %v", err)
		} else {
			a.watcher = w
		}
	}

	a.running.Store(true)
	a.setStatus()
	a.logger.Info("ready, toggle with %s, target %q", cfg.Toggle, cfg.Target)
	return nil
}

// Run starts the application and processes events until ctx is done or
// the pointer source asks to quit. It always shuts down before returning.
func (a *Application) Run(ctx context.Context) (err error) {
	if err := a.Start(); err != nil {
		if !errors.Is(err, ErrAlreadyRunning) {
			_ = a.Shutdown(ctx)
		}
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			perr := NewRecoveredPanicError(r, string(debug.Stack()))
			a.logger.Error("%v\n%s", perr, perr.Stack)
			err = perr
		}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.Shutdown(sctx); serr != nil && err == nil {
			err = serr
		}
	}()

	a.loop(ctx)
	return nil
}

func (a *Application) loop(ctx context.Context) {
	cursorTick := time.NewTicker(a.store.Current().Tuning.SampleInterval.Std())
	defer cursorTick.Stop()

	var toggles <-chan keys.Hotkey
	if a.hotkeys != nil {
		toggles = a.hotkeys.Events()
	}
	events := a.source.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.quit:
			return
		case ev, ok := <-events:
			if !ok {
				a.logger.Info("pointer source closed")
				return
			}
			a.HandlePointer(ev)
		case h := <-toggles:
			a.logger.Debug("hotkey %s", h)
			a.TogglePanning()
		case <-a.reload:
			a.Reload()
		case <-cursorTick.C:
			a.UpdateCursor()
		}
	}
}

// Quit asks Run to return.
func (a *Application) Quit() {
	a.once.Do(func() { close(a.quit) })
}

// RequestReload schedules a configuration reload on the event loop.
func (a *Application) RequestReload() {
	select {
	case a.reload <- struct{}{}:
	default:
	}
}

// Shutdown stops panning, releases every key and closes all components.
// It is safe to call more than once; later calls return nil.
func (a *Application) Shutdown(ctx context.Context) error {
	if !a.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	errs := NewErrorList()

	if a.IsPanning() {
		a.stopPanning("shutdown")
	}
	a.sub.Unsubscribe()

	if a.watcher != nil {
		errs.Add(componentErr("watcher", "close", a.watcher.Close()))
	}
	if a.sampler.IsRunning() {
		errs.Add(componentErr("sampler", "stop", a.sampler.Stop(ctx)))
	}
	if a.ctrl.IsRunning() {
		errs.Add(componentErr("controller", "close", a.ctrl.Close(ctx)))
	} else {
		a.ctrl.Shutdown()
	}
	if a.hotkeys != nil {
		errs.Add(componentErr("hotkey", "close", a.hotkeys.Close()))
	}
	errs.Add(componentErr("pointer", "close", a.source.Close()))
	if a.cursorHidden {
		errs.Add(componentErr("native", "show cursor", a.native.CursorHide(false)))
		a.cursorHidden = false
	}
	errs.Add(componentErr("native", "close", a.native.Close()))

	a.running.Store(false)
	st := a.ctrl.Stats()
	a.logger.Info("stopped after %d sessions, %d key batches", a.stats.sessions.Load(), st.Dispatch.Batches)
	return errs.AsError()
}

// Controller returns the key engine.
func (a *Application) Controller() *controller.Controller {
	return a.ctrl
}

// Smoother returns the pointer smoother.
func (a *Application) Smoother() *pointer.Smoother {
	return a.smoother
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (a *Application) IsRunning() bool {
	return a.running.Load()
}

// Stats returns current counters.
func (a *Application) Stats() Stats {
	return Stats{
		State:          a.State(),
		Toggles:        a.stats.toggles.Load(),
		Sessions:       a.stats.sessions.Load(),
		Reloads:        a.stats.reloads.Load(),
		ReloadFailures: a.stats.reloadFailures.Load(),
		FocusClears:    a.stats.focusClears.Load(),
		Buttons:        a.stats.buttons.Load(),
		Engine:         a.ctrl.Stats(),
	}
}

func (a *Application) registerToggle(cfg *config.Config) {
	h, err := cfg.Hotkey()
	if err != nil {
		a.logger.Warn("toggle %q: %v", cfg.Toggle, err)
		return
	}
	if ts, ok := a.source.(toggleSetter); ok {
		ts.SetToggle(h)
	}
	if a.hotkeys == nil {
		return
	}
	if err := a.hotkeys.Register(h); err != nil {
		a.logger.Warn("register toggle %s: %v", h, err)
	}
}

func (a *Application) setStatus() {
	ss, ok := a.source.(statusSetter)
	if !ok {
		return
	}
	status := "idle"
	if s := a.Session(); s != nil {
		status = "panning (session " + s.ID + ")"
	}
	ss.SetStatus(status)
}
