// Package controller is the remapping engine's front door. It normalizes
// raw stick input, feeds the stick and button handlers and runs the
// single dispatch goroutine that talks to the key injector.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/panpad/internal/axis"
	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/dispatch"
	"github.com/dshills/panpad/internal/handler"
	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Axes is the last stick state, for display and diagnostics.
type Axes struct {
	RawX, RawY float64
	// X and Y are the normalized values in [-1, 1].
	X, Y float64
	// QX and QY are X and Y on the joystick scale.
	QX, QY int32

	// Direction flags at the configured threshold. Y grows downward.
	Left, Right, Up, Down bool
}

// Stats combines controller metrics with dispatch counters.
type Stats struct {
	Metrics  MetricsSnapshot
	Dispatch dispatch.Stats
	Held     int
}

// Controller turns pointer-derived stick values and button edges into
// key events. SetStick, SetButton, ClearState and Reconfigure are safe
// from any goroutine.
type Controller struct {
	mu   sync.Mutex
	cfg  *config.Config
	axes Axes

	stick   *handler.Stick
	button  *handler.Button
	manager *dispatch.Manager
	metrics *Metrics
	logger  *logging.Logger

	// Lifecycle
	lifeMu  sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger *logging.Logger
	clock  func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock replaces time.Now for timed stick holds.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// New creates a controller sending key events to sender. cfg must be
// valid and must not be modified afterwards.
func New(cfg *config.Config, sender dispatch.Sender, opts ...Option) *Controller {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNull(o.logger).WithComponent("controller")

	policy, _ := dispatch.ParseDownPolicy(cfg.Tuning.DownPolicy)
	manager := dispatch.NewManager(sender,
		dispatch.WithQueueSize(cfg.Tuning.QueueSize),
		dispatch.WithDownPolicy(policy),
		dispatch.WithPersistent(cfg.PersistentKeyPress),
		dispatch.WithLogger(logger.WithComponent("dispatch")),
	)

	tieBreak, _ := handler.ParseTieBreak(cfg.Tuning.TieBreak)
	stickOpts := []handler.StickOption{
		handler.WithTieBreak(tieBreak),
		handler.WithHoldWindow(cfg.Tuning.HoldWindow.Std()),
		handler.WithStickLogger(logger.WithComponent("stick")),
	}
	if o.clock != nil {
		stickOpts = append(stickOpts, handler.WithClock(o.clock))
	}

	return &Controller{
		cfg:     cfg,
		stick:   handler.NewStick(manager.Immediate(), cfg.StickKeys.Array(), stickOpts...),
		button:  handler.NewButton(manager, logger.WithComponent("button")),
		manager: manager,
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// SetStick feeds a raw stick displacement. Repeating the previous raw
// value is a no-op.
func (c *Controller) SetStick(rawX, rawY float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.axes.RawX == rawX && c.axes.RawY == rawY {
		c.metrics.RecordStick(false)
		return
	}
	c.metrics.RecordStick(true)

	x, y := axis.Normalize(rawX, rawY, c.cfg.AxisParams(), true)
	qx, qy := axis.Quantize(x), axis.Quantize(y)

	c.stick.OnChange(qx, qy)

	th := c.cfg.Threshold
	c.axes = Axes{
		RawX: rawX, RawY: rawY,
		X: x, Y: y,
		QX: qx, QY: qy,
		Left:  x < -th,
		Right: x > th,
		Up:    y < -th,
		Down:  y > th,
	}

	if qx != 0 || qy != 0 {
		c.logger.Debug("stick %d,%d from %.4f,%.4f", qx, qy, x, y)
	}
}

// SetButton forwards a button edge for a scan code. None is ignored.
func (c *Controller) SetButton(code keys.ScanCode, down bool) {
	c.metrics.RecordButton()
	c.button.OnChange(code, down)
}

// ClearState resets the axes and releases every key the engine holds.
// Releases happen on the dispatch goroutine's next iteration.
func (c *Controller) ClearState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Controller) clearLocked() {
	c.metrics.RecordClear()
	c.axes = Axes{}
	c.button.OnStop()
	gen := c.manager.Clear()
	// Stick commands queued after this point apply after the resident set
	// is released.
	c.stick.StopAfter(func() { c.manager.ClearThrough(gen) })
	c.logger.Debug("state cleared (generation %d)", gen)
}

// Reconfigure swaps in a new configuration. When any key binding
// changed, held keys are released first.
func (c *Controller) Reconfigure(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.RecordReconfigure()
	old := c.cfg
	c.cfg = cfg

	c.manager.SetPersistent(cfg.PersistentKeyPress)
	tieBreak, _ := handler.ParseTieBreak(cfg.Tuning.TieBreak)
	c.stick.SetTieBreak(tieBreak)
	c.stick.SetHoldWindow(cfg.Tuning.HoldWindow.Std())

	if !old.BindingsEqual(cfg) {
		c.logger.Info("key bindings changed, releasing held keys")
		c.clearLocked()
	}
	c.stick.SetBindings(cfg.StickKeys.Array())
}

// Config returns the active configuration.
func (c *Controller) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Axes returns a copy of the last stick state.
func (c *Controller) Axes() Axes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.axes
}

// Stats returns current counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Metrics:  c.metrics.Snapshot(),
		Dispatch: c.manager.Stats(),
		Held:     c.stick.HeldCount(),
	}
}

// Tick runs one dispatch iteration on the calling goroutine. It is for
// callers that drive the engine themselves and must not be mixed with
// Start.
func (c *Controller) Tick() {
	start := time.Now()
	c.stick.OnUpdate()
	c.manager.Tick()
	c.metrics.RecordLoop(time.Since(start))
}

// Shutdown releases everything on the calling goroutine. It is the
// synchronous counterpart of ClearState for callers that use Tick.
func (c *Controller) Shutdown() {
	c.ClearState()
	c.finalFlush()
}

func (c *Controller) finalFlush() {
	c.stick.OnUpdate()
	c.manager.Flush()
}

// Start launches the dispatch goroutine.
func (c *Controller) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)

	interval := c.Config().Tuning.DispatchInterval.Std()
	if interval <= 0 {
		interval = dispatch.DefaultInterval
	}

	c.manager.Queue().Attach()
	go c.run(ctx, interval, c.done)

	c.logger.Debug("dispatch loop started (interval %s)", interval)
	return nil
}

func (c *Controller) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Producers must not block on a consumer that is leaving.
			c.manager.Queue().Detach()
			c.ClearState()
			c.finalFlush()
			c.logger.Debug("dispatch loop exited")
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Close stops the dispatch goroutine. Every held key is released before
// it exits; Close waits for that or for ctx.
func (c *Controller) Close(ctx context.Context) error {
	c.lifeMu.Lock()
	if !c.running.Load() {
		c.lifeMu.Unlock()
		return ErrNotRunning
	}
	c.running.Store(false)
	c.cancel()
	done := c.done
	c.lifeMu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the dispatch goroutine is running.
func (c *Controller) IsRunning() bool {
	return c.running.Load()
}
