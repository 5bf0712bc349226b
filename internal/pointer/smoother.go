package pointer

import (
	"math"
	"sync"

	"github.com/dshills/panpad/internal/config"
)

// Stick receives smoothed stick values.
type Stick interface {
	SetStick(x, y float64)
}

// Params are the smoothing constants.
type Params struct {
	// Blend is the weight of the newest displacement in the average.
	Blend float64
	// Decay multiplies the average on every sample.
	Decay float64
	// MinMove is the shortest displacement; shorter ones are scaled up.
	MinMove float64
	// MaxMove caps the average's length.
	MaxMove float64
	// Gain converts the average to stick units (sensitivity times scale).
	Gain float64
	// IdleTicks is the number of samples without motion after which the
	// average is dropped.
	IdleTicks int
}

// ParamsFrom derives Params from a configuration.
func ParamsFrom(cfg *config.Config) Params {
	t := cfg.Tuning
	return Params{
		Blend:     t.Blend,
		Decay:     t.Decay,
		MinMove:   t.MinMove,
		MaxMove:   t.MaxMove,
		Gain:      cfg.Sensitivity * t.SensitivityScale,
		IdleTicks: t.IdleTicks,
	}
}

// Smoother averages pointer displacements.
type Smoother struct {
	mu     sync.Mutex
	p      Params
	avgX   float64
	avgY   float64
	idle   int
	stick  Stick
	moves  uint64
	pushes uint64
}

// NewSmoother creates a smoother feeding stick.
func NewSmoother(stick Stick, p Params) *Smoother {
	return &Smoother{stick: stick, p: p}
}

// SetParams replaces the smoothing constants. The running average is kept.
func (s *Smoother) SetParams(p Params) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// Moved records the pointer at (x, y) relative to the center (cx, cy).
func (s *Smoother) Moved(x, y, cx, cy int) {
	dx, dy := float64(x-cx), float64(y-cy)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.idle = 0
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	s.moves++

	if dist < s.p.MinMove {
		dx, dy = dx/dist*s.p.MinMove, dy/dist*s.p.MinMove
	}

	s.avgX = s.avgX*(1-s.p.Blend) + dx*s.p.Blend
	s.avgY = s.avgY*(1-s.p.Blend) + dy*s.p.Blend

	m := math.Hypot(s.avgX, s.avgY)
	if m > s.p.MaxMove && s.p.MaxMove > 0 {
		s.avgX, s.avgY = s.avgX/m*s.p.MaxMove, s.avgY/m*s.p.MaxMove
	}
	if m < 1 {
		// Too slow to register: fall back to the unit direction.
		n := math.Hypot(dx, dy)
		s.avgX, s.avgY = dx/n, dy/n
	}
}

// Step is one sample. While active it decays the average and pushes it to
// the stick. Either way it counts an idle sample; once more than IdleTicks
// samples passed without motion the average is dropped.
func (s *Smoother) Step(active bool) {
	s.mu.Lock()
	var x, y float64
	if active {
		s.avgX *= s.p.Decay
		s.avgY *= s.p.Decay
		x, y = s.avgX*s.p.Gain, s.avgY*s.p.Gain
		s.pushes++
	}
	if s.idle > s.p.IdleTicks {
		s.avgX, s.avgY = 0, 0
	}
	s.idle++
	s.mu.Unlock()

	if active {
		s.stick.SetStick(x, y)
	}
}

// Reset drops the average.
func (s *Smoother) Reset() {
	s.mu.Lock()
	s.avgX, s.avgY = 0, 0
	s.idle = 0
	s.mu.Unlock()
}

// Average returns the current average displacement.
func (s *Smoother) Average() (x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgX, s.avgY
}

// Counts returns the number of recorded moves and stick pushes.
func (s *Smoother) Counts() (moves, pushes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves, s.pushes
}
