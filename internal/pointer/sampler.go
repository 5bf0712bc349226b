package pointer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/panpad/internal/logging"
)

// Sampler drives a Smoother at a fixed interval.
type Sampler struct {
	smoother *Smoother
	interval time.Duration
	active   func() bool
	logger   *logging.Logger

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSampler creates a sampler. active reports whether panning is on.
func NewSampler(s *Smoother, interval time.Duration, active func() bool, logger *logging.Logger) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Sampler{
		smoother: s,
		interval: interval,
		active:   active,
		logger:   logging.OrNull(logger).WithComponent("sampler"),
	}
}

// Start launches the sampling goroutine.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.run(ctx, s.done)
	s.logger.Debug("sampling every %s", s.interval)
	return nil
}

func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.smoother.Step(s.active())
		}
	}
}

// Stop ends sampling and waits for the goroutine or ctx.
func (s *Sampler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running.Store(false)
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the sampler is running.
func (s *Sampler) IsRunning() bool {
	return s.running.Load()
}
