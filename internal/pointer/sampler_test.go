package pointer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSampler_Lifecycle(t *testing.T) {
	rec := &stickRecorder{}
	s := NewSmoother(rec, defaultParams())
	s.Moved(5, 0, 0, 0)

	var active atomic.Bool
	active.Store(true)
	sm := NewSampler(s, time.Millisecond, active.Load, nil)

	if err := sm.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := sm.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v", err)
	}

	deadline := time.After(time.Second)
	for rec.len() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d samples pushed", rec.len())
		case <-time.After(time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if sm.IsRunning() {
		t.Error("IsRunning() after Stop")
	}
	if err := sm.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() = %v", err)
	}

	n := rec.len()
	time.Sleep(5 * time.Millisecond)
	if rec.len() != n {
		t.Error("samples pushed after Stop")
	}
}

func TestSampler_InactiveDoesNotPush(t *testing.T) {
	rec := &stickRecorder{}
	s := NewSmoother(rec, defaultParams())
	sm := NewSampler(s, time.Millisecond, func() bool { return false }, nil)

	if err := sm.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	_ = sm.Stop(context.Background())

	if rec.len() != 0 {
		t.Errorf("inactive sampler pushed %d values", rec.len())
	}
}
