package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		s, err := New("heartbeat", 0, func(context.Context) {})
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})

	t.Run("tickFn must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New("heartbeat", 100*time.Millisecond, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})
}

func TestNew_DefaultsName(t *testing.T) {
	s, err := New("", time.Second, func(context.Context) {})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if s.name != "job" {
		t.Fatalf("expected default name, got %q", s.name)
	}
}

func TestScheduler_StartStop_Basics(t *testing.T) {
	var calls atomic.Int64

	s, err := New("heartbeat", 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected scheduler not running initially")
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if !s.IsRunning() {
		t.Fatalf("expected scheduler running after Start()")
	}
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.IsRunning() {
		t.Fatalf("expected scheduler not running after Stop()")
	}
	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestScheduler_NoImmediateTick(t *testing.T) {
	var calls atomic.Int64

	s, err := New("heartbeat", 10*time.Second, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no tick before the first interval, got %d", got)
	}
}

func TestScheduler_DoesNotTickAfterStop(t *testing.T) {
	var calls atomic.Int64

	s, err := New("heartbeat", 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	waitForAtLeast(t, &calls, 2, 750*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
	beforeSleep := calls.Load()

	time.Sleep(100 * time.Millisecond)

	if afterSleep := calls.Load(); afterSleep != beforeSleep {
		t.Fatalf("expected no ticks after Stop; before=%d after=%d", beforeSleep, afterSleep)
	}
	if s.ticks.Load() != beforeSleep {
		t.Fatalf("expected tick counter %d, got %d", beforeSleep, s.ticks.Load())
	}
}

func TestScheduler_PanicInTickIsRecoveredAndContinues(t *testing.T) {
	var calls atomic.Int64
	var panicked atomic.Bool

	s, err := New("heartbeat", 10*time.Millisecond, func(context.Context) {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 750*time.Millisecond)
}

func TestScheduler_StartStopMultipleTimes(t *testing.T) {
	var calls atomic.Int64

	s, err := New("heartbeat", 10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if ok := s.Start(); !ok {
			t.Fatalf("iteration %d: expected Start() true", i)
		}

		waitForAtLeast(t, &calls, 1, 750*time.Millisecond)

		if ok := s.Stop(); !ok {
			t.Fatalf("iteration %d: expected Stop() true", i)
		}

		calls.Store(0)
	}
}

func TestScheduler_TickFnReceivesCancelableContext(t *testing.T) {
	var capturedMu sync.Mutex
	var captured context.Context

	s, err := New("heartbeat", 10*time.Millisecond, func(ctx context.Context) {
		capturedMu.Lock()
		if captured == nil {
			captured = ctx
		}
		capturedMu.Unlock()
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		capturedMu.Lock()
		got := captured
		capturedMu.Unlock()

		if got != nil {
			break
		}
		if time.Now().After(deadline) {
			_ = s.Stop()
			t.Fatalf("did not capture tick context in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	capturedMu.Lock()
	ctx := captured
	capturedMu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected tick context to be canceled after Stop()")
	}
}

// waitForAtLeast polls until calls >= n or fails the test after timeout.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if calls.Load() >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
