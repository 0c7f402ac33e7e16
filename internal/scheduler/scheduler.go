package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs a named job on a fixed interval in the background. The
// job receives a context that is canceled on Stop.
type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if name == "" {
		name = "job"
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop. The first tick fires after one interval.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "job", s.name, "interval", s.interval.String())

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "job", s.name, "ticks", s.ticks.Load())
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "job", s.name, "panic", r)
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	s.ticks.Add(1)
	slog.Debug("scheduler tick completed", "job", s.name, "duration_ms", time.Since(start).Milliseconds())
}
