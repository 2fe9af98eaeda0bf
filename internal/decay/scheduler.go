package decay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pass is a unit of periodic graph maintenance (decay, corroboration).
type Pass interface {
	Name() string
	Run(ctx context.Context) error
}

// PassFunc adapts a function to the Pass interface.
type PassFunc struct {
	PassName string
	Fn       func(ctx context.Context) error
}

func (p PassFunc) Name() string                  { return p.PassName }
func (p PassFunc) Run(ctx context.Context) error { return p.Fn(ctx) }

// Scheduler runs maintenance passes on a fixed interval. Start and Stop are
// idempotent; a panicking pass is logged and the loop keeps running.
type Scheduler struct {
	interval time.Duration
	passes   []Pass
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(interval time.Duration, passes []Pass, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		passes:   passes,
		logger:   logger,
	}
}

// Start launches the background loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("passes", len(s.passes)))
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// RunOnce executes every pass immediately, outside the ticker.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runAll(ctx)
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, pass := range s.passes {
		s.runPass(ctx, pass)
	}
}

func (s *Scheduler) runPass(ctx context.Context, pass Pass) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance pass panicked",
				zap.String("pass", pass.Name()),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := pass.Run(ctx); err != nil {
		s.logger.Warn("maintenance pass failed",
			zap.String("pass", pass.Name()),
			zap.Error(err))
		return
	}
	s.logger.Debug("maintenance pass complete",
		zap.String("pass", pass.Name()),
		zap.Duration("elapsed", time.Since(start)))
}
