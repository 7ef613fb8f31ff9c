// Package scheduler runs the periodic ledger maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inmobiliaria/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the sweep interval is not positive
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// OverdueMarker flags unpaid installments whose due date has passed
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// OverdueSweeper calls the ledger's MarkOverdue once at start and then every interval
type OverdueSweeper struct {
	marker   OverdueMarker
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
	enabled  bool
	now      func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewOverdueSweeper creates a sweeper from the scheduler config section
func NewOverdueSweeper(marker OverdueMarker, cfg config.SchedulerConfig, logger *zap.Logger) (*OverdueSweeper, error) {
	if cfg.OverdueSweepEnabled && cfg.OverdueSweepInterval <= 0 {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OverdueSweeper{
		marker:   marker,
		logger:   logger,
		interval: cfg.OverdueSweepInterval,
		timeout:  timeout,
		enabled:  cfg.OverdueSweepEnabled,
		now:      time.Now,
	}, nil
}

// Start launches the sweep loop. It is a no-op when disabled or already running.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if !s.enabled {
		s.logger.Info("Overdue sweeper is disabled")
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Overdue sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep, or for ctx
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Overdue sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *OverdueSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	s.SweepOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep bounded by the job timeout and returns the rows flagged
func (s *OverdueSweeper) SweepOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	marked, err := s.marker.MarkOverdue(ctx, start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("Overdue sweep canceled")
			return 0
		}
		s.logger.Error("Overdue sweep failed", zap.Error(err))
		return 0
	}
	if marked > 0 {
		s.logger.Info("Installments marked overdue",
			zap.Int("count", marked),
			zap.Time("as_of", start),
		)
	} else {
		s.logger.Debug("Overdue sweep found nothing to mark")
	}
	return marked
}
