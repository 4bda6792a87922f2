package payment

import (
	"context"
	"sync"
	"time"

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/metrics"

	"go.uber.org/zap"
)

// Sweeper periodically fails PENDING payments whose callback never arrived.
// It is disabled unless an expiry is configured.
type Sweeper struct {
	repo     Repository
	metrics  *metrics.Payments
	expiry   time.Duration
	interval time.Duration
	now      func() time.Time

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSweeper(repo Repository, cfg config.SweepConfig, m *metrics.Payments) *Sweeper {
	return &Sweeper{
		repo:     repo,
		metrics:  m,
		expiry:   cfg.Expiry,
		interval: cfg.Interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Enabled() bool {
	return s.expiry > 0 && s.interval > 0
}

// Sweep runs one pass and returns how many payments were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.expiry)

	n, err := s.repo.ExpirePending(ctx, cutoff)
	if err != nil {
		logger.FromCtx(ctx).Error("Failed to expire stale pending payments", zap.Error(err))
		return 0, err
	}

	s.metrics.Expired(n)
	if n > 0 {
		logger.FromCtx(ctx).Info("Expired stale pending payments",
			zap.Int64("count", n),
			zap.Time("created_before", cutoff),
		)
	}
	return n, nil
}

// Start launches the sweep loop. It returns immediately and is a no-op when
// the sweeper is disabled, already started or already stopped.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() { s.start(ctx) })
}

func (s *Sweeper) start(ctx context.Context) {
	if !s.Enabled() {
		close(s.done)
		return
	}

	logger.L().Info("Starting pending payment sweeper",
		zap.Duration("expiry", s.expiry),
		zap.Duration("interval", s.interval),
	)

	go func() {
		defer close(s.done)

		tick := time.NewTicker(s.interval)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-tick.C:
				_, _ = s.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight pass to finish. A sweeper
// that was never started cannot be started afterwards.
func (s *Sweeper) Stop() {
	s.startOnce.Do(func() { close(s.done) })
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
