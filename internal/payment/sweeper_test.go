package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ExpiresOlderThanCutoff", func(t *testing.T) {
		repo := new(MockRepository)
		reg := prometheus.NewRegistry()
		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: time.Minute}, metrics.NewPayments(reg))
		s.now = func() time.Time { return now }

		repo.On("ExpirePending", mock.Anything, now.Add(-time.Hour)).Return(int64(2), nil)

		n, err := s.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		mf, err := reg.Gather()
		require.NoError(t, err)
		var found bool
		for _, f := range mf {
			if f.GetName() == "eastleigh_payments_expired_total" {
				found = true
				assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
			}
		}
		assert.True(t, found)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		repo := new(MockRepository)
		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: time.Minute}, nil)

		repo.On("ExpirePending", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

		_, err := s.Sweep(context.Background())
		assert.Error(t, err)
	})

	t.Run("OnlyPendingRowsChange", func(t *testing.T) {
		ctx := context.Background()
		repo := newMemRepository()
		require.NoError(t, repo.Create(ctx, &Payment{TransactionID: "old-pending", PaymentStatus: StatusPending}))
		require.NoError(t, repo.Create(ctx, &Payment{TransactionID: "old-done", PaymentStatus: StatusCompleted}))

		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Nanosecond, Interval: time.Minute}, nil)
		s.now = func() time.Time { return time.Now().Add(time.Second) }

		n, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		p, _ := repo.GetByTransactionID(ctx, "old-pending")
		assert.Equal(t, StatusFailed, p.PaymentStatus)
		p, _ = repo.GetByTransactionID(ctx, "old-done")
		assert.Equal(t, StatusCompleted, p.PaymentStatus)
	})
}

func TestSweeper_StartStop(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		repo := new(MockRepository)
		s := NewSweeper(repo, config.SweepConfig{Interval: time.Minute}, nil)

		assert.False(t, s.Enabled())
		s.Start(context.Background())
		s.Stop()
		repo.AssertNotCalled(t, "ExpirePending", mock.Anything, mock.Anything)
	})

	t.Run("RunsOnTick", func(t *testing.T) {
		repo := new(MockRepository)
		swept := make(chan struct{}, 1)
		repo.On("ExpirePending", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				select {
				case swept <- struct{}{}:
				default:
				}
			}).
			Return(int64(0), nil)

		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: 5 * time.Millisecond}, nil)
		s.Start(context.Background())

		select {
		case <-swept:
		case <-time.After(time.Second):
			t.Fatal("sweeper never ran")
		}

		s.Stop()
		s.Stop()
	})

	t.Run("StartTwice", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ExpirePending", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: time.Hour}, nil)

		assert.NotPanics(t, func() {
			s.Start(context.Background())
			s.Start(context.Background())
		})
		s.Stop()
	})

	t.Run("StopWithoutStart", func(t *testing.T) {
		repo := new(MockRepository)
		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: 5 * time.Millisecond}, nil)

		done := make(chan struct{})
		go func() { s.Stop(); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Stop blocked on a sweeper that never started")
		}

		s.Start(context.Background())
		time.Sleep(20 * time.Millisecond)
		repo.AssertNotCalled(t, "ExpirePending", mock.Anything, mock.Anything)
	})

	t.Run("StopsOnContextCancel", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("ExpirePending", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

		ctx, cancel := context.WithCancel(context.Background())
		s := NewSweeper(repo, config.SweepConfig{Expiry: time.Hour, Interval: time.Hour}, nil)
		s.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() { s.Stop(); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Stop did not return after cancel")
		}
	})
}
