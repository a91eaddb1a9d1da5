// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakePurger struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	purged  int64
	err     error
	called  chan struct{}
}

func newFakePurger(purged int64) *fakePurger {
	return &fakePurger{purged: purged, called: make(chan struct{}, 16)}
}

func (p *fakePurger) PurgeExpired(_ context.Context, olderThan time.Time) (int64, error) {
	p.mu.Lock()
	p.calls++
	p.cutoffs = append(p.cutoffs, olderThan)
	purged, err := p.purged, p.err
	p.mu.Unlock()

	select {
	case p.called <- struct{}{}:
	default:
	}
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func (p *fakePurger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func quietSweeperConfig() SweeperConfig {
	return SweeperConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNewSweeper(t *testing.T) {
	t.Run("requires purger", func(t *testing.T) {
		_, err := NewSweeper(nil, SweeperConfig{})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("applies defaults", func(t *testing.T) {
		s, err := NewSweeper(newFakePurger(0), SweeperConfig{})
		require.NoError(t, err)
		assert.Equal(t, DefaultSweepInterval, s.cfg.Interval)
		assert.Equal(t, DefaultSweepRetention, s.cfg.Retention)
	})

	t.Run("rejects negative durations", func(t *testing.T) {
		_, err := NewSweeper(newFakePurger(0), SweeperConfig{Interval: -time.Second})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestSweeper_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("purges with retention cutoff", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		purger := newFakePurger(7)

		cfg := quietSweeperConfig()
		cfg.Retention = 48 * time.Hour
		cfg.Metrics = metrics
		s, err := NewSweeper(purger, cfg)
		require.NoError(t, err)
		s.clock = func() time.Time { return now }

		n, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		require.Len(t, purger.cutoffs, 1)
		assert.Equal(t, now.Add(-48*time.Hour), purger.cutoffs[0])
		assert.InDelta(t, 7.0, testutil.ToFloat64(metrics.purged), 0)
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		purger := newFakePurger(0)
		purger.err = errors.New("connection reset")

		s, err := NewSweeper(purger, quietSweeperConfig())
		require.NoError(t, err)

		_, err = s.RunOnce(context.Background())
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	purger := newFakePurger(1)
	cfg := quietSweeperConfig()
	cfg.Interval = 10 * time.Millisecond
	s, err := NewSweeper(purger, cfg)
	require.NoError(t, err)

	s.Start(context.Background())
	for range 3 {
		select {
		case <-purger.called:
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not run")
		}
	}
	s.Stop()

	calls := purger.callCount()
	assert.GreaterOrEqual(t, calls, 3)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, purger.callCount(), "no sweeps after Stop")
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	purger := newFakePurger(0)
	cfg := quietSweeperConfig()
	cfg.Interval = time.Hour
	s, err := NewSweeper(purger, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-purger.called
	cancel()
	s.Stop()

	assert.Equal(t, 1, purger.callCount(), "first sweep runs immediately")
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	s, err := NewSweeper(newFakePurger(0), quietSweeperConfig())
	require.NoError(t, err)
	assert.NotPanics(t, s.Stop)
}
