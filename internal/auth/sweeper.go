// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Sweeper defaults.
const (
	DefaultSweepInterval  = 15 * time.Minute
	DefaultSweepRetention = 24 * time.Hour
)

// SessionPurger deletes sessions that expired before a cutoff.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// SweeperConfig controls how often expired sessions are deleted and how
// long they are kept after expiry.
type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	cfg    SweeperConfig
	purger SessionPurger
	logger *slog.Logger
	clock  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. Zero durations select the defaults.
func NewSweeper(purger SessionPurger, cfg SweeperConfig) (*Sweeper, error) {
	if purger == nil {
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "session purger is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultSweepRetention
	}
	if cfg.Interval < 0 || cfg.Retention < 0 {
		return nil, oops.Code(CodeConfigInvalid).
			With("interval", cfg.Interval.String()).
			With("retention", cfg.Retention.String()).
			Wrapf(ErrConfiguration, "sweeper durations must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		cfg:    cfg,
		purger: purger,
		logger: logger,
		clock:  time.Now,
	}, nil
}

// RunOnce deletes sessions that expired more than the retention period ago
// and returns how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.cfg.Retention)

	purged, err := s.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, oops.Code(CodeStoreUnavailable).
			With("operation", "purge expired sessions").
			With("cutoff", cutoff).
			Wrap(Unavailable(err))
	}

	s.cfg.Metrics.purgedSessions(purged)
	if purged > 0 {
		s.logger.InfoContext(ctx, "purged expired sessions", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

// Start runs a sweep immediately and then once per interval until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
	}
}
