// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/memstore"
	"github.com/wardenauth/warden/internal/auth/postgres"
	"github.com/wardenauth/warden/internal/auth/redisstore"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/internal/store"
)

// Backend is an opened pair of stores.
type Backend struct {
	Sessions auth.SessionStore
	Subjects auth.SubjectDirectory
	// Ready reports store reachability for the readiness probe.
	Ready observability.ReadinessChecker
	Close func()
}

// openBackend connects to the configured stores. Subjects live in Postgres
// for both the postgres and redis backends.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Store.Backend == config.BackendMemory {
		logger.Warn("using in-memory stores; sessions and subjects are lost on exit")
		return &Backend{
			Sessions: memstore.NewSessionStore(),
			Subjects: memstore.NewSubjectDirectory(),
			Close:    func() {},
		}, nil
	}

	pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.ConnectConfig{
		MaxConns: cfg.Store.MaxConns,
		Attempts: cfg.Store.ConnectRetries,
		Logger:   logger,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors already carry codes
	}

	backend := &Backend{
		Sessions: postgres.NewSessionStore(pool),
		Subjects: postgres.NewSubjectStore(pool),
		Ready: func(ctx context.Context) error {
			return auth.Unavailable(pool.Ping(ctx))
		},
		Close: pool.Close,
	}
	if cfg.Store.Backend != config.BackendRedis {
		return backend, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Store.RedisAddr},
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	sessions := redisstore.New(client, redisstore.Options{KeyPrefix: cfg.Store.RedisKeyPrefix})
	if err := sessions.Ping(ctx); err != nil {
		_ = client.Close()
		pool.Close()
		return nil, oops.With("redis_addr", cfg.Store.RedisAddr).Wrap(err)
	}

	backend.Sessions = sessions
	backend.Ready = func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return auth.Unavailable(err)
		}
		return auth.Unavailable(sessions.Ping(ctx))
	}
	backend.Close = func() {
		if err := client.Close(); err != nil {
			logger.Debug("error closing redis client", "error", err)
		}
		pool.Close()
	}
	return backend, nil
}

// newService assembles the auth service for cfg on the opened stores.
func newService(cfg *config.Config, backend *Backend, metrics *auth.Metrics, logger *slog.Logger) (*auth.Service, error) {
	hasher, err := auth.NewHasher(cfg.HasherConfig())
	if err != nil {
		return nil, err //nolint:wrapcheck // auth errors already carry codes
	}
	codec, err := auth.NewJWTCodec(cfg.TokenCodecConfig())
	if err != nil {
		return nil, err //nolint:wrapcheck // auth errors already carry codes
	}
	//nolint:wrapcheck // auth errors already carry codes
	return auth.NewServiceWithLogger(backend.Subjects, backend.Sessions, hasher, codec, auth.ServiceConfig{
		SessionTTL: cfg.Session.TTL,
		Metrics:    metrics,
	}, logger)
}
