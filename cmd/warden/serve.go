// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/grpcauth"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/internal/telemetry"
	tlscerts "github.com/wardenauth/warden/internal/tls"
)

// Health methods callers may use without a session.
const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session service",
		Long: `Run the gRPC server that authenticates calls with session tokens,
the metrics and health endpoints, and the expired-session sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	flags := cmd.Flags()
	flags.String("grpc-addr", defaults.Server.GRPCAddr, "gRPC listen address")
	flags.String("metrics-addr", defaults.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.Duration("session-ttl", defaults.Session.TTL, "lifetime of new sessions")
	flags.Duration("sweep-interval", defaults.Session.SweepInterval, "time between expired-session sweeps (0 = disabled)")
	flags.Duration("sweep-retention", defaults.Session.SweepRetention, "how long expired sessions are kept")
	flags.String("otlp-endpoint", "", "OTLP/gRPC trace collector (empty = disabled)")
	flags.String("tls-cert", "", "gRPC server certificate (PEM); empty serves plaintext")
	flags.String("tls-key", "", "gRPC server private key (PEM)")
	flags.String("tls-client-ca", "", "require client certificates signed by this CA (PEM)")
	addStoreFlags(flags)

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled, a signal
// arrives, or a server fails. If deps is nil, default implementations are
// used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendOpener == nil {
		deps.BackendOpener = openBackend
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return oops.Wrapf(err, "set up logging")
	}

	logger.Info("starting warden",
		"version", version,
		"store", cfg.Store.Backend,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	tracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return oops.Wrapf(err, "set up tracing")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend, err := deps.BackendOpener(ctx, cfg, logger)
	if err != nil {
		return oops.With("store", cfg.Store.Backend).Wrapf(err, "open store")
	}
	defer backend.Close()

	var (
		obsServer ObservabilityServer
		registry  prometheus.Registerer = prometheus.NewRegistry()
	)
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, backend.Ready, logger)
		registry = obsServer.Registry()
	}
	metrics := auth.NewMetrics(registry)

	service, err := newService(cfg, backend, metrics, logger)
	if err != nil {
		return oops.Wrapf(err, "create auth service")
	}

	if cfg.Session.SweepInterval > 0 {
		sweeper, err := auth.NewSweeper(backend.Sessions, auth.SweeperConfig{
			Interval:  cfg.Session.SweepInterval,
			Retention: cfg.Session.SweepRetention,
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			return oops.Wrapf(err, "create sweeper")
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	serverOpts := []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
	if cfg.Server.TLSCert != "" {
		tlsConfig, err := tlscerts.LoadServerConfig(cfg.Server.TLSCert, cfg.Server.TLSKey, cfg.Server.TLSClientCA)
		if err != nil {
			return oops.Wrapf(err, "load TLS configuration")
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		logger.Info("gRPC TLS enabled", "client_auth", cfg.Server.TLSClientCA != "")
	} else {
		logger.Warn("gRPC TLS disabled; bearer tokens travel in plaintext")
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.GRPCAddr).Wrap(err)
	}

	// Only the health service is registered here. Host services that expose
	// session operations register on a server built with the same
	// grpcauth.Authenticator interceptors.
	authenticator := grpcauth.New(service,
		grpcauth.WithLogger(logger),
		grpcauth.WithPublicMethods(healthCheckMethod, healthWatchMethod),
	)
	grpcServer := grpc.NewServer(append(serverOpts,
		grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(authenticator.StreamInterceptor()),
	)...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			_ = listener.Close()
			return oops.Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil {
			errChan <- serveErr
		}
	}()

	cmd.Println("warden started")
	logger.Info("warden ready", "grpc_addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		serveErr = oops.Code("GRPC_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
