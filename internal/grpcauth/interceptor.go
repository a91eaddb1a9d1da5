// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package grpcauth authenticates gRPC calls with session tokens.
package grpcauth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/pkg/errutil"
)

// Outward messages. Every unauthorized cause gets the same one.
const (
	msgUnauthenticated = "unauthenticated"
	msgUnavailable     = "authentication temporarily unavailable"
	msgInternal        = "internal error"
)

const (
	authorizationHeader = "authorization"
	bearerPrefix        = "bearer "
)

// Validator checks a session token.
type Validator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

type claimsKey struct{}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims of the authenticated caller.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithPublicMethods lets the named full methods (for example
// "/grpc.health.v1.Health/Check") through without a token.
func WithPublicMethods(methods ...string) Option {
	return func(a *Authenticator) {
		for _, m := range methods {
			a.public[m] = struct{}{}
		}
	}
}

// WithLogger sets the logger for rejected calls.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Authenticator builds interceptors that validate bearer tokens.
type Authenticator struct {
	validator Validator
	public    map[string]struct{}
	logger    *slog.Logger
}

// New creates an Authenticator.
func New(validator Validator, opts ...Option) *Authenticator {
	a := &Authenticator{
		validator: validator,
		public:    make(map[string]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// UnaryInterceptor authenticates unary calls.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streaming calls once, at stream start.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

func (a *Authenticator) authenticate(ctx context.Context, method string) (context.Context, error) {
	if _, ok := a.public[method]; ok {
		return ctx, nil
	}

	token, ok := bearerToken(ctx)
	if !ok {
		a.logger.DebugContext(ctx, "missing bearer token", "method", method)
		return nil, status.Error(codes.Unauthenticated, msgUnauthenticated)
	}

	claims, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, a.toStatus(ctx, method, err)
	}
	return WithClaims(ctx, claims), nil
}

func (a *Authenticator) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case auth.IsUnauthorized(err):
		a.logger.InfoContext(ctx, "request rejected", "method", method, "reason", err.Error())
		return status.Error(codes.Unauthenticated, msgUnauthenticated)
	case auth.IsRetryable(err):
		errutil.Log(ctx, a.logger.With("method", method), slog.LevelWarn, "session validation unavailable", err)
		return status.Error(codes.Unavailable, msgUnavailable)
	default:
		errutil.Log(ctx, a.logger.With("method", method), slog.LevelError, "session validation failed", err)
		return status.Error(codes.Internal, msgInternal)
	}
}

// bearerToken extracts the token from the authorization metadata. The
// scheme is case-insensitive.
func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return "", false
	}
	header := values[0]
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
