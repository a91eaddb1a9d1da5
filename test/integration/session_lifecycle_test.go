// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package integration

import (
	"context"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wardenauth/warden/internal/auth"
	authpg "github.com/wardenauth/warden/internal/auth/postgres"
	"github.com/wardenauth/warden/internal/grpcauth"
	"github.com/wardenauth/warden/internal/store"
)

const (
	testSecret = "integration-secret-0123456789abcdef"
	password   = "correct horse battery staple"
)

// testEnv holds a migrated database, the auth service on top of it and a
// gRPC server guarded by the session interceptors.
type testEnv struct {
	ctx        context.Context
	cancel     context.CancelFunc
	container  *postgres.PostgresContainer
	pool       *pgxpool.Pool
	subjects   *authpg.SubjectStore
	sessions   *authpg.SessionStore
	service    *auth.Service
	grpcServer *grpc.Server
	conn       *grpc.ClientConn
	health     healthpb.HealthClient
}

func setupTestEnv() *testEnv {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	var err error
	env.container, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := env.container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	env.pool, err = store.Connect(ctx, connStr, store.ConnectConfig{Attempts: 10})
	Expect(err).NotTo(HaveOccurred())

	env.subjects = authpg.NewSubjectStore(env.pool)
	env.sessions = authpg.NewSessionStore(env.pool)

	hasher, err := auth.NewHasher(auth.HasherConfig{Iterations: auth.MinIterations})
	Expect(err).NotTo(HaveOccurred())
	codec, err := auth.NewJWTCodec(auth.TokenConfig{
		Secret:   []byte(testSecret),
		Issuer:   "warden-integration",
		Audience: "warden-integration",
	})
	Expect(err).NotTo(HaveOccurred())
	env.service, err = auth.NewService(env.subjects, env.sessions, hasher, codec, auth.ServiceConfig{SessionTTL: time.Hour})
	Expect(err).NotTo(HaveOccurred())

	authenticator := grpcauth.New(env.service, grpcauth.WithPublicMethods("/grpc.health.v1.Health/Check"))
	env.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(authenticator.StreamInterceptor()),
	)
	healthpb.RegisterHealthServer(env.grpcServer, health.NewServer())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go func() { _ = env.grpcServer.Serve(listener) }()

	env.conn, err = grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	Expect(err).NotTo(HaveOccurred())
	env.health = healthpb.NewHealthClient(env.conn)

	return env
}

func (e *testEnv) teardown() {
	if e.conn != nil {
		_ = e.conn.Close()
	}
	if e.grpcServer != nil {
		e.grpcServer.Stop()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

func (e *testEnv) createSubject(login string) *auth.Subject {
	hasher, err := auth.NewHasher(auth.HasherConfig{Iterations: auth.MinIterations})
	Expect(err).NotTo(HaveOccurred())
	credential, err := hasher.Hash(password)
	Expect(err).NotTo(HaveOccurred())
	subject, err := e.subjects.Create(e.ctx, login, credential)
	Expect(err).NotTo(HaveOccurred())
	return subject
}

// callProtected makes a call that requires a session and returns its code.
func (e *testEnv) callProtected(token string) codes.Code {
	ctx := metadata.AppendToOutgoingContext(e.ctx, "authorization", "Bearer "+token)
	_, err := e.health.List(ctx, &healthpb.HealthListRequest{})
	return status.Code(err)
}

var _ = Describe("Session lifecycle", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		env = setupTestEnv()
	})

	AfterAll(func() {
		if env != nil {
			env.teardown()
		}
	})

	Describe("authenticating over gRPC", func() {
		It("admits a fresh session and rejects it after logout", func() {
			env.createSubject("alice")

			issued, err := env.service.Authenticate(env.ctx, "alice", password, auth.ClientInfo{
				SourceAddress: "198.51.100.4",
				DeviceInfo:    "integration",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.callProtected(issued.Token)).To(Equal(codes.OK))

			Expect(env.service.Logout(env.ctx, issued.Token)).To(Succeed())
			Expect(env.callProtected(issued.Token)).To(Equal(codes.Unauthenticated))
		})

		It("treats unknown logins and wrong passwords alike", func() {
			_, unknownErr := env.service.Authenticate(env.ctx, "nobody", password, auth.ClientInfo{})
			_, wrongErr := env.service.Authenticate(env.ctx, "alice", "wrong", auth.ClientInfo{})

			Expect(unknownErr).To(MatchError(auth.ErrInvalidCredentials))
			Expect(wrongErr).To(MatchError(auth.ErrInvalidCredentials))
			Expect(unknownErr.Error()).To(Equal(wrongErr.Error()))
		})

		It("lets health checks through without a token", func() {
			_, err := env.health.Check(env.ctx, &healthpb.HealthCheckRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.callProtected("")).To(Equal(codes.Unauthenticated))
		})
	})

	Describe("managing sessions", func() {
		var (
			subject *auth.Subject
			laptop  *auth.Issued
			phone   *auth.Issued
		)

		BeforeAll(func() {
			subject = env.createSubject("bob")

			var err error
			laptop, err = env.service.Authenticate(env.ctx, "bob", password, auth.ClientInfo{DeviceInfo: "laptop"})
			Expect(err).NotTo(HaveOccurred())
			phone, err = env.service.Authenticate(env.ctx, "bob", password, auth.ClientInfo{DeviceInfo: "phone"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists active sessions newest first", func() {
			sessions, err := env.service.ListActiveSessions(env.ctx, subject.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))
			Expect([]string{sessions[0].SessionID, sessions[1].SessionID}).
				To(ConsistOf(laptop.SessionID, phone.SessionID))
			Expect(sessions[0].IssuedAt).NotTo(BeTemporally("<", sessions[1].IssuedAt))
		})

		It("revokes every other session and keeps the current one", func() {
			n, err := env.service.LogoutAllOthers(env.ctx, subject.ID, laptop.SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNumerically("==", 1))

			Expect(env.callProtected(laptop.Token)).To(Equal(codes.OK))
			Expect(env.callProtected(phone.Token)).To(Equal(codes.Unauthenticated))
		})

		It("revokes all sessions when the password changes", func() {
			Expect(env.service.ChangePassword(env.ctx, subject.ID, password, "a new passphrase")).To(Succeed())
			Expect(env.callProtected(laptop.Token)).To(Equal(codes.Unauthenticated))

			_, err := env.service.Authenticate(env.ctx, "bob", password, auth.ClientInfo{})
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))

			issued, err := env.service.Authenticate(env.ctx, "bob", "a new passphrase", auth.ClientInfo{})
			Expect(err).NotTo(HaveOccurred())
			Expect(env.callProtected(issued.Token)).To(Equal(codes.OK))
		})
	})

	Describe("sweeping expired sessions", func() {
		It("deletes sessions past the retention period", func() {
			subject := env.createSubject("carol")
			expired, err := auth.NewSession(subject.ID, time.Hour, auth.ClientInfo{}, time.Now().Add(-50*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(env.sessions.Create(env.ctx, expired)).To(Succeed())

			sweeper, err := auth.NewSweeper(env.sessions, auth.SweeperConfig{Retention: 24 * time.Hour})
			Expect(err).NotTo(HaveOccurred())

			purged, err := sweeper.RunOnce(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(BeNumerically(">=", 1))

			var count int
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT count(*) FROM sessions WHERE id = $1", expired.ID).Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())
		})
	})
})
