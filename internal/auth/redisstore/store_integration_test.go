// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package redisstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/authtest"
	"github.com/wardenauth/warden/internal/auth/redisstore"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStore_Integration(t *testing.T) {
	client := startRedis(t)

	authtest.RunSessionStoreTests(t, func(t *testing.T) authtest.Harness {
		// A prefix per subtest isolates the expiry index between cases.
		store := redisstore.New(client, redisstore.Options{KeyPrefix: "test-" + ulid.Make().String()})
		require.NoError(t, store.Ping(context.Background()))
		return authtest.Harness{
			Sessions:   store,
			NewSubject: func(*testing.T) string { return ulid.Make().String() },
		}
	})
}

func TestStore_EvictsAtExpiry(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisstore.New(client, redisstore.Options{})

	now := time.Now().UTC().Truncate(time.Second)
	session, err := auth.NewSession(ulid.Make().String(), time.Hour, auth.ClientInfo{}, now)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, session))

	ttl, err := client.PTTL(ctx, fmt.Sprintf("%s:session:%s", redisstore.DefaultKeyPrefix, session.ID)).Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Until(session.ExpiresAt).Seconds(), ttl.Seconds(), 5)
}

func TestStore_PurgeBatches(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisstore.New(client, redisstore.Options{})
	subject := ulid.Make().String()

	issued := time.Now().UTC().Truncate(time.Second).Add(-48 * time.Hour)
	const count = 1200
	for range count {
		session, err := auth.NewSession(subject, time.Hour, auth.ClientInfo{}, issued)
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, session))
	}

	n, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(count), n)

	members, err := client.SCard(ctx, redisstore.DefaultKeyPrefix+":subject:"+subject+":sessions").Result()
	require.NoError(t, err)
	assert.Zero(t, members)
}
