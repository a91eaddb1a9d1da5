// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef-test-secret")

// fakeClock is a manually advanced clock shared by codec and service.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *fakeClock) *auth.JWTCodec {
	t.Helper()
	codec, err := auth.NewJWTCodec(auth.TokenConfig{
		Secret:   testSecret,
		Issuer:   "warden-test",
		Audience: "warden-clients",
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	return codec
}
