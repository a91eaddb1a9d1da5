// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/pkg/errutil"
)

// newTestHasher uses the minimum iteration count to keep tests fast.
func newTestHasher(t *testing.T) *auth.Hasher {
	t.Helper()
	h, err := auth.NewHasher(auth.HasherConfig{Iterations: auth.MinIterations})
	require.NoError(t, err)
	return h
}

func TestNewHasher_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     auth.HasherConfig
		wantErr bool
	}{
		{name: "zero value uses defaults", cfg: auth.HasherConfig{}},
		{name: "minimum iterations", cfg: auth.HasherConfig{Iterations: auth.MinIterations}},
		{name: "argon2id scheme", cfg: auth.HasherConfig{Scheme: auth.SchemeArgon2id}},
		{name: "too few iterations", cfg: auth.HasherConfig{Iterations: auth.MinIterations - 1}, wantErr: true},
		{name: "negative iterations", cfg: auth.HasherConfig{Iterations: -5}, wantErr: true},
		{name: "unknown scheme", cfg: auth.HasherConfig{Scheme: "md5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := auth.NewHasher(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, h)
				assert.ErrorIs(t, err, auth.ErrConfiguration)
				errutil.AssertErrorCode(t, err, auth.CodeConfigInvalid)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

func TestHasher_Hash(t *testing.T) {
	hasher := newTestHasher(t)

	t.Run("produces pbkdf2 encoding", func(t *testing.T) {
		encoded, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(encoded, "$pbkdf2-sha256$i=10000$"))

		parts := strings.Split(encoded, "$")
		require.Len(t, parts, 5)
		salt, err := base64.RawStdEncoding.DecodeString(parts[3])
		require.NoError(t, err)
		assert.Len(t, salt, 32, "salt must carry at least 256 bits")
		key, err := base64.RawStdEncoding.DecodeString(parts[4])
		require.NoError(t, err)
		assert.Len(t, key, 32)
	})

	t.Run("same password produces different encodings", func(t *testing.T) {
		first, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		second, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("argon2id scheme", func(t *testing.T) {
		h, err := auth.NewHasher(auth.HasherConfig{Scheme: auth.SchemeArgon2id})
		require.NoError(t, err)

		encoded, err := h.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.True(t, h.Verify("password123", encoded))
	})
}

func TestHasher_Verify(t *testing.T) {
	hasher := newTestHasher(t)

	passwords := []string{"", "a", "correct horse battery staple", "pässwörd-ünïcode", strings.Repeat("x", 200)}
	for _, p := range passwords {
		t.Run("round trip "+truncate(p), func(t *testing.T) {
			encoded, err := hasher.Hash(p)
			require.NoError(t, err)
			assert.True(t, hasher.Verify(p, encoded))
			assert.False(t, hasher.Verify(p+"!", encoded))
		})
	}

	t.Run("flipped key byte fails", func(t *testing.T) {
		encoded, err := hasher.Hash("password123")
		require.NoError(t, err)

		parts := strings.Split(encoded, "$")
		key, err := base64.RawStdEncoding.DecodeString(parts[4])
		require.NoError(t, err)
		key[len(key)-1] ^= 0x01
		parts[4] = base64.RawStdEncoding.EncodeToString(key)

		assert.False(t, hasher.Verify("password123", strings.Join(parts, "$")))
	})
}

func TestHasher_Verify_Malformed(t *testing.T) {
	hasher := newTestHasher(t)
	valid, err := hasher.Hash("password123")
	require.NoError(t, err)
	parts := strings.Split(valid, "$")

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: ""},
		{name: "garbage", encoded: "not-a-hash"},
		{name: "unknown scheme", encoded: "$md5$abc$def"},
		{name: "too few segments", encoded: "$pbkdf2-sha256$i=10000$" + parts[3]},
		{name: "too many segments", encoded: valid + "$extra"},
		{name: "missing iteration prefix", encoded: "$pbkdf2-sha256$10000$" + parts[3] + "$" + parts[4]},
		{name: "non-numeric iterations", encoded: "$pbkdf2-sha256$i=ten$" + parts[3] + "$" + parts[4]},
		{name: "zero iterations", encoded: "$pbkdf2-sha256$i=0$" + parts[3] + "$" + parts[4]},
		{name: "excessive iterations", encoded: "$pbkdf2-sha256$i=999999999$" + parts[3] + "$" + parts[4]},
		{name: "bad salt encoding", encoded: "$pbkdf2-sha256$i=10000$!!!$" + parts[4]},
		{name: "short salt", encoded: "$pbkdf2-sha256$i=10000$AAAA$" + parts[4]},
		{name: "bad key encoding", encoded: "$pbkdf2-sha256$i=10000$" + parts[3] + "$!!!"},
		{name: "truncated key", encoded: "$pbkdf2-sha256$i=10000$" + parts[3] + "$AAAA"},
		{name: "argon2id bad params", encoded: "$argon2id$v=19$m=bad$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "argon2id excessive memory", encoded: "$argon2id$v=19$m=99999999,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "argon2id zero threads", encoded: "$argon2id$v=19$m=65536,t=1,p=0$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "argon2id wrong version", encoded: "$argon2id$v=16$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "truncated bcrypt", encoded: "$2a$10$short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, hasher.Verify("password123", tt.encoded))
			})
			assert.True(t, hasher.NeedsRehash(tt.encoded))
		})
	}
}

func TestHasher_LegacySchemes(t *testing.T) {
	hasher := newTestHasher(t)

	t.Run("argon2id credential verifies and needs rehash", func(t *testing.T) {
		argon, err := auth.NewHasher(auth.HasherConfig{Scheme: auth.SchemeArgon2id})
		require.NoError(t, err)
		encoded, err := argon.Hash("legacy-password")
		require.NoError(t, err)

		assert.True(t, hasher.Verify("legacy-password", encoded))
		assert.False(t, hasher.Verify("other-password", encoded))
		assert.True(t, hasher.NeedsRehash(encoded))
	})

	t.Run("bcrypt credential verifies and needs rehash", func(t *testing.T) {
		encoded, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
		require.NoError(t, err)

		assert.True(t, hasher.Verify("legacy-password", string(encoded)))
		assert.False(t, hasher.Verify("other-password", string(encoded)))
		assert.True(t, hasher.NeedsRehash(string(encoded)))
	})
}

func TestHasher_NeedsRehash(t *testing.T) {
	weak := newTestHasher(t)
	strong, err := auth.NewHasher(auth.HasherConfig{Iterations: 2 * auth.MinIterations})
	require.NoError(t, err)

	weakHash, err := weak.Hash("password123")
	require.NoError(t, err)
	strongHash, err := strong.Hash("password123")
	require.NoError(t, err)

	assert.False(t, weak.NeedsRehash(weakHash))
	assert.False(t, weak.NeedsRehash(strongHash), "stronger parameters are kept")
	assert.True(t, strong.NeedsRehash(weakHash))
	assert.False(t, strong.NeedsRehash(strongHash))

	// Lower iteration counts still verify so the upgrade can happen on login.
	assert.True(t, strong.Verify("password123", weakHash))
}

func truncate(s string) string {
	if r := []rune(s); len(r) > 16 {
		return string(r[:16])
	}
	if s == "" {
		return "empty"
	}
	return s
}
