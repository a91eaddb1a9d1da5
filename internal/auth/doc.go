// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package auth issues bearer session tokens, validates them against a
// revocable server-side session store, and manages password credentials.
//
// # Domain Types
//
// Sessions should be created with NewSession, which allocates a random
// 256-bit identifier and aligns the timestamps with token precision.
// Direct struct initialization bypasses validation and may create invalid
// state. Store implementations receive pre-validated sessions.
//
// # Components
//
//   - Hasher - salted PBKDF2-SHA256 credentials with legacy argon2id/bcrypt verification
//   - JWTCodec - HS256 tokens binding a subject to a session
//   - SessionStore - persistence contract, implemented by the postgres,
//     redisstore and memstore packages
//   - Service - authenticate, validate, logout, password change and
//     session management
//   - Sweeper - periodic purge of expired sessions
//
// A session is active while it is not revoked and its expiry lies in the
// future. Both expiry and revocation are terminal.
package auth
