// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Supported primary schemes.
const (
	SchemePBKDF2   = "pbkdf2-sha256"
	SchemeArgon2id = "argon2id"
)

// PBKDF2 parameters. The iteration count is configurable; salt and key
// lengths are fixed.
const (
	MinIterations     = 10_000
	DefaultIterations = 600_000
	maxIterations     = 10_000_000 // stored hashes above this are treated as corrupt

	credentialSaltLen = 32
	credentialKeyLen  = 32
)

// argon2id parameters used when argon2id is the primary scheme.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4

	argon2MaxMemory = 1 << 20 // 1 GiB in KiB
	argon2MaxTime   = 16

	bcryptMaxCost = 16
)

// CredentialHasher produces and verifies encoded password credentials.
type CredentialHasher interface {
	// Hash returns an encoded credential with a fresh random salt.
	// It fails only when the entropy source fails.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches the encoded credential.
	// Malformed credentials never match.
	Verify(plaintext, encoded string) bool

	// NeedsRehash reports whether the credential was produced with a
	// legacy scheme or weaker parameters than the current configuration.
	NeedsRehash(encoded string) bool
}

// HasherConfig selects the primary hashing scheme.
type HasherConfig struct {
	Scheme     string
	Iterations int
}

// Hasher implements CredentialHasher. New credentials use the configured
// primary scheme; argon2id and bcrypt credentials are still verified so
// they can be upgraded on the next successful login.
type Hasher struct {
	scheme     string
	iterations int
}

// NewHasher creates a Hasher. An empty scheme selects PBKDF2-SHA256 and a
// zero iteration count selects DefaultIterations.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = SchemePBKDF2
	}
	if scheme != SchemePBKDF2 && scheme != SchemeArgon2id {
		return nil, oops.Code(CodeConfigInvalid).
			With("scheme", scheme).
			Wrapf(ErrConfiguration, "unsupported hashing scheme")
	}

	iterations := cfg.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < MinIterations || iterations > maxIterations {
		return nil, oops.Code(CodeConfigInvalid).
			With("iterations", iterations).
			With("min", MinIterations).
			Wrapf(ErrConfiguration, "hashing iterations out of range")
	}

	return &Hasher{scheme: scheme, iterations: iterations}, nil
}

// Hash returns an encoded credential for plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, credentialSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashFailed).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", credentialSaltLen).
			Wrap(err)
	}

	if h.scheme == SchemeArgon2id {
		key := argon2.IDKey([]byte(plaintext), salt, argon2Time, argon2Memory, argon2Threads, credentialKeyLen)
		return encodeArgon2id(argon2Memory, argon2Time, argon2Threads, salt, key), nil
	}

	key := pbkdf2.Key([]byte(plaintext), salt, h.iterations, credentialKeyLen, sha256.New)
	return encodePBKDF2(h.iterations, salt, key), nil
}

// Verify reports whether plaintext matches encoded.
func (h *Hasher) Verify(plaintext, encoded string) bool {
	switch {
	case strings.HasPrefix(encoded, "$"+SchemePBKDF2+"$"):
		p, ok := parsePBKDF2(encoded)
		if !ok {
			return false
		}
		computed := pbkdf2.Key([]byte(plaintext), p.salt, p.iterations, len(p.key), sha256.New)
		return subtle.ConstantTimeCompare(computed, p.key) == 1

	case strings.HasPrefix(encoded, "$"+SchemeArgon2id+"$"):
		p, ok := parseArgon2id(encoded)
		if !ok {
			return false
		}
		computed := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // key length bounded by parseArgon2id
		return subtle.ConstantTimeCompare(computed, p.key) == 1

	case isBcrypt(encoded):
		cost, err := bcrypt.Cost([]byte(encoded))
		if err != nil || cost > bcryptMaxCost {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext)) == nil
	}
	return false
}

// NeedsRehash reports whether encoded should be replaced by a fresh hash.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if h.scheme == SchemeArgon2id {
		p, ok := parseArgon2id(encoded)
		if !ok {
			return true
		}
		return p.memory < argon2Memory || p.time < argon2Time ||
			len(p.salt) < credentialSaltLen || len(p.key) != credentialKeyLen
	}

	p, ok := parsePBKDF2(encoded)
	if !ok {
		return true
	}
	return p.iterations < h.iterations || len(p.salt) != credentialSaltLen || len(p.key) != credentialKeyLen
}

type pbkdf2Params struct {
	iterations int
	salt       []byte
	key        []byte
}

// $pbkdf2-sha256$i=<iterations>$<salt>$<key>
func encodePBKDF2(iterations int, salt, key []byte) string {
	return fmt.Sprintf("$%s$i=%d$%s$%s",
		SchemePBKDF2,
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func parsePBKDF2(encoded string) (pbkdf2Params, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != SchemePBKDF2 {
		return pbkdf2Params{}, false
	}

	raw, found := strings.CutPrefix(parts[2], "i=")
	if !found {
		return pbkdf2Params{}, false
	}
	iterations, err := strconv.Atoi(raw)
	if err != nil || iterations < 1 || iterations > maxIterations {
		return pbkdf2Params{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) < 16 {
		return pbkdf2Params{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) < 16 || len(key) > 64 {
		return pbkdf2Params{}, false
	}

	return pbkdf2Params{iterations: iterations, salt: salt, key: key}, true
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func encodeArgon2id(memory, time uint32, threads uint8, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		SchemeArgon2id,
		argon2.Version,
		memory,
		time,
		threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func parseArgon2id(encoded string) (argon2Params, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != SchemeArgon2id {
		return argon2Params{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, false
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Params{}, false
	}
	// Bound the work a corrupt or hostile stored hash can request.
	if memory == 0 || memory > argon2MaxMemory || time == 0 || time > argon2MaxTime ||
		threads == 0 || threads > 255 {
		return argon2Params{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return argon2Params{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 64 {
		return argon2Params{}, false
	}

	return argon2Params{
		memory:  memory,
		time:    time,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, true
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// Compile-time interface check.
var _ CredentialHasher = (*Hasher)(nil)
