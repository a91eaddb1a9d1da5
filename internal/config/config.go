// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package config loads warden configuration from defaults, an optional YAML
// file, WARDEN_* environment variables and command-line flags, in that
// order of precedence (flags win).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/wardenauth/warden/internal/auth"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: WARDEN_STORE__DATABASE_URL sets store.database_url.
const EnvPrefix = "WARDEN_"

// DatabaseURLEnv is read when no other source sets store.database_url.
const DatabaseURLEnv = "DATABASE_URL"

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is the full warden configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Token     TokenConfig     `koanf:"token"`
	Session   SessionConfig   `koanf:"session"`
	Hashing   HashingConfig   `koanf:"hashing"`
	Store     StoreConfig     `koanf:"store"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type ServerConfig struct {
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"` // empty disables the observability server
	// TLSCert and TLSKey are PEM files; both empty serves plaintext gRPC.
	TLSCert string `koanf:"tls_cert"`
	TLSKey  string `koanf:"tls_key"`
	// TLSClientCA, when set, requires client certificates signed by it.
	TLSClientCA string `koanf:"tls_client_ca"`
}

// TokenConfig holds the signing parameters. Secret is never logged.
type TokenConfig struct {
	Secret   string        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	Leeway   time.Duration `koanf:"leeway"`
}

type SessionConfig struct {
	TTL            time.Duration `koanf:"ttl"`
	SweepInterval  time.Duration `koanf:"sweep_interval"` // zero disables the sweeper
	SweepRetention time.Duration `koanf:"sweep_retention"`
}

type HashingConfig struct {
	Scheme     string `koanf:"scheme"`
	Iterations int    `koanf:"iterations"`
}

type StoreConfig struct {
	Backend        string `koanf:"backend"`
	DatabaseURL    string `koanf:"database_url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}

type TelemetryConfig struct {
	// OTLPEndpoint is a host:port for the OTLP/gRPC trace exporter. Empty
	// disables trace export.
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	Insecure     bool    `koanf:"insecure"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}

// Default returns the configuration used when nothing overrides it. The
// signing secret has no default.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Server: ServerConfig{
			GRPCAddr:    "localhost:9400",
			MetricsAddr: "127.0.0.1:9401",
		},
		Token: TokenConfig{
			Issuer:   "warden",
			Audience: "warden",
		},
		Session: SessionConfig{
			TTL:            auth.DefaultSessionTTL,
			SweepInterval:  auth.DefaultSweepInterval,
			SweepRetention: auth.DefaultSweepRetention,
		},
		Hashing: HashingConfig{
			Scheme:     auth.SchemePBKDF2,
			Iterations: auth.DefaultIterations,
		},
		Store: StoreConfig{
			Backend:        BackendPostgres,
			MaxConns:       10,
			ConnectRetries: 5,
			RedisAddr:      "localhost:6379",
		},
		Telemetry: TelemetryConfig{SampleRatio: 1},
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"log-format":      "log.format",
	"log-level":       "log.level",
	"grpc-addr":       "server.grpc_addr",
	"metrics-addr":    "server.metrics_addr",
	"tls-cert":        "server.tls_cert",
	"tls-key":         "server.tls_key",
	"tls-client-ca":   "server.tls_client_ca",
	"store":           "store.backend",
	"database-url":    "store.database_url",
	"redis-addr":      "store.redis_addr",
	"session-ttl":     "session.ttl",
	"sweep-interval":  "session.sweep_interval",
	"sweep-retention": "session.sweep_retention",
	"otlp-endpoint":   "telemetry.otlp_endpoint",
	"scheme":          "hashing.scheme",
	"iterations":      "hashing.iterations",
}

// Load builds the configuration. path may be empty; flags may be nil.
// Load does not validate: commands check the sections they use.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(auth.CodeConfigInvalid).
				With("path", path).
				Wrapf(err, "read config file")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code(auth.CodeConfigInvalid).Wrapf(err, "read environment")
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(auth.CodeConfigInvalid).Wrapf(err, "read flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(auth.CodeConfigInvalid).Wrapf(err, "decode config")
	}
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv(DatabaseURLEnv)
	}
	return &cfg, nil
}

// envKey maps WARDEN_STORE__DATABASE_URL to store.database_url.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

func invalid(field, msg string) error {
	return oops.Code(auth.CodeConfigInvalid).With("field", field).Wrapf(auth.ErrConfiguration, "%s", msg)
}

// Validate checks every field the server depends on. Errors wrap
// auth.ErrConfiguration.
func (c *Config) Validate() error {
	switch {
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log format must be json or text")
	case len(c.Token.Secret) < auth.MinSecretBytes:
		return invalid("token.secret", "signing secret must be at least 32 bytes")
	case c.Token.Issuer == "" || c.Token.Audience == "":
		return invalid("token.issuer", "token issuer and audience are required")
	case c.Token.Leeway < 0 || c.Token.Leeway > auth.MaxLeeway:
		return invalid("token.leeway", "token leeway must be between 0s and 30s")
	case c.Session.TTL < time.Second:
		return invalid("session.ttl", "session TTL must be at least one second")
	case c.Session.SweepInterval < 0 || c.Session.SweepRetention < 0:
		return invalid("session.sweep_interval", "sweep durations must not be negative")
	case c.Hashing.Iterations < auth.MinIterations:
		return invalid("hashing.iterations", "hashing iterations below minimum")
	case c.Hashing.Scheme != auth.SchemePBKDF2 && c.Hashing.Scheme != auth.SchemeArgon2id:
		return invalid("hashing.scheme", "unsupported hashing scheme")
	case c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1:
		return invalid("telemetry.sample_ratio", "sample ratio must be between 0 and 1")
	case (c.Server.TLSCert == "") != (c.Server.TLSKey == ""):
		return invalid("server.tls_cert", "tls_cert and tls_key must be set together")
	case c.Server.TLSClientCA != "" && c.Server.TLSCert == "":
		return invalid("server.tls_client_ca", "client certificate verification needs a server certificate")
	}

	return c.ValidateStore()
}

// ValidateStore checks the store section alone. Subjects always live in
// Postgres unless the backend is memory, so redis needs a database URL too.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case BackendPostgres:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return invalid("store.redis_addr", "redis address is required for the redis backend")
		}
	case BackendMemory:
		return nil
	default:
		return invalid("store.backend", "store backend must be postgres, redis or memory")
	}
	if c.Store.DatabaseURL == "" {
		return invalid("store.database_url", "database URL is required for the "+c.Store.Backend+" backend")
	}
	return nil
}

// TokenCodecConfig converts the token section for auth.NewJWTCodec.
func (c *Config) TokenCodecConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   []byte(c.Token.Secret),
		Issuer:   c.Token.Issuer,
		Audience: c.Token.Audience,
		Leeway:   c.Token.Leeway,
	}
}

// HasherConfig converts the hashing section for auth.NewHasher.
func (c *Config) HasherConfig() auth.HasherConfig {
	return auth.HasherConfig{Scheme: c.Hashing.Scheme, Iterations: c.Hashing.Iterations}
}
