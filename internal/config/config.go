// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audit transports.
const (
	AuditDirect = "direct" // session rows written straight to MySQL
	AuditAMQP   = "amqp"   // session events published to RabbitMQ
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (dev, test, prod)
	Port     string // HTTP port to listen on
	LogLevel string // debug, info, warn, error

	DBUser string
	DBPass string // empty allowed
	DBHost string
	DBPort string
	DBName string

	JWTSecret       string        // signs staff (user kind) tokens
	ClientJWTSecret string        // signs mobile client tokens
	TokenTTL        time.Duration // staff token lifetime
	ClientTokenTTL  time.Duration // client token lifetime
	BcryptCost      int

	SessionRetention time.Duration // audit rows older than this are swept
	CleanupInterval  time.Duration // how often the sweep runs
	AuditTimeout     time.Duration // bound on a single audit write
	UserStoreTimeout time.Duration // bound on principal lookups per request

	AuditTransport string // AuditDirect or AuditAMQP
	RabbitURL      string
	AuditQueue     string

	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// IsProd reports whether the app runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

// Load reads configuration values from environment variables. Every missing
// or malformed required variable is reported in the returned error.
func Load() (Config, error) {
	l := &loader{}
	cfg := Config{
		Env:      l.must("APP_ENV"),
		Port:     l.must("APP_PORT"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DBUser: l.must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: l.must("DB_HOST"),
		DBPort: l.must("DB_PORT"),
		DBName: l.must("DB_NAME"),

		JWTSecret:       l.must("JWT_SECRET"),
		ClientJWTSecret: l.must("CLIENT_JWT_SECRET"),
		TokenTTL:        l.dur("TOKEN_TTL", 24*time.Hour),
		ClientTokenTTL:  l.dur("CLIENT_TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:      l.num("BCRYPT_COST", 10),

		SessionRetention: l.dur("SESSION_RETENTION", 30*24*time.Hour),
		CleanupInterval:  l.dur("SESSION_CLEANUP_INTERVAL", time.Hour),
		AuditTimeout:     l.dur("AUDIT_TIMEOUT", 3*time.Second),
		UserStoreTimeout: l.dur("USER_STORE_TIMEOUT", 2*time.Second),

		AuditTransport: strings.ToLower(envStr("AUDIT_TRANSPORT", AuditDirect)),
		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		AuditQueue:     envStr("AUDIT_QUEUE", "session_events"),

		Redis:     LoadRedisConfig(),
		RateLimit: LoadRateLimitConfig(),
	}

	if cfg.JWTSecret != "" && cfg.JWTSecret == cfg.ClientJWTSecret {
		l.fail("CLIENT_JWT_SECRET must differ from JWT_SECRET")
	}
	switch cfg.AuditTransport {
	case AuditDirect:
	case AuditAMQP:
		if cfg.RabbitURL == "" {
			l.fail("RABBITMQ_URL is required when AUDIT_TRANSPORT=amqp")
		}
	default:
		l.fail("invalid AUDIT_TRANSPORT %q", cfg.AuditTransport)
	}
	return cfg, l.err()
}

// LoadDatabase reads only what the maintenance commands need: the MySQL
// connection, the retention window and the audit queue.
func LoadDatabase() (Config, error) {
	l := &loader{}
	cfg := Config{
		Env:              envStr("APP_ENV", "dev"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		DBUser:           l.must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"),
		DBHost:           l.must("DB_HOST"),
		DBPort:           l.must("DB_PORT"),
		DBName:           l.must("DB_NAME"),
		SessionRetention: l.dur("SESSION_RETENTION", 30*24*time.Hour),
		AuditTimeout:     l.dur("AUDIT_TIMEOUT", 3*time.Second),
		RabbitURL:        os.Getenv("RABBITMQ_URL"),
		AuditQueue:       envStr("AUDIT_QUEUE", "session_events"),
	}
	return cfg, l.err()
}

// loader collects problems instead of stopping at the first one.
type loader struct{ errs []error }

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

func (l *loader) err() error { return errors.Join(l.errs...) }

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail("missing required env var: %s", key)
	}
	return v
}

// num reads an optional integer, recording an error when it is malformed.
func (l *loader) num(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail("invalid int for %s: %q", key, s)
		return def
	}
	return n
}

// dur reads an optional positive duration such as "24h".
func (l *loader) dur(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		l.fail("invalid duration for %s: %q", key, s)
		return def
	}
	return d
}
