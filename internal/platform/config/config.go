// Package config loads runtime configuration. An optional YAML file provides
// base values and environment variables override it.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration.
type Config struct {
	Server    Server
	Auth      Auth
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Captcha   CaptchaConfig
	Retention RetentionConfig
	Log       LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	Env  string
	// BootstrapAdmin creates the first admin account at startup when both
	// fields are set and the username is free.
	BootstrapAdminUser     string
	BootstrapAdminPassword string
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []netip.Prefix
}

// Auth configures token issuance, lockout and 2FA.
type Auth struct {
	JWTSigningKey   string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	TwoFactor       bool
	TwoFactorTTL    time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
}

// PostgresConfig selects Postgres-backed stores when URL is set.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	AutoMigrate  bool
}

// RedisConfig selects the shared rate-limit counter when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables audit streaming when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// CaptchaConfig configures the reCAPTCHA verifier.
type CaptchaConfig struct {
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

// RetentionConfig drives the in-process sweep scheduler. Zero disables it.
type RetentionConfig struct {
	SweepInterval time.Duration
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string
	Format string
}

const (
	DefaultAddr            = ":8080"
	DefaultEnv             = "development"
	DefaultIssuer          = "civicdesk"
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultTwoFactorTTL    = 5 * time.Minute
	DefaultMaxAttempts     = 5
	DefaultLockout         = 15 * time.Minute
	DefaultCaptchaURL      = "https://www.google.com/recaptcha/api/siteverify"
	DefaultCaptchaTimeout  = 5 * time.Second
	DefaultAuditTopic      = "civicdesk.activity-log"

	devSigningKey = "dev-secret-key-change-in-production"
)

var (
	ErrMissingSigningKey = errors.New("JWT_SIGNING_KEY is required outside development")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidInt        = errors.New("invalid integer")
	ErrInvalidProxy      = errors.New("invalid trusted proxy")
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. All validation
// errors are returned together.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := loader{k: k}
	cfg := &Config{
		Server: Server{
			Addr:                   l.str("CIVICDESK_ADDR", "server.addr", DefaultAddr),
			Env:                    l.str("CIVICDESK_ENV", "server.env", DefaultEnv),
			BootstrapAdminUser:     l.str("BOOTSTRAP_ADMIN_USER", "server.bootstrap_admin_user", ""),
			BootstrapAdminPassword: l.str("BOOTSTRAP_ADMIN_PASSWORD", "server.bootstrap_admin_password", ""),
			TrustedProxies:         l.prefixes("TRUSTED_PROXIES", "server.trusted_proxies"),
		},
		Auth: Auth{
			JWTSigningKey:   l.str("JWT_SIGNING_KEY", "auth.jwt_signing_key", ""),
			Issuer:          l.str("JWT_ISSUER", "auth.issuer", DefaultIssuer),
			AccessTokenTTL:  l.duration("ACCESS_TOKEN_TTL", "auth.access_token_ttl", DefaultAccessTokenTTL),
			RefreshTokenTTL: l.duration("REFRESH_TOKEN_TTL", "auth.refresh_token_ttl", DefaultRefreshTokenTTL),
			TwoFactor:       l.boolean("TWO_FACTOR_ENABLED", "auth.two_factor", false),
			TwoFactorTTL:    l.duration("TWO_FACTOR_TTL", "auth.two_factor_ttl", DefaultTwoFactorTTL),
			MaxAttempts:     l.integer("MAX_LOGIN_ATTEMPTS", "auth.max_attempts", DefaultMaxAttempts),
			LockoutDuration: l.duration("LOCKOUT_DURATION", "auth.lockout_duration", DefaultLockout),
		},
		Postgres: PostgresConfig{
			URL:          l.str("DATABASE_URL", "postgres.url", ""),
			MaxOpenConns: l.integer("DATABASE_MAX_OPEN_CONNS", "postgres.max_open_conns", 10),
			AutoMigrate:  l.boolean("DATABASE_AUTO_MIGRATE", "postgres.auto_migrate", true),
		},
		Redis: RedisConfig{
			URL:          l.str("REDIS_URL", "redis.url", ""),
			PoolSize:     l.integer("REDIS_POOL_SIZE", "redis.pool_size", 10),
			MinIdleConns: l.integer("REDIS_MIN_IDLE_CONNS", "redis.min_idle_conns", 2),
			DialTimeout:  l.duration("REDIS_DIAL_TIMEOUT", "redis.dial_timeout", 5*time.Second),
			ReadTimeout:  l.duration("REDIS_READ_TIMEOUT", "redis.read_timeout", 3*time.Second),
			WriteTimeout: l.duration("REDIS_WRITE_TIMEOUT", "redis.write_timeout", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    l.list("KAFKA_BROKERS", "kafka.brokers"),
			AuditTopic: l.str("KAFKA_AUDIT_TOPIC", "kafka.audit_topic", DefaultAuditTopic),
		},
		Captcha: CaptchaConfig{
			Secret:    l.str("RECAPTCHA_SECRET", "captcha.secret", ""),
			VerifyURL: l.str("RECAPTCHA_VERIFY_URL", "captcha.verify_url", DefaultCaptchaURL),
			Timeout:   l.duration("RECAPTCHA_TIMEOUT", "captcha.timeout", DefaultCaptchaTimeout),
		},
		Retention: RetentionConfig{
			SweepInterval: l.duration("RETENTION_SWEEP_INTERVAL", "retention.sweep_interval", 0),
		},
		Log: LogConfig{
			Level:  l.str("LOG_LEVEL", "log.level", "info"),
			Format: l.str("LOG_FORMAT", "log.format", ""),
		},
	}

	if cfg.Auth.JWTSigningKey == "" && cfg.IsDevelopment() {
		cfg.Auth.JWTSigningKey = devSigningKey
	}
	if cfg.Captcha.Timeout <= 0 || cfg.Captcha.Timeout > DefaultCaptchaTimeout {
		cfg.Captcha.Timeout = DefaultCaptchaTimeout
	}

	errs := append(l.errs, cfg.Validate()...)
	return cfg, errs
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == DefaultEnv
}

// Validate checks cross-field constraints.
func (c *Config) Validate() []error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, ErrMissingSigningKey)
	}
	if c.Auth.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: auth max attempts must be positive", ErrInvalidInt))
	}
	return errs
}

// loader resolves one setting from env, then koanf, then default, and
// collects parse errors instead of failing fast.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) raw(envKey, koanfKey string) (string, bool) {
	if val := os.Getenv(envKey); val != "" {
		return val, true
	}
	if l.k.Exists(koanfKey) {
		return l.k.String(koanfKey), true
	}
	return "", false
}

func (l *loader) str(envKey, koanfKey, def string) string {
	if val, ok := l.raw(envKey, koanfKey); ok && val != "" {
		return val
	}
	return def
}

func (l *loader) integer(envKey, koanfKey string, def int) int {
	val, ok := l.raw(envKey, koanfKey)
	if !ok || val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%w: %s=%q", ErrInvalidInt, envKey, val))
		return def
	}
	return n
}

func (l *loader) duration(envKey, koanfKey string, def time.Duration) time.Duration {
	val, ok := l.raw(envKey, koanfKey)
	if !ok || val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%w: %s=%q", ErrInvalidDuration, envKey, val))
		return def
	}
	return d
}

func (l *loader) boolean(envKey, koanfKey string, def bool) bool {
	val, ok := l.raw(envKey, koanfKey)
	if !ok || val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

func (l *loader) list(envKey, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return l.k.Strings(koanfKey)
}

// prefixes reads a list of CIDRs or bare addresses; a bare address becomes a
// single-host prefix.
func (l *loader) prefixes(envKey, koanfKey string) []netip.Prefix {
	var out []netip.Prefix
	for _, entry := range l.list(envKey, koanfKey) {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				l.errs = append(l.errs, fmt.Errorf("%w: %s=%q", ErrInvalidProxy, envKey, entry))
				continue
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%w: %s=%q", ErrInvalidProxy, envKey, entry))
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out
}
