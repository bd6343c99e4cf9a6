// Package config loads runtime settings from the environment and the plan
// catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Mail      MailConfig
	Notify    NotifyConfig
	Lifecycle LifecycleConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Jobs      JobsConfig
	Audit     AuditConfig
	Log       LogConfig
	PlansFile string `env:"PLANS_FILE,default=config/plans.yaml"`
}

type ServerConfig struct {
	Addr            string        `env:"SERVER_ADDR,default=:5000"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT,default=60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=20s"`
}

// DatabaseConfig selects the store. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE,default=true"`
}

type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"JWT_TTL,default=168h"`
	ResetURL      string        `env:"PASSWORD_RESET_URL,default=http://localhost:3000/reset-password"`
	AdminEmail    string        `env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string        `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// MailConfig selects the email transport: "smtp", "relay" or "log".
type MailConfig struct {
	Transport    string        `env:"MAIL_TRANSPORT,default=log"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT,default=587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	From         string        `env:"MAIL_FROM"`
	RelayURL     string        `env:"MAIL_RELAY_URL"`
	RelayAPIKey  string        `env:"MAIL_RELAY_API_KEY"`
	Timeout      time.Duration `env:"MAIL_TIMEOUT,default=10s"`
}

type NotifyConfig struct {
	Mode      string        `env:"NOTIFY_EMAIL_MODE,default=inline"`
	QueueSize int           `env:"NOTIFY_QUEUE_SIZE,default=256"`
	Workers   int           `env:"NOTIFY_WORKERS,default=2"`
	Retries   int           `env:"NOTIFY_RETRIES,default=2"`
	Backoff   time.Duration `env:"NOTIFY_BACKOFF,default=2s"`
}

type LifecycleConfig struct {
	StrictTransitions bool `env:"LIFECYCLE_STRICT_TRANSITIONS,default=false"`
}

type RateLimitConfig struct {
	Enabled           bool          `env:"RATE_LIMIT_ENABLED,default=true"`
	RequestsPerSecond float64       `env:"RATE_LIMIT_RPS,default=20"`
	Burst             int           `env:"RATE_LIMIT_BURST,default=40"`
	IdleTTL           time.Duration `env:"RATE_LIMIT_IDLE_TTL,default=10m"`
}

// AuditConfig controls the admin audit trail. An empty path keeps it in
// memory only.
type AuditConfig struct {
	Path string `env:"AUDIT_LOG_PATH"`
	Size int    `env:"AUDIT_LOG_SIZE,default=500"`
}

type CORSConfig struct {
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
}

// Origins splits the comma-separated allow-list.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type JobsConfig struct {
	Enabled        bool   `env:"JOBS_ENABLED,default=true"`
	LimiterCleanup string `env:"JOBS_LIMITER_CLEANUP,default=@every 10m"`
	PendingDigest  string `env:"JOBS_PENDING_DIGEST,default=0 8 * * *"`
	Timezone       string `env:"JOBS_TIMEZONE,default=UTC"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// Load reads the given .env files, skipping missing ones, then decodes the
// environment.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv decodes the process environment without reading .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be set to at least 16 characters")
	}
	switch c.Mail.Transport {
	case "log":
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp mail transport")
		}
	case "relay":
		if c.Mail.RelayURL == "" {
			return fmt.Errorf("MAIL_RELAY_URL is required for the relay mail transport")
		}
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport)
	}
	switch c.Notify.Mode {
	case "inline", "background":
	default:
		return fmt.Errorf("unknown NOTIFY_EMAIL_MODE %q", c.Notify.Mode)
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}
