package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/orgadmin/pkg/backup"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/gateway/pgstore"
	"github.com/platinummonkey/orgadmin/pkg/gateway/redisstore"
	"github.com/platinummonkey/orgadmin/pkg/middleware"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

// Gateway backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Session providers
const (
	SessionHeader = "header"
	SessionOIDC   = "oidc"
)

// Backup sinks
const (
	SinkFilesystem = "filesystem"
	SinkS3         = "s3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Session       SessionConfig       `yaml:"session"`
	Backup        BackupConfig        `yaml:"backup"`
	ImportWatch   ImportWatchConfig   `yaml:"import_watch"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxBodyBytes     int64                      `yaml:"max_body_bytes"`
	AllowedOrigins   []string                   `yaml:"allowed_origins"`
	RateLimitEnabled bool                       `yaml:"rate_limit_enabled"`
	RateLimit        middleware.RateLimitConfig `yaml:"rate_limit"`
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// GatewayConfig selects and tunes the remote store. LocalPath, when set,
// opens a SQLite local fallback store used for settings reads and
// local to remote migration.
type GatewayConfig struct {
	Backend    string              `yaml:"backend"`
	Postgres   pgstore.Config      `yaml:"postgres"`
	Redis      redisstore.Config   `yaml:"redis"`
	SQLitePath string              `yaml:"sqlite_path"`
	LocalPath  string              `yaml:"local_path"`
	Retry      gateway.RetryConfig `yaml:"retry"`
	Cache      gateway.CacheConfig `yaml:"cache"`
	CacheOn    bool                `yaml:"cache_enabled"`
}

// SessionConfig selects how requests are bound to an account
type SessionConfig struct {
	Provider string             `yaml:"provider"`
	OIDC     session.OIDCConfig `yaml:"oidc"`
}

// BackupConfig schedules bundle backups
type BackupConfig struct {
	Enabled bool            `yaml:"enabled"`
	Sink    string          `yaml:"sink"`
	Dir     string          `yaml:"dir"`
	S3      backup.S3Config `yaml:"s3"`
	Runner  backup.Config   `yaml:"runner"`
}

// ImportWatchConfig configures the bundle drop folder
type ImportWatchConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	Delay   time.Duration `yaml:"delay"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	LogFormat      string                   `yaml:"log_format"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
			RateLimit:       middleware.DefaultRateLimitConfig(),
		},
		Gateway: GatewayConfig{
			Backend: BackendMemory,
			Redis:   redisstore.Config{URL: "redis://localhost:6379/0", Prefix: "orgadmin"},
			Retry:   gateway.DefaultRetryConfig(),
			Cache:   gateway.DefaultCacheConfig(),
		},
		Session: SessionConfig{Provider: SessionHeader},
		Backup: BackupConfig{
			Sink:   SinkFilesystem,
			Dir:    "backups",
			S3:     backup.S3Config{Region: "us-east-1"},
			Runner: backup.DefaultConfig(),
		},
		ImportWatch: ImportWatchConfig{
			Dir:   "imports",
			Delay: 2 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      string(observability.JSONFormat),
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "orgadmin",
				ServiceVersion: "1.0.0",
				Insecure:       true,
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and ORGADMIN_* environment variables, in that order, then
// validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg with the environment
func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("ORGADMIN_HOST", s.Host)
	s.Port = getEnv("ORGADMIN_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("ORGADMIN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("ORGADMIN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("ORGADMIN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("ORGADMIN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	if origins := getEnv("ORGADMIN_ALLOWED_ORIGINS", ""); origins != "" {
		s.AllowedOrigins = strings.Split(origins, ",")
	}
	s.RateLimitEnabled = getEnvBool("ORGADMIN_RATE_LIMIT_ENABLED", s.RateLimitEnabled)
	s.RateLimit.RequestsPerWindow = getEnvInt("ORGADMIN_RATE_LIMIT_REQUESTS", s.RateLimit.RequestsPerWindow)
	s.RateLimit.WindowDuration = getEnvDuration("ORGADMIN_RATE_LIMIT_WINDOW", s.RateLimit.WindowDuration)

	g := &cfg.Gateway
	g.Backend = strings.ToLower(getEnv("ORGADMIN_GATEWAY", g.Backend))
	g.Postgres.URL = getEnv("ORGADMIN_POSTGRES_URL", g.Postgres.URL)
	g.Postgres.MaxConns = getEnvInt("ORGADMIN_POSTGRES_MAX_CONNS", g.Postgres.MaxConns)
	g.Postgres.MinConns = getEnvInt("ORGADMIN_POSTGRES_MIN_CONNS", g.Postgres.MinConns)
	g.Postgres.Timeout = getEnvDuration("ORGADMIN_POSTGRES_TIMEOUT", g.Postgres.Timeout)
	g.Redis.URL = getEnv("ORGADMIN_REDIS_URL", g.Redis.URL)
	g.Redis.Password = getEnv("ORGADMIN_REDIS_PASSWORD", g.Redis.Password)
	g.Redis.DB = getEnvInt("ORGADMIN_REDIS_DB", g.Redis.DB)
	g.Redis.PoolSize = getEnvInt("ORGADMIN_REDIS_POOL_SIZE", g.Redis.PoolSize)
	g.Redis.Prefix = getEnv("ORGADMIN_REDIS_PREFIX", g.Redis.Prefix)
	g.SQLitePath = getEnv("ORGADMIN_SQLITE_PATH", g.SQLitePath)
	g.LocalPath = getEnv("ORGADMIN_LOCAL_PATH", g.LocalPath)
	g.Retry.MaxAttempts = getEnvInt("ORGADMIN_RETRY_MAX_ATTEMPTS", g.Retry.MaxAttempts)
	g.CacheOn = getEnvBool("ORGADMIN_CACHE_ENABLED", g.CacheOn)
	g.Cache.TTL = getEnvDuration("ORGADMIN_CACHE_TTL", g.Cache.TTL)

	ss := &cfg.Session
	ss.Provider = strings.ToLower(getEnv("ORGADMIN_SESSION_PROVIDER", ss.Provider))
	ss.OIDC.IssuerURL = getEnv("ORGADMIN_OIDC_ISSUER", ss.OIDC.IssuerURL)
	ss.OIDC.ClientID = getEnv("ORGADMIN_OIDC_CLIENT_ID", ss.OIDC.ClientID)
	ss.OIDC.ClientSecret = getEnv("ORGADMIN_OIDC_CLIENT_SECRET", ss.OIDC.ClientSecret)
	ss.OIDC.RedirectURL = getEnv("ORGADMIN_OIDC_REDIRECT_URL", ss.OIDC.RedirectURL)

	b := &cfg.Backup
	b.Enabled = getEnvBool("ORGADMIN_BACKUP_ENABLED", b.Enabled)
	b.Sink = strings.ToLower(getEnv("ORGADMIN_BACKUP_SINK", b.Sink))
	b.Dir = getEnv("ORGADMIN_BACKUP_DIR", b.Dir)
	b.Runner.Schedule = getEnv("ORGADMIN_BACKUP_SCHEDULE", b.Runner.Schedule)
	b.Runner.AuditRetention = getEnvDuration("ORGADMIN_AUDIT_RETENTION", b.Runner.AuditRetention)
	b.S3.Bucket = getEnv("ORGADMIN_S3_BUCKET", b.S3.Bucket)
	b.S3.Region = getEnv("ORGADMIN_S3_REGION", b.S3.Region)
	b.S3.Endpoint = getEnv("ORGADMIN_S3_ENDPOINT", b.S3.Endpoint)
	b.S3.AccessKey = getEnv("ORGADMIN_S3_ACCESS_KEY", b.S3.AccessKey)
	b.S3.SecretKey = getEnv("ORGADMIN_S3_SECRET_KEY", b.S3.SecretKey)
	b.S3.UsePathStyle = getEnvBool("ORGADMIN_S3_USE_PATH_STYLE", b.S3.UsePathStyle)

	w := &cfg.ImportWatch
	w.Enabled = getEnvBool("ORGADMIN_IMPORT_WATCH_ENABLED", w.Enabled)
	w.Dir = getEnv("ORGADMIN_IMPORT_WATCH_DIR", w.Dir)

	o := &cfg.Observability
	o.LogLevel = getEnv("ORGADMIN_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("ORGADMIN_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("ORGADMIN_METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("ORGADMIN_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("ORGADMIN_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("ORGADMIN_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.Insecure = getEnvBool("ORGADMIN_OTEL_INSECURE", o.OTel.Insecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.RateLimitEnabled && (c.Server.RateLimit.RequestsPerWindow < 1 || c.Server.RateLimit.WindowDuration <= 0) {
		return fmt.Errorf("rate limit requires a positive request count and window")
	}

	switch c.Gateway.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Gateway.Postgres.URL == "" {
			return fmt.Errorf("postgres URL is required for the postgres gateway")
		}
	case BackendRedis:
		if c.Gateway.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis gateway")
		}
	case BackendSQLite:
		if c.Gateway.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite gateway")
		}
	default:
		return fmt.Errorf("invalid gateway backend: %s (must be memory, postgres, redis, or sqlite)", c.Gateway.Backend)
	}
	if c.Gateway.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}

	switch c.Session.Provider {
	case SessionHeader:
	case SessionOIDC:
		if c.Session.OIDC.IssuerURL == "" || c.Session.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC issuer and client id are required for the oidc session provider")
		}
	default:
		return fmt.Errorf("invalid session provider: %s (must be header or oidc)", c.Session.Provider)
	}

	if c.Backup.Enabled {
		switch c.Backup.Sink {
		case SinkFilesystem:
			if c.Backup.Dir == "" {
				return fmt.Errorf("backup directory is required for the filesystem sink")
			}
		case SinkS3:
			if c.Backup.S3.Bucket == "" {
				return fmt.Errorf("S3 bucket is required for the s3 sink")
			}
		default:
			return fmt.Errorf("invalid backup sink: %s (must be filesystem or s3)", c.Backup.Sink)
		}
	}

	if c.ImportWatch.Enabled && c.ImportWatch.Dir == "" {
		return fmt.Errorf("import watch directory is required when import watch is enabled")
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
