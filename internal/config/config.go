package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Faultline server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Alerts   AlertsConfig
	Rollup   RollupConfig
	Sessions SessionsConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// AdminToken guards the admin surface (project and key provisioning).
	// Empty disables those routes entirely.
	AdminToken        string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the cache, locks, queues, and session tracker.
// An empty URL degrades every Redis-backed component to its inline/null
// variant rather than failing startup.
type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	EventWorkers   int
	LogWorkers     int
	TraceWorkers   int
	RollupWorkers  int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RollupDelay    time.Duration
}

type AlertsConfig struct {
	CheckInterval   time.Duration
	CooldownDefault time.Duration
	RuleSeedFile    string
	HTTPTimeout     time.Duration
}

type RollupConfig struct {
	QueryTimeout time.Duration
}

type SessionsConfig struct {
	LivenessTimeout time.Duration
}

type EmailConfig struct {
	SendgridAPIKey string
	FromAddress    string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("FAULTLINE_PORT", 8080),
			Env:               envString("FAULTLINE_ENV", "development"),
			AdminToken:        os.Getenv("FAULTLINE_ADMIN_TOKEN"),
			RequestsPerMinute: envInt("FAULTLINE_RATE_LIMIT_PER_MIN", 600),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			EventWorkers:   envInt("QUEUE_EVENT_WORKERS", 4),
			LogWorkers:     envInt("QUEUE_LOG_WORKERS", 2),
			TraceWorkers:   envInt("QUEUE_TRACE_WORKERS", 2),
			RollupWorkers:  envInt("QUEUE_ROLLUP_WORKERS", 2),
			MaxAttempts:    envInt("QUEUE_MAX_ATTEMPTS", 3),
			RetryBaseDelay: envDuration("QUEUE_RETRY_BASE_DELAY", 5*time.Second),
			RollupDelay:    envDuration("QUEUE_ROLLUP_DELAY", 60*time.Second),
		},
		Alerts: AlertsConfig{
			CheckInterval:   envDuration("ALERT_CHECK_INTERVAL", time.Minute),
			CooldownDefault: envDuration("ALERT_COOLDOWN_DEFAULT", 30*time.Minute),
			RuleSeedFile:    os.Getenv("ALERT_RULE_SEED_FILE"),
			HTTPTimeout:     envDuration("ALERT_HTTP_TIMEOUT", 10*time.Second),
		},
		Rollup: RollupConfig{
			QueryTimeout: envDuration("ROLLUP_QUERY_TIMEOUT", 30*time.Second),
		},
		Sessions: SessionsConfig{
			LivenessTimeout: envDuration("SESSION_LIVENESS_TIMEOUT", 2*time.Minute),
		},
		Email: EmailConfig{
			SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			FromAddress:    envString("ALERT_EMAIL_FROM", "alerts@faultline.local"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.EventWorkers < 1 || c.Queue.LogWorkers < 1 || c.Queue.TraceWorkers < 1 || c.Queue.RollupWorkers < 1 {
		return fmt.Errorf("queue worker counts must be at least 1")
	}

	if c.Alerts.CheckInterval < time.Second {
		return fmt.Errorf("ALERT_CHECK_INTERVAL must be at least 1s, got %s", c.Alerts.CheckInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
