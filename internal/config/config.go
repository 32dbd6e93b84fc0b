package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	Email    EmailConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type SecurityConfig struct {
	Session   SessionConfig
	Throttle  ThrottleConfig
	RateLimit RateLimitConfig
	Threat    ThreatConfig
	Retention RetentionConfig
	Timing    TimingConfig
}

type SessionConfig struct {
	TTL          time.Duration
	CookieSecure bool
	SameSite     string
}

type ThrottleConfig struct {
	MaxFailedAttempts int
	Window            time.Duration
}

type RateLimitConfig struct {
	Backend       string // "postgres" or "redis"
	MaxRequests   int
	Window        time.Duration
	LoginBurstMax int // in-memory per-IP cap on POST /auth/login, per minute
}

type ThreatConfig struct {
	Lookback              time.Duration
	SuspiciousIPThreshold int
	MonitorInterval       time.Duration
}

type RetentionConfig struct {
	LoginAttempts   time.Duration
	SecurityEvents  time.Duration
	CleanupInterval time.Duration
}

type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

type EmailConfig struct {
	Enabled         bool
	AWSRegion       string
	FromAddress     string
	FromName        string
	AdminRecipients []string
	SendsPerSecond  float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "alumnigate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Security: SecurityConfig{
			Session: SessionConfig{
				TTL:          getEnvAsDuration("SESSION_TTL", 8*time.Hour),
				CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", true),
				SameSite:     getEnv("SESSION_COOKIE_SAMESITE", "lax"),
			},
			Throttle: ThrottleConfig{
				MaxFailedAttempts: getEnvAsInt("LOGIN_MAX_FAILED_ATTEMPTS", 5),
				Window:            getEnvAsDuration("LOGIN_THROTTLE_WINDOW", 15*time.Minute),
			},
			RateLimit: RateLimitConfig{
				Backend:       getEnv("RATE_LIMIT_BACKEND", "postgres"),
				MaxRequests:   getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),
				Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
				LoginBurstMax: getEnvAsInt("LOGIN_BURST_MAX_PER_MINUTE", 20),
			},
			Threat: ThreatConfig{
				Lookback:              getEnvAsDuration("THREAT_LOOKBACK", time.Hour),
				SuspiciousIPThreshold: getEnvAsInt("THREAT_SUSPICIOUS_IP_THRESHOLD", 10),
				MonitorInterval:       getEnvAsDuration("THREAT_MONITOR_INTERVAL", 5*time.Minute),
			},
			Retention: RetentionConfig{
				LoginAttempts:   getEnvAsDuration("RETENTION_LOGIN_ATTEMPTS", 30*24*time.Hour),
				SecurityEvents:  getEnvAsDuration("RETENTION_SECURITY_EVENTS", 90*24*time.Hour),
				CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
			},
			Timing: TimingConfig{
				BaseDelayMs:   getEnvAsInt("REJECTION_BASE_DELAY_MS", 500),
				RandomDelayMs: getEnvAsInt("REJECTION_RANDOM_DELAY_MS", 250),
			},
		},
		Email: EmailConfig{
			Enabled:         getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			FromAddress:     getEnv("ALERT_EMAIL_FROM", ""),
			FromName:        getEnv("ALERT_EMAIL_FROM_NAME", "Alumni Portal Security"),
			AdminRecipients: getEnvAsList("ALERT_ADMIN_RECIPIENTS"),
			SendsPerSecond:  getEnvAsFloat("ALERT_EMAIL_SENDS_PER_SECOND", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_SECURITY_EVENTS_TOPIC", "security-events"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	sec := c.Security
	if sec.Throttle.MaxFailedAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_FAILED_ATTEMPTS must be positive")
	}
	if sec.Throttle.Window <= 0 || sec.RateLimit.Window <= 0 || sec.Threat.Lookback <= 0 {
		return fmt.Errorf("throttle, rate limit and threat windows must be positive")
	}
	if sec.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	switch sec.RateLimit.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be postgres or redis (got %q)", sec.RateLimit.Backend)
	}

	if c.Email.Enabled {
		if c.Email.FromAddress == "" {
			return fmt.Errorf("ALERT_EMAIL_FROM is required when alert email is enabled")
		}
		if len(c.Email.AdminRecipients) == 0 {
			return fmt.Errorf("ALERT_ADMIN_RECIPIENTS is required when alert email is enabled")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka publishing is enabled")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
