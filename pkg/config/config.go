package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Sessions SessionsConfig
	Sweeper  SweeperConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
	IOTimeout   time.Duration
	KeyPrefix   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionsConfig tunes scheduling defaults and the cancellation cascade.
type SessionsConfig struct {
	WaitlistDefault bool
	ClassCacheTTL   time.Duration
	CascadeWorkers  int
	CascadeRetries  int
	CascadeDrain    time.Duration
}

// SweeperConfig controls the periodic status transition job.
type SweeperConfig struct {
	Enabled        bool
	Interval       time.Duration
	BatchSize      int
	ReconcileGrace time.Duration
}

// EventsConfig governs outward fact delivery.
type EventsConfig struct {
	Enabled       bool
	Channel       string
	Workers       int
	Retries       int
	RatePerSec    int
	RelayInterval time.Duration
	RelayGrace    time.Duration
	RelayBatch    int
	DrainTimeout  time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Enabled:     v.GetBool("ENABLE_REDIS"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
		IOTimeout:   parseDuration(v.GetString("REDIS_IO_TIMEOUT"), time.Second),
		KeyPrefix:   v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sessions = SessionsConfig{
		WaitlistDefault: v.GetBool("SESSIONS_WAITLIST_DEFAULT"),
		ClassCacheTTL:   parseDuration(v.GetString("CLASS_CACHE_TTL"), 10*time.Minute),
		CascadeWorkers:  positiveOr(v.GetInt("CASCADE_WORKERS"), 2),
		CascadeRetries:  positiveOr(v.GetInt("CASCADE_RETRIES"), 3),
		CascadeDrain:    parseDuration(v.GetString("CASCADE_DRAIN_TIMEOUT"), 10*time.Second),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:        v.GetBool("ENABLE_SWEEPER"),
		Interval:       parseDuration(v.GetString("SWEEPER_INTERVAL"), time.Minute),
		BatchSize:      positiveOr(v.GetInt("SWEEPER_BATCH_SIZE"), 200),
		ReconcileGrace: parseDuration(v.GetString("SWEEPER_RECONCILE_GRACE"), 2*time.Minute),
	}

	cfg.Events = EventsConfig{
		Enabled:       v.GetBool("ENABLE_EVENTS"),
		Channel:       v.GetString("EVENTS_CHANNEL"),
		Workers:       positiveOr(v.GetInt("EVENTS_WORKERS"), 2),
		Retries:       positiveOr(v.GetInt("EVENTS_RETRIES"), 5),
		RatePerSec:    positiveOr(v.GetInt("EVENTS_RATE_PER_SEC"), 50),
		RelayInterval: parseDuration(v.GetString("EVENTS_RELAY_INTERVAL"), 30*time.Second),
		RelayGrace:    parseDuration(v.GetString("EVENTS_RELAY_GRACE"), time.Minute),
		RelayBatch:    positiveOr(v.GetInt("EVENTS_RELAY_BATCH"), 100),
		DrainTimeout:  parseDuration(v.GetString("EVENTS_DRAIN_TIMEOUT"), 10*time.Second),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "class_sessions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "2s")
	v.SetDefault("REDIS_IO_TIMEOUT", "1s")
	v.SetDefault("REDIS_KEY_PREFIX", "class-session")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSIONS_WAITLIST_DEFAULT", true)
	v.SetDefault("CLASS_CACHE_TTL", "10m")
	v.SetDefault("CASCADE_WORKERS", 2)
	v.SetDefault("CASCADE_RETRIES", 3)
	v.SetDefault("CASCADE_DRAIN_TIMEOUT", "10s")

	v.SetDefault("ENABLE_SWEEPER", true)
	v.SetDefault("SWEEPER_INTERVAL", "1m")
	v.SetDefault("SWEEPER_BATCH_SIZE", 200)
	v.SetDefault("SWEEPER_RECONCILE_GRACE", "2m")

	v.SetDefault("ENABLE_EVENTS", true)
	v.SetDefault("EVENTS_CHANNEL", "class-sessions.events")
	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_RETRIES", 5)
	v.SetDefault("EVENTS_RATE_PER_SEC", 50)
	v.SetDefault("EVENTS_RELAY_INTERVAL", "30s")
	v.SetDefault("EVENTS_RELAY_GRACE", "1m")
	v.SetDefault("EVENTS_RELAY_BATCH", 100)
	v.SetDefault("EVENTS_DRAIN_TIMEOUT", "10s")

	v.SetDefault("ENABLE_METRICS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
