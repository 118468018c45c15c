package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Sweep    SweepConfig
	Dispatch DispatchConfig
	Calendar CalendarConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SweepConfig tunes the reconciliation sweep.
type SweepConfig struct {
	IntervalSeconds int
	BatchSize       int
	Parallelism     int
	ClaimTTLSeconds int
}

// DispatchConfig tunes action dispatch retry behavior.
type DispatchConfig struct {
	MaxAttempts        int
	BackoffBaseMillis  int
	CallTimeoutSeconds int
}

// CalendarConfig points at the business calendar seed directory.
type CalendarConfig struct {
	SeedDir string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Sweep: SweepConfig{
			IntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60),
			BatchSize:       getEnvAsInt("SWEEP_BATCH_SIZE", 200),
			Parallelism:     getEnvAsInt("SWEEP_PARALLELISM", 8),
			ClaimTTLSeconds: getEnvAsInt("SWEEP_CLAIM_TTL_SECONDS", 30),
		},
		Dispatch: DispatchConfig{
			MaxAttempts:        getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
			BackoffBaseMillis:  getEnvAsInt("DISPATCH_BACKOFF_BASE_MILLIS", 250),
			CallTimeoutSeconds: getEnvAsInt("DISPATCH_CALL_TIMEOUT_SECONDS", 5),
		},
		Calendar: CalendarConfig{
			SeedDir: getEnv("CALENDAR_SEED_DIR", "calendars"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Interval returns the sweep period.
func (s SweepConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ClaimTTL returns how long a sweep claim on a ticket is held.
func (s SweepConfig) ClaimTTL() time.Duration {
	if s.ClaimTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ClaimTTLSeconds) * time.Second
}

// BackoffBase returns the initial retry backoff.
func (d DispatchConfig) BackoffBase() time.Duration {
	if d.BackoffBaseMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(d.BackoffBaseMillis) * time.Millisecond
}

// CallTimeout bounds a single collaborator call.
func (d DispatchConfig) CallTimeout() time.Duration {
	if d.CallTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.CallTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
