package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Redis RedisConfig

	Protocol ProtocolConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ProtocolConfig tunes the ack-then-callback pipeline.
type ProtocolConfig struct {
	// CallbackDelay emulates network/processing latency before a callback
	// fires. Zero in production.
	CallbackDelay time.Duration
	// CallbackTimeout bounds the outbound HTTP call per callback.
	CallbackTimeout time.Duration
	// DedupTTL bounds the in-process dedup cache entries.
	DedupTTL time.Duration
	// IdempotencyTTL bounds idempotency-key locks and cached responses.
	IdempotencyTTL time.Duration
	// WorkerQueueSize bounds the async task queue.
	WorkerQueueSize int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	callbackDelay := time.Duration(0)
	if environment != "production" {
		callbackDelay = getenvDuration("PROTOCOL_CALLBACK_DELAY", 150*time.Millisecond)
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "voltra"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "voltra"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 32),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},

		Protocol: ProtocolConfig{
			CallbackDelay:   callbackDelay,
			CallbackTimeout: getenvDuration("PROTOCOL_CALLBACK_TIMEOUT", 10*time.Second),
			DedupTTL:        getenvDuration("PROTOCOL_DEDUP_TTL", 15*time.Minute),
			IdempotencyTTL:  getenvDuration("IDEMPOTENCY_TTL", 5*time.Minute),
			WorkerQueueSize: getenvInt("PROTOCOL_WORKER_QUEUE", 256),
		},
	}
}

// Module wires configuration for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTradingConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
