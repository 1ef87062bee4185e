package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Upstream      UpstreamConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	WebSocket     WebSocketConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Logging       LoggingConfig
	Cache         CacheConfig
	Notifications NotificationConfig
	Drafts        DraftConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

// UpstreamConfig points at the Mini-UPS REST API and its notification feed.
type UpstreamConfig struct {
	BaseURL      string
	WebSocketURL string
	Timeout      time.Duration

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
	BreakerMinRequests  uint32
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type CacheConfig struct {
	QuerySize int
}

type NotificationConfig struct {
	SyncPageSize  int
	SyncMaxPages  int
	SweepInterval time.Duration
}

type DraftConfig struct {
	BasePath     string
	CacheSizeMax uint64
}

func Load() (*Config, error) {
	godotenv.Load()

	upstreamTimeout, err := getEnvAsDuration("UPSTREAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	retryInitial, err := getEnvAsDuration("UPSTREAM_RETRY_INITIAL_INTERVAL", "200ms")
	if err != nil {
		return nil, err
	}
	retryMax, err := getEnvAsDuration("UPSTREAM_RETRY_MAX_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	breakerInterval, err := getEnvAsDuration("UPSTREAM_BREAKER_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := getEnvAsDuration("UPSTREAM_BREAKER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	writeWait, err := getEnvAsDuration("WS_WRITE_WAIT", "10s")
	if err != nil {
		return nil, err
	}
	pongWait, err := getEnvAsDuration("WS_PONG_WAIT", "60s")
	if err != nil {
		return nil, err
	}
	sweep, err := getEnvAsDuration("NOTIFICATION_SWEEP_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Upstream: UpstreamConfig{
			BaseURL:              getEnv("UPSTREAM_BASE_URL", "http://localhost:8081/api"),
			WebSocketURL:         getEnv("UPSTREAM_WS_URL", "ws://localhost:8081/ws/notifications"),
			Timeout:              upstreamTimeout,
			RetryMaxAttempts:     getEnvAsInt("UPSTREAM_RETRY_MAX_ATTEMPTS", 3),
			RetryInitialInterval: retryInitial,
			RetryMaxInterval:     retryMax,
			BreakerMaxRequests:   uint32(getEnvAsInt("UPSTREAM_BREAKER_MAX_REQUESTS", 3)),
			BreakerInterval:      breakerInterval,
			BreakerTimeout:       breakerTimeout,
			BreakerFailureRatio:  getEnvAsFloat("UPSTREAM_BREAKER_FAILURE_RATIO", 0.6),
			BreakerMinRequests:   uint32(getEnvAsInt("UPSTREAM_BREAKER_MIN_REQUESTS", 5)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "miniups_console"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 1048576)),
			WriteWait:       writeWait,
			PongWait:        pongWait,
			PingPeriod:      pongWait * 9 / 10,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		Cache: CacheConfig{
			QuerySize: getEnvAsInt("QUERY_CACHE_SIZE", 1024),
		},
		Notifications: NotificationConfig{
			SyncPageSize:  getEnvAsInt("NOTIFICATION_SYNC_PAGE_SIZE", 100),
			SyncMaxPages:  getEnvAsInt("NOTIFICATION_SYNC_MAX_PAGES", 10),
			SweepInterval: sweep,
		},
		Drafts: DraftConfig{
			BasePath:     getEnv("DRAFTS_PATH", "./data/drafts"),
			CacheSizeMax: uint64(getEnvAsInt("DRAFTS_CACHE_SIZE", 1024*1024)),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
