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
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	LogFormat              string
	AggregationWorkers     int
	AggregationQueueSize   int
	AggregationJobTimeout  time.Duration
	ReportTimezone         string
	SeedFile               string
	FanoutTimeout          time.Duration
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	ShutdownTimeout        time.Duration
	SyncRateLimitPerMinute int
	LoginRateLimitPerMin   int
}

// Load reads .env when present, then the process environment. Variables already set in
// the environment win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0, 0),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		AggregationWorkers:     getInt("AGGREGATION_WORKERS", 2, 1),
		AggregationQueueSize:   getInt("AGGREGATION_QUEUE_SIZE", 256, 1),
		AggregationJobTimeout:  getDuration("AGGREGATION_JOB_TIMEOUT", 30*time.Second),
		ReportTimezone:         getEnv("REPORT_TIMEZONE", "UTC"),
		SeedFile:               os.Getenv("SEED_FILE"),
		FanoutTimeout:          getDuration("FANOUT_TIMEOUT", 2*time.Second),
		ReadTimeout:            getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:           getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:            getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:        getDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		SyncRateLimitPerMinute: getInt("SYNC_RATE_LIMIT_PER_MINUTE", 120, 1),
		LoginRateLimitPerMin:   getInt("LOGIN_RATE_LIMIT_PER_MINUTE", 5, 1),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves ReportTimezone, falling back to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
