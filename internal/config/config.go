package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Analysis service
	AnalysisAPIURL  string
	AnalysisTimeout time.Duration

	// Sessions
	SessionStore string
	SessionTTL   time.Duration

	// Redis
	RedisURL string

	// Rate limiting
	RateLimitPerMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "3000"),
		Env:             getEnvOrDefault("ENV", "development"),
		AnalysisAPIURL:  getEnvOrDefault("ANALYSIS_API_URL", "http://localhost:8000"),
		AnalysisTimeout: getEnvAsDurationOrDefault("ANALYSIS_TIMEOUT", 0),
		SessionStore:    getEnvOrDefault("SESSION_STORE", "memory"),
		SessionTTL:      getEnvAsDurationOrDefault("SESSION_TTL", 2*time.Hour),
		RedisURL:        getEnvOrDefault("REDIS_URL", ""),
		RateLimitPerMin: getEnvAsIntOrDefault("RATE_LIMIT_PER_MIN", 30),
	}

	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 2 * time.Hour
	}

	if cfg.SessionStore == "redis" {
		cfg.RedisURL = mustGetEnv("REDIS_URL")
	}

	return cfg
}

// ClientConfig is the subset of settings the terminal client needs.
type ClientConfig struct {
	AnalysisAPIURL  string
	AnalysisTimeout time.Duration
}

func LoadClient() *ClientConfig {
	godotenv.Load()

	return &ClientConfig{
		AnalysisAPIURL:  getEnvOrDefault("ANALYSIS_API_URL", "http://localhost:8000"),
		AnalysisTimeout: getEnvAsDurationOrDefault("ANALYSIS_TIMEOUT", 0),
	}
}

// UseRedis reports whether sessions and live updates go through Redis.
func (c *Config) UseRedis() bool {
	return c.SessionStore == "redis"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
