package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Dedup backends selectable via DEDUP_BACKEND.
const (
	DedupBackendMemory   = "memory"
	DedupBackendRedis    = "redis"
	DedupBackendPostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Google AI (Gemini)
	GoogleAIAPIKey  string
	GeminiModelID   string
	GenerateTimeout time.Duration

	// BlueBubbles server
	BlueBubblesURL      string
	BlueBubblesPassword string

	// Duplicate-delivery suppression
	DedupBackend  string
	DedupCapacity int
	DedupTTL      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	DatabaseURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GoogleAIAPIKey:  getEnv("GOOGLE_AI_API_KEY", ""),
		GeminiModelID:   getEnv("GEMINI_MODEL_ID", "gemini-2.0-flash-exp"),
		GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 30*time.Second),

		BlueBubblesURL:      getEnv("BLUEBUBBLES_URL", ""),
		BlueBubblesPassword: getEnv("BLUEBUBBLES_PASSWORD", ""),

		DedupBackend:  strings.ToLower(strings.TrimSpace(getEnv("DEDUP_BACKEND", DedupBackendMemory))),
		DedupCapacity: getEnvAsInt("DEDUP_CAPACITY", 10000),
		DedupTTL:      getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
