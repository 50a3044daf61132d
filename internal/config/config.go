package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"flowmetrics-mcp/internal/jira"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Jira jira.Config

	// Metric and payload cache lifetime.
	CacheTTL time.Duration

	// Paging and retry tuning for the fetch coordinator.
	FetchPageSize    int
	FetchMaxAttempts int
	FetchRetryBase   time.Duration
	FetchRetryMax    time.Duration
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	if err == nil {
		envPath := filepath.Join(filepath.Dir(exePath), ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	delaySecs := getEnvInt("JIRA_REQUEST_DELAY_SECONDS", 10)
	ttlMinutes := getEnvInt("CACHE_TTL_MINUTES", 15)

	cfg := &AppConfig{
		Jira: jira.Config{
			BaseURL:      getEnv("JIRA_URL", ""),
			XsrfToken:    getEnv("JIRA_XSRF_TOKEN", ""),
			SessionID:    getEnv("JIRA_SESSION_ID", ""),
			RememberMe:   getEnv("JIRA_REMEMBERME_COOKIE", ""),
			Token:        getEnv("JIRA_TOKEN", ""),
			GCILB:        getEnv("JIRA_GCILB", ""),
			GCLB:         getEnv("JIRA_GCLB", ""),
			RequestDelay: time.Duration(delaySecs) * time.Second,
		},
		CacheTTL:         time.Duration(ttlMinutes) * time.Minute,
		FetchPageSize:    getEnvInt("FETCH_PAGE_SIZE", 100),
		FetchMaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 4),
		FetchRetryBase:   time.Duration(getEnvInt("FETCH_RETRY_BASE_MS", 500)) * time.Millisecond,
		FetchRetryMax:    time.Duration(getEnvInt("FETCH_RETRY_MAX_MS", 30000)) * time.Millisecond,
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric environment value")
	}
	return fallback
}
