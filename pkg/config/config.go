// Package config loads runtime configuration from the environment (and an
// optional .env file), with defaults for every optional setting.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-tunable knob this proxy recognizes.
type Config struct {
	RequiredAPIKey string
	ServerPort     string
	Host           string

	KiroOAuthCredsFilePath string
	KiroOAuthCredsBase64   string
	AccountPoolFilePath    string

	MaxErrorCount     int
	RequestMaxRetries int
	RequestBaseDelay  time.Duration

	CronNearMinutes  int
	CronRefreshToken bool

	EnableThinkingByDefault bool
	UseSystemProxyKiro      bool
	EnableVerboseLogging    bool
	EnableTelemetry         bool
	OTLPEndpoint            string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables always take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RequiredAPIKey:         os.Getenv("REQUIRED_API_KEY"),
		ServerPort:             envOrDefault("SERVER_PORT", "8080"),
		Host:                   envOrDefault("HOST", "0.0.0.0"),
		KiroOAuthCredsFilePath: os.Getenv("KIRO_OAUTH_CREDS_FILE_PATH"),
		KiroOAuthCredsBase64:   os.Getenv("KIRO_OAUTH_CREDS_BASE64"),
		AccountPoolFilePath:    envOrDefault("ACCOUNT_POOL_FILE_PATH", "accounts.json"),

		MaxErrorCount:     parseIntEnv("MAX_ERROR_COUNT", 3),
		RequestMaxRetries: parseIntEnv("REQUEST_MAX_RETRIES", 3),
		RequestBaseDelay:  parseDurationEnv("REQUEST_BASE_DELAY", 1*time.Second),

		CronNearMinutes:  parseIntEnv("CRON_NEAR_MINUTES", 10),
		CronRefreshToken: parseBoolEnv("CRON_REFRESH_TOKEN", true),

		EnableThinkingByDefault: parseBoolEnv("ENABLE_THINKING_BY_DEFAULT", false),
		UseSystemProxyKiro:      parseBoolEnv("USE_SYSTEM_PROXY_KIRO", false),
		EnableVerboseLogging:    parseBoolEnv("ENABLE_VERBOSE_LOGGING", false),
		EnableTelemetry:         parseBoolEnv("ENABLE_TELEMETRY", false),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseIntEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
