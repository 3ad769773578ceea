package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Prefix            string
	Addr              string
	Store             string
	DatabaseURL       string
	AdminPassword     string
	AdminPasswordHash string
	MaxKeysPerHWID    int
	FallbackKeys      []string
	KeyLength         int
	MaxGenerate       int
	LogCapacity       int
	AuditRejected     bool
	AdminRateLimit    int
	GeoIPDB           string
	LogLevel          string
}

var AppConfig *Config

func LoadConfig() {
	_ = godotenv.Load() // Load from .env if it exists, ignore error if not

	AppConfig = &Config{
		Prefix:            getEnv("HWIDLOCK_PREFIX", "/api"),
		Addr:              getEnv("HWIDLOCK_ADDR", ":8080"),
		Store:             getEnv("HWIDLOCK_STORE", "sqlite"),
		DatabaseURL:       getEnv("HWIDLOCK_DATABASE_URL", "file:hwidlock.db?cache=shared&mode=rwc"),
		AdminPassword:     getEnv("HWIDLOCK_ADMIN_PASSWORD", ""),
		AdminPasswordHash: getEnv("HWIDLOCK_ADMIN_PASSWORD_HASH", ""),
		MaxKeysPerHWID:    getEnvInt("HWIDLOCK_MAX_KEYS_PER_HWID", 1),
		FallbackKeys:      getEnvList("HWIDLOCK_FALLBACK_KEYS"),
		KeyLength:         getEnvInt("HWIDLOCK_KEY_LENGTH", 16),
		MaxGenerate:       getEnvInt("HWIDLOCK_MAX_GENERATE", 50),
		LogCapacity:       getEnvInt("HWIDLOCK_LOG_CAPACITY", 1000),
		AuditRejected:     getEnvBool("HWIDLOCK_AUDIT_REJECTED", false),
		AdminRateLimit:    getEnvInt("HWIDLOCK_ADMIN_RATE_LIMIT", 60),
		GeoIPDB:           getEnv("HWIDLOCK_GEOIP_DB", ""),
		LogLevel:          getEnv("HWIDLOCK_LOG_LEVEL", "info"),
	}

	if AppConfig.MaxKeysPerHWID < 1 {
		AppConfig.MaxKeysPerHWID = 1
	}
	if AppConfig.AdminPassword == "" && AppConfig.AdminPasswordHash == "" {
		slog.Warn("HWIDLOCK_ADMIN_PASSWORD is not set, admin API is disabled")
	}
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
