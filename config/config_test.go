package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("HWIDLOCK_PREFIX", "/test")
	os.Setenv("HWIDLOCK_MAX_KEYS_PER_HWID", "3")
	os.Setenv("HWIDLOCK_FALLBACK_KEYS", " ALPHA, ,BETA ")
	os.Setenv("HWIDLOCK_AUDIT_REJECTED", "true")
	defer func() {
		os.Unsetenv("HWIDLOCK_PREFIX")
		os.Unsetenv("HWIDLOCK_MAX_KEYS_PER_HWID")
		os.Unsetenv("HWIDLOCK_FALLBACK_KEYS")
		os.Unsetenv("HWIDLOCK_AUDIT_REJECTED")
	}()

	LoadConfig()

	if AppConfig.Prefix != "/test" {
		t.Errorf("Expected /test, got %s", AppConfig.Prefix)
	}
	if AppConfig.MaxKeysPerHWID != 3 {
		t.Errorf("Expected 3, got %d", AppConfig.MaxKeysPerHWID)
	}
	if len(AppConfig.FallbackKeys) != 2 || AppConfig.FallbackKeys[0] != "ALPHA" || AppConfig.FallbackKeys[1] != "BETA" {
		t.Errorf("Expected [ALPHA BETA], got %v", AppConfig.FallbackKeys)
	}
	if !AppConfig.AuditRejected {
		t.Error("Expected AuditRejected to be true")
	}

	// Default fallback
	os.Unsetenv("HWIDLOCK_LOG_CAPACITY")
	LoadConfig()
	if AppConfig.LogCapacity != 1000 {
		t.Errorf("Expected 1000, got %d", AppConfig.LogCapacity)
	}
	if AppConfig.KeyLength != 16 {
		t.Errorf("Expected 16, got %d", AppConfig.KeyLength)
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	os.Setenv("HWIDLOCK_MAX_KEYS_PER_HWID", "0")
	os.Setenv("HWIDLOCK_MAX_GENERATE", "lots")
	os.Setenv("HWIDLOCK_AUDIT_REJECTED", "maybe")
	defer func() {
		os.Unsetenv("HWIDLOCK_MAX_KEYS_PER_HWID")
		os.Unsetenv("HWIDLOCK_MAX_GENERATE")
		os.Unsetenv("HWIDLOCK_AUDIT_REJECTED")
	}()

	LoadConfig()

	if AppConfig.MaxKeysPerHWID != 1 {
		t.Errorf("Expected clamp to 1, got %d", AppConfig.MaxKeysPerHWID)
	}
	if AppConfig.MaxGenerate != 50 {
		t.Errorf("Expected 50, got %d", AppConfig.MaxGenerate)
	}
	if AppConfig.AuditRejected {
		t.Error("Expected AuditRejected to fall back to false")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
