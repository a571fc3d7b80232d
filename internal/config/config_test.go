package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every key Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_PATH", "JWT_SECRET", "TOKEN_TTL", "DEFAULT_TTL_HOURS", "MIN_MEMBERS_TO_START",
		"GROUP_DISCOUNT_PERCENT", "GROUP_DISCOUNT_MIN_PARTICIPANTS", "SWEEP_INTERVAL",
		"SELECTION_STALE_AFTER", "CLOSING_STALE_AFTER", "REAP_AFTER", "CATALOG_PATH",
		"AMQP_URL", "AMQP_EXCHANGE", "ORDERS_QUEUE_URL", "AWS_REGION", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 || cfg.DBPath != "./data/grouporder.db" {
		t.Errorf("Unexpected server defaults %+v", cfg)
	}
	if cfg.Engine.DefaultTTL != 24*time.Hour || cfg.Engine.MinMembersToStart != 1 {
		t.Errorf("Unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Engine.Discount.Enabled() {
		t.Error("Expected the group discount to be off by default")
	}
	if cfg.Sweep.SelectionStaleAfter != 6*time.Hour || cfg.Sweep.ReapAfter != 168*time.Hour {
		t.Errorf("Unexpected sweep defaults %+v", cfg.Sweep)
	}
	if cfg.AMQPURL != "" || cfg.OrdersQueueURL != "" {
		t.Error("Expected optional integrations to be off by default")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"JWT_SECRET=from-file",
		"PORT=9090",
		"DEFAULT_TTL_HOURS=2",
		"GROUP_DISCOUNT_PERCENT=25",
		"SELECTION_STALE_AFTER=30m",
		"LOG_FORMAT=json",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	// Process env wins over the file.
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("Expected secret from file, got %q", cfg.JWTSecret)
	}
	if cfg.Port != 7070 {
		t.Errorf("Expected env to override file, got port %d", cfg.Port)
	}
	if cfg.Engine.DefaultTTL != 2*time.Hour {
		t.Errorf("Expected 2h ttl, got %v", cfg.Engine.DefaultTTL)
	}
	if cfg.Engine.Discount.Percent != 25 || cfg.Engine.Discount.MinParticipants != 2 {
		t.Errorf("Unexpected discount %+v", cfg.Engine.Discount)
	}
	if cfg.Sweep.SelectionStaleAfter != 30*time.Minute {
		t.Errorf("Expected 30m staleness, got %v", cfg.Sweep.SelectionStaleAfter)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("Expected json log format, got %q", cfg.LogFormat)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"bad port", map[string]string{"JWT_SECRET": "x", "PORT": "eighty"}, "PORT"},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "REAP_AFTER": "soon"}, "REAP_AFTER"},
		{"discount out of range", map[string]string{"JWT_SECRET": "x", "GROUP_DISCOUNT_PERCENT": "150"}, "GROUP_DISCOUNT_PERCENT"},
		{"bad log format", map[string]string{"JWT_SECRET": "x", "LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(missingEnvFile(t))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error naming %s, got %v", tt.want, err)
			}
		})
	}
}
