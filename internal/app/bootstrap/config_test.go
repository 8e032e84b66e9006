package bootstrap

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:                  "mongodb://localhost:27017",
		MongoDatabase:             "carexps",
		EncryptionPassphrase:      "a-long-enough-passphrase",
		EncryptionSalt:            "carexps",
		CacheBackend:              CacheMemory,
		LockoutMaxAttempts:        3,
		LockoutDuration:           30 * time.Minute,
		FailedAttemptRetention:    24 * time.Hour,
		SettingsReconcileInterval: time.Minute,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(c *AppConfig) {}, ""},
		{"redis", func(c *AppConfig) { c.CacheBackend = CacheRedis; c.RedisAddr = "localhost:6379" }, ""},
		{"short passphrase", func(c *AppConfig) { c.EncryptionPassphrase = "short" }, "passphrase"},
		{"empty salt", func(c *AppConfig) { c.EncryptionSalt = "" }, "encryption_salt"},
		{"unknown cache", func(c *AppConfig) { c.CacheBackend = "memcached" }, "unknown cache_backend"},
		{"redis without addr", func(c *AppConfig) { c.CacheBackend = CacheRedis; c.RedisAddr = "" }, "redis_addr"},
		{"zero attempts", func(c *AppConfig) { c.LockoutMaxAttempts = 0 }, "lockout_max_attempts"},
		{"strength above scale", func(c *AppConfig) { c.PasswordMinStrength = 5 }, "password_min_strength"},
		{"negative strength", func(c *AppConfig) { c.PasswordMinStrength = -1 }, "password_min_strength"},
		{"zero lockout", func(c *AppConfig) { c.LockoutDuration = 0 }, "lockout_duration"},
		{"retention equals lockout", func(c *AppConfig) { c.FailedAttemptRetention = c.LockoutDuration }, ""},
		{"retention shorter than lockout", func(c *AppConfig) { c.FailedAttemptRetention = 10 * time.Minute }, "failed_attempt_retention"},
		{"zero retention", func(c *AppConfig) { c.FailedAttemptRetention = 0 }, "failed_attempt_retention"},
		{"zero reconcile", func(c *AppConfig) { c.SettingsReconcileInterval = 0 }, "settings_reconcile_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(nil, cfg, zap.NewNop())

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateConfig() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_ShortPassphraseSentinel(t *testing.T) {
	cfg := validConfig()
	cfg.EncryptionPassphrase = ""
	if err := ValidateConfig(nil, cfg, zap.NewNop()); !errors.Is(err, phicrypt.ErrPassphraseTooShort) {
		t.Errorf("error = %v, want ErrPassphraseTooShort", err)
	}
}

func TestValidateConfig_APIKeyByEnv(t *testing.T) {
	cfg := validConfig()

	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, cfg, zap.NewNop()); err != nil {
		t.Errorf("dev without api_key: error = %v, want nil", err)
	}
	if err := ValidateConfig(&config.CoreConfig{Env: "prod"}, cfg, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("prod without api_key: error = %v, want api_key error", err)
	}

	cfg.APIKey = "k-3f9a"
	if err := ValidateConfig(&config.CoreConfig{Env: "prod"}, cfg, zap.NewNop()); err != nil {
		t.Errorf("prod with api_key: error = %v, want nil", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a@example.com, ,b@example.com,")
	want := []string{"a@example.com", "b@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
}

func TestParseAliases(t *testing.T) {
	got, err := parseAliases("Pierre@Example.com=super-user-456|pierre-user-789; ;elise@example.com=u1")
	if err != nil {
		t.Fatalf("parseAliases() error = %v", err)
	}
	want := map[string][]string{
		"pierre@example.com": {"super-user-456", "pierre-user-789"},
		"elise@example.com":  {"u1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseAliases() = %v, want %v", got, want)
	}

	if _, err := parseAliases("no-equals-sign"); err == nil {
		t.Error("parseAliases() should reject an entry without '='")
	}
}

func TestParseDemoUsers(t *testing.T) {
	got, err := parseDemoUsers("super-user-456=Elise@Example.com, pierre-user-789=pierre@example.com")
	if err != nil {
		t.Fatalf("parseDemoUsers() error = %v", err)
	}
	want := map[string]string{
		"super-user-456":  "elise@example.com",
		"pierre-user-789": "pierre@example.com",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseDemoUsers() = %v, want %v", got, want)
	}

	for _, bad := range []string{"=x@example.com", "id=", "id"} {
		if _, err := parseDemoUsers(bad); err == nil {
			t.Errorf("parseDemoUsers(%q) should fail", bad)
		}
	}
}
