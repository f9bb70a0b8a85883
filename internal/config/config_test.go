package config

import (
	"strings"
	"testing"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "gateway", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Vault: VaultConfig{EncryptionKey: "k"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_ProductionRequiresEncryptionKey(t *testing.T) {
	c := validConfig("production")
	c.Vault.EncryptionKey = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without PROVIDER_ENCRYPTION_KEY")
	}
}

func TestValidate_LocalAllowsEmptyEncryptionKey(t *testing.T) {
	c := validConfig("local")
	c.Vault.EncryptionKey = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLoad_DefaultsSSLModeOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "x")
	t.Setenv("DB_NAME", "gateway")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("PROVIDER_ENCRYPTION_KEY", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	// The default must survive into the DSN, not just the struct.
	if !strings.Contains(c.PostgresDSN(), "sslmode=disable") {
		t.Fatalf("expected sslmode=disable in DSN, got %q", c.PostgresDSN())
	}
}

func TestValidate_RejectsUnknownEnv(t *testing.T) {
	c := validConfig("qa")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown APP_ENV")
	}
}

func TestRedisAddr(t *testing.T) {
	c := validConfig("local")
	if got := c.RedisAddr(); got != "localhost:6379" {
		t.Fatalf("unexpected addr %q", got)
	}
}
