package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	configJSON := `{
		"server": {
			"addr": ":8080",
			"allowed_origins": ["http://localhost:3000"]
		},
		"auth": {
			"jwt_secret": "my-super-secret-jwt-key-at-least-32",
			"jwt_expiry": "2h"
		},
		"storage": {
			"driver": "sqlite",
			"dsn": "test.db"
		},
		"chat": {
			"max_conns_per_user": 4,
			"idle_timeout": "10m",
			"history_limit": 50,
			"max_message_bytes": 32768
		},
		"logging": {
			"level": "debug",
			"format": "text"
		},
		"rate_limit": {
			"requests_per_second": 20,
			"burst": 40
		}
	}`

	path := writeTempConfig(t, configJSON)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr: got %q, want %q", cfg.Server.Addr, ":8080")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.AllowedOrigins: got %v, want [http://localhost:3000]", cfg.Server.AllowedOrigins)
	}
	if cfg.Auth.JWTSecret != "my-super-secret-jwt-key-at-least-32" {
		t.Errorf("Auth.JWTSecret: got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.JWTExpiry.Duration != 2*time.Hour {
		t.Errorf("Auth.JWTExpiry: got %v, want 2h", cfg.Auth.JWTExpiry.Duration)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver: got %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if cfg.Storage.DSN != "test.db" {
		t.Errorf("Storage.DSN: got %q, want %q", cfg.Storage.DSN, "test.db")
	}
	if cfg.Chat.MaxConnsPerUser != 4 {
		t.Errorf("Chat.MaxConnsPerUser: got %d, want 4", cfg.Chat.MaxConnsPerUser)
	}
	if cfg.Chat.IdleTimeout.Duration != 10*time.Minute {
		t.Errorf("Chat.IdleTimeout: got %v, want 10m", cfg.Chat.IdleTimeout.Duration)
	}
	if cfg.Chat.HistoryLimit != 50 {
		t.Errorf("Chat.HistoryLimit: got %d, want 50", cfg.Chat.HistoryLimit)
	}
	if cfg.Chat.MaxMessageBytes != 32768 {
		t.Errorf("Chat.MaxMessageBytes: got %d, want 32768", cfg.Chat.MaxMessageBytes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.RateLimit.RequestsPerSecond != 20 {
		t.Errorf("RateLimit.RequestsPerSecond: got %f, want 20", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.Burst != 40 {
		t.Errorf("RateLimit.Burst: got %d, want 40", cfg.RateLimit.Burst)
	}
}

func TestValidateRequired(t *testing.T) {
	// Missing server.addr
	noAddr := `{
		"server": {},
		"auth": {"jwt_secret": "some-secret-value-long-enough-xx"}
	}`
	path := writeTempConfig(t, noAddr)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing server.addr, got nil")
	}

	// Missing auth.jwt_secret
	noSecret := `{
		"server": {"addr": ":8080"},
		"auth": {}
	}`
	path = writeTempConfig(t, noSecret)
	_, err = Load(path)
	if err == nil {
		t.Fatal("expected error for missing auth.jwt_secret, got nil")
	}

	// Short secret
	shortSecret := `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "too-short"}
	}`
	path = writeTempConfig(t, shortSecret)
	_, err = Load(path)
	if err == nil {
		t.Fatal("expected error for short jwt_secret, got nil")
	}

	// Unknown storage driver
	badDriver := `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "some-secret-value-long-enough-xx"},
		"storage": {"driver": "mysql"}
	}`
	path = writeTempConfig(t, badDriver)
	_, err = Load(path)
	if err == nil {
		t.Fatal("expected error for unknown storage driver, got nil")
	}

	// JWKS provider requires issuer
	noIssuer := `{
		"server": {"addr": ":8080"},
		"auth": {"provider": "jwks"}
	}`
	path = writeTempConfig(t, noIssuer)
	_, err = Load(path)
	if err == nil {
		t.Fatal("expected error for jwks provider without issuer, got nil")
	}
}

func TestApplyDefaults(t *testing.T) {
	// Minimal valid config -- only required fields
	minimal := `{
		"server": {"addr": ":8080"},
		"auth": {"jwt_secret": "my-secret-key-for-testing-purposes"}
	}`

	path := writeTempConfig(t, minimal)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Auth.JWTExpiry.Duration != 24*time.Hour {
		t.Errorf("default JWTExpiry: got %v, want 24h", cfg.Auth.JWTExpiry.Duration)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("default Storage.Driver: got %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if cfg.Storage.DSN != "chatwire.db" {
		t.Errorf("default Storage.DSN: got %q, want %q", cfg.Storage.DSN, "chatwire.db")
	}
	if cfg.Chat.MaxConnsPerUser != 8 {
		t.Errorf("default Chat.MaxConnsPerUser: got %d, want 8", cfg.Chat.MaxConnsPerUser)
	}
	if cfg.Chat.IdleTimeout.Duration != 30*time.Minute {
		t.Errorf("default Chat.IdleTimeout: got %v, want 30m", cfg.Chat.IdleTimeout.Duration)
	}
	if cfg.Chat.HistoryLimit != 100 {
		t.Errorf("default Chat.HistoryLimit: got %d, want 100", cfg.Chat.HistoryLimit)
	}
	if cfg.Chat.MaxMessageBytes != 64*1024 {
		t.Errorf("default Chat.MaxMessageBytes: got %d, want %d", cfg.Chat.MaxMessageBytes, 64*1024)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format: got %q, want %q", cfg.Logging.Format, "json")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("default AllowedOrigins: got %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 {
		t.Errorf("default RateLimit.RequestsPerSecond: got %f, want 10", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("default RateLimit.Burst: got %d, want 20", cfg.RateLimit.Burst)
	}
	if cfg.Server.MaxBodyBytes != 1024*1024 {
		t.Errorf("default Server.MaxBodyBytes: got %d, want %d", cfg.Server.MaxBodyBytes, 1024*1024)
	}
}

func TestGenerateRandomSecret(t *testing.T) {
	s1, err := GenerateRandomSecret()
	if err != nil {
		t.Fatalf("GenerateRandomSecret: %v", err)
	}
	if len(s1) != 64 {
		t.Errorf("secret length: got %d, want 64", len(s1))
	}
	s2, err := GenerateRandomSecret()
	if err != nil {
		t.Fatalf("GenerateRandomSecret: %v", err)
	}
	if s1 == s2 {
		t.Error("two generated secrets are identical")
	}
}
