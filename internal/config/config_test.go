package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("PORT")
	os.Unsetenv("JWT_SECRET")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}

	if cfg.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", cfg.Server.Environment)
	}

	if cfg.Auth.AccessTokenTTL != 24*time.Hour {
		t.Errorf("Expected default access token TTL 24h, got %v", cfg.Auth.AccessTokenTTL)
	}

	if cfg.Auth.BCryptCost != 10 {
		t.Errorf("Expected default bcrypt cost 10, got %d", cfg.Auth.BCryptCost)
	}

	if !cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting enabled by default")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("DB_NAME", "tasks_test")
	os.Setenv("ACCESS_TOKEN_TTL", "15m")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_NAME")
		os.Unsetenv("ACCESS_TOKEN_TTL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}

	if cfg.Database.Name != "tasks_test" {
		t.Errorf("Expected database name 'tasks_test', got %s", cfg.Database.Name)
	}

	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("Expected access token TTL 15m, got %v", cfg.Auth.AccessTokenTTL)
	}
}

func TestLoadConfig_ProductionGuards(t *testing.T) {
	os.Setenv("ENVIRONMENT", "production")
	os.Setenv("DB_PASSWORD", "secret")
	os.Unsetenv("JWT_SECRET")
	defer func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("DB_PASSWORD")
	}()

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when JWT secret is unset in production")
	}

	os.Setenv("JWT_SECRET", "prod-secret")
	defer os.Unsetenv("JWT_SECRET")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected config to load with production secrets set: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("Expected IsProduction to be true")
	}
}

func TestConfig_Addresses(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: "8080"},
		Database: DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "pw", Name: "tasks", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "cache", Port: "6379"},
	}

	if got := cfg.GetServerAddr(); got != "0.0.0.0:8080" {
		t.Errorf("Expected server addr '0.0.0.0:8080', got %s", got)
	}

	if got := cfg.GetRedisAddr(); got != "cache:6379" {
		t.Errorf("Expected redis addr 'cache:6379', got %s", got)
	}

	want := "host=db port=5432 user=app password=pw dbname=tasks sslmode=disable"
	if got := cfg.GetDatabaseDSN(); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}
}
