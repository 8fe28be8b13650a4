package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"smart-task-manager/internal/cache"
	"smart-task-manager/internal/config"
	"smart-task-manager/internal/database"
	"smart-task-manager/internal/handlers"
	"smart-task-manager/internal/services"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfigurationLoads(t *testing.T) {
	os.Setenv("ENVIRONMENT", "development")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("REDIS_HOST", "localhost")
	defer func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("DB_HOST")
		os.Unsetenv("REDIS_HOST")
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg == nil {
		t.Fatal("Configuration should not be nil")
	}
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cacheConfig := cache.DefaultCacheConfig()
	cacheConfig.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cacheConfig)
	t.Cleanup(func() { redisCache.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "development"},
		Auth: config.AuthConfig{
			JWTSecret:       "integration-secret",
			Issuer:          "smart-task-manager",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: time.Hour,
			BCryptCost:      bcrypt.MinCost,
		},
	}

	authService := services.NewAuthService(cfg.Auth)
	taskService := services.NewCachedTaskService(services.NewTaskService(), redisCache)
	router := handlers.NewRouter(cfg, db, redisCache, authService, taskService, zap.NewNop())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func request(t *testing.T, method, url, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestTaskLifecycleEndToEnd(t *testing.T) {
	server := testServer(t)

	status, body := request(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d: %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("signup returned no token")
	}

	status, body = request(t, http.MethodPost, server.URL+"/api/tasks", token, map[string]interface{}{
		"title":    "Ship release",
		"dueDate":  "2026-09-15",
		"subtasks": []map[string]interface{}{{"title": "tag version"}, {"title": "write notes"}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d: %v", status, body)
	}
	task := body["task"].(map[string]interface{})
	taskID := task["id"].(string)
	if task["status"] != "Pending" {
		t.Errorf("default status = %v", task["status"])
	}
	if subtasks := task["subtasks"].([]interface{}); len(subtasks) != 2 {
		t.Errorf("subtasks = %d, want 2", len(subtasks))
	}

	status, body = request(t, http.MethodGet, server.URL+"/api/tasks", token, nil)
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list status = %d, count = %v", status, body["count"])
	}

	status, body = request(t, http.MethodPut, server.URL+"/api/tasks/"+taskID, token, map[string]string{
		"status": "Completed",
	})
	if status != http.StatusOK {
		t.Fatalf("update status = %d: %v", status, body)
	}
	if body["task"].(map[string]interface{})["status"] != "Completed" {
		t.Errorf("updated status = %v", body["task"])
	}

	status, _ = request(t, http.MethodDelete, server.URL+"/api/tasks/"+taskID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}

	status, body = request(t, http.MethodGet, server.URL+"/api/tasks", token, nil)
	if status != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("list after delete: status = %d, count = %v", status, body["count"])
	}
}

func TestAuthBoundariesEndToEnd(t *testing.T) {
	server := testServer(t)

	// Guarded routes reject anonymous callers.
	status, _ := request(t, http.MethodGet, server.URL+"/api/tasks", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("anonymous list status = %d, want 401", status)
	}

	_, body := request(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	aliceToken := body["token"].(string)

	_, body = request(t, http.MethodPost, server.URL+"/api/tasks", aliceToken, map[string]string{
		"title":   "private",
		"dueDate": "2026-09-15",
	})
	taskID := body["task"].(map[string]interface{})["id"].(string)

	_, body = request(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"name":     "Bob",
		"email":    "bob@example.com",
		"password": "secret2",
	})
	bobToken := body["token"].(string)

	// Bob cannot touch Alice's task.
	status, _ = request(t, http.MethodPut, server.URL+"/api/tasks/"+taskID, bobToken, map[string]string{"title": "stolen"})
	if status != http.StatusForbidden {
		t.Errorf("cross-user update status = %d, want 403", status)
	}
	status, _ = request(t, http.MethodDelete, server.URL+"/api/tasks/"+taskID, bobToken, nil)
	if status != http.StatusForbidden {
		t.Errorf("cross-user delete status = %d, want 403", status)
	}

	status, body = request(t, http.MethodGet, server.URL+"/api/tasks", bobToken, nil)
	if status != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("bob's list leaked tasks: %v", body)
	}
}

func TestRefreshFlowEndToEnd(t *testing.T) {
	server := testServer(t)

	_, body := request(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "secret1",
	})
	refresh := body["refresh_token"].(string)

	status, body := request(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d: %v", status, body)
	}

	// The old refresh token is spent.
	status, _ = request(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if status != http.StatusUnauthorized {
		t.Errorf("reused refresh status = %d, want 401", status)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	server := testServer(t)

	status, body := request(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if status != http.StatusOK || body["success"] != true {
		t.Errorf("health status = %d: %v", status, body)
	}

	status, _ = request(t, http.MethodGet, server.URL+"/readyz", "", nil)
	if status != http.StatusOK {
		t.Errorf("readiness status = %d", status)
	}

	status, body = request(t, http.MethodGet, server.URL+"/no/such/route", "", nil)
	if status != http.StatusNotFound || body["message"] != "Route not found" {
		t.Errorf("unknown route: status = %d, body = %v", status, body)
	}
}
