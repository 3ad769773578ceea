package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/hwidlock/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Prefix:         "/api",
		Store:          "memory",
		AdminPassword:  "pw",
		MaxKeysPerHWID: 1,
		FallbackKeys:   []string{"MASTER"},
		KeyLength:      16,
		MaxGenerate:    50,
		LogCapacity:    1000,
		AdminRateLimit: 0,
		LogLevel:       "error",
	}
}

func TestServerRoutes(t *testing.T) {
	cfg := testConfig()
	a, err := newApp(cfg, newLogger(cfg))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	e := newServer(a)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		header string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"admin without password", http.MethodGet, "/api/admin/keys", "", "", http.StatusUnauthorized},
		{"admin with password", http.MethodGet, "/api/admin/keys", "", "pw", http.StatusOK},
		{"fallback key", http.MethodPost, "/api/validate", `{"key":"MASTER","hwid":"x"}`, "", http.StatusOK},
		{"unknown key", http.MethodPost, "/api/validate", `{"key":"NOPE","hwid":"x"}`, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.target, nil)
			}
			if tt.header != "" {
				req.Header.Set("X-Admin-Password", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d, body: %s", tt.want, rec.Code, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Error("Expected a request id header")
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `hwidlock_validations_total{outcome="admin"} 1`) {
		t.Errorf("Expected admin validation to be counted, got:\n%s", rec.Body.String())
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "redis"
	if _, err := openStore(cfg); err == nil {
		t.Error("Expected error for unknown store backend")
	}
}

func TestOpenAdminAppRejectsMemoryStore(t *testing.T) {
	config.AppConfig = testConfig()
	if _, err := openAdminApp(); err == nil {
		t.Error("Expected error when running admin commands against the memory store")
	}
}

func TestHashPasswordCmd(t *testing.T) {
	cmd := newHashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--cost", "4", "s3cret"})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("Hash does not match password: %v", err)
	}
}
