package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

func runAuth(t *testing.T, a *AdminAuth, target, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set(AdminPasswordHeader, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := a.Middleware(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatal(err)
	}
	return rec, called
}

func TestAdminAuthPlainPassword(t *testing.T) {
	a := NewAdminAuth("s3cret", "", nil)

	// 1. Missing password
	rec, called := runAuth(t, a, "/", "")
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d (called=%v)", rec.Code, called)
	}
	if !strings.Contains(rec.Body.String(), "Invalid admin password") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}

	// 2. Wrong password
	rec, called = runAuth(t, a, "/", "wrong")
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}

	// 3. Header
	rec, called = runAuth(t, a, "/", "s3cret")
	if !called || rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	// 4. Query parameter
	rec, called = runAuth(t, a, "/?password=s3cret", "")
	if !called || rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestAdminAuthHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	// The hash wins over the plain password.
	a := NewAdminAuth("plain", string(hash), nil)

	if _, called := runAuth(t, a, "/", "plain"); called {
		t.Error("Plain password should not be accepted when a hash is configured")
	}
	if rec, called := runAuth(t, a, "/", "hashed-secret"); !called || rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestAdminAuthUnconfiguredRejectsAll(t *testing.T) {
	a := NewAdminAuth("", "", nil)

	for _, pw := range []string{"", "anything"} {
		if rec, called := runAuth(t, a, "/", pw); called || rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %q, got %d", pw, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(2))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", codes[2])
	}
}

func TestRateLimitDisabled(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(0))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
	}
}
