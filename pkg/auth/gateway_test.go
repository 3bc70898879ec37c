package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testMiddleware(cfg SecConfig) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Role", r.Header.Get("X-Role-Name"))
		w.WriteHeader(http.StatusOK)
	})
	return AuthenticateRequestMiddleware(cfg)(inner)
}

func testSecConfig() SecConfig {
	return SecConfig{
		AllowedOrigins: []string{"https://allowed.com"},
		BackendKeys:    map[string]struct{}{"bk": {}},
		FrontendKeys:   map[string]struct{}{"fk": {}},
		AdminKeys:      map[string]struct{}{"ak": {}},
	}
}

// TestKeyRoleResolution verifies bearer and X-API-Key headers map keys to
// roles, and unknown keys stay unauthorized.
func TestKeyRoleResolution(t *testing.T) {
	h := testMiddleware(testSecConfig())

	cases := []struct {
		header, value string
		wantCode      int
		wantRole      string
	}{
		{"Authorization", "Bearer bk", http.StatusOK, "backend"},
		{"Authorization", "bearer ak", http.StatusOK, "admin"},
		{"X-API-Key", "fk", http.StatusForbidden, ""}, // frontend key outside its scope
		{"X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"", "", http.StatusUnauthorized, ""},
	}
	for i, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/embeds", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.wantCode {
			t.Fatalf("case %d: code %d, want %d", i, rec.Code, c.wantCode)
		}
		if c.wantRole != "" && rec.Header().Get("X-Seen-Role") != c.wantRole {
			t.Fatalf("case %d: role %q, want %q", i, rec.Header().Get("X-Seen-Role"), c.wantRole)
		}
	}
}

// TestFrontendScope verifies frontend keys reach the chat surface only.
func TestFrontendScope(t *testing.T) {
	h := testMiddleware(testSecConfig())

	allowed := []string{"/v1/conversations", "/v1/messages/m1"}
	for _, p := range allowed {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("X-API-Key", "fk")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: frontend blocked with %d", p, rec.Code)
		}
	}
	denied := []string{"/v1/embeds", "/v1/tours", "/v1/admin/roles"}
	for _, p := range denied {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("X-API-Key", "fk")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: frontend admitted with %d", p, rec.Code)
		}
	}
}

// TestAdminNamespace verifies /v1/admin needs the admin role.
func TestAdminNamespace(t *testing.T) {
	h := testMiddleware(testSecConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("backend key reached admin namespace: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer ak")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin key blocked from admin namespace: %d", rec.Code)
	}
}

// TestOpenPaths verifies probes and widget endpoints pass without a key.
func TestOpenPaths(t *testing.T) {
	h := testMiddleware(testSecConfig())

	open := []struct {
		method, path string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/readyz"},
		{http.MethodGet, "/v1/widget/bootstrap"},
		{http.MethodPost, "/v1/widget/messages"},
	}
	for _, c := range open {
		req := httptest.NewRequest(c.method, c.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s blocked with %d", c.method, c.path, rec.Code)
		}
	}
	// deletes on the widget surface are not open
	req := httptest.NewRequest(http.MethodDelete, "/v1/widget/messages", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("DELETE on widget path admitted: %d", rec.Code)
	}
}

// TestCORSHeaders verifies origin echo for allowed origins only, and never
// a wildcard.
func TestCORSHeaders(t *testing.T) {
	h := testMiddleware(testSecConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/conversations", nil)
	req.Header.Set("Origin", "https://allowed.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight code %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.com" {
		t.Fatalf("allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/conversations", nil)
	req.Header.Set("Origin", "https://evil.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin echoed: %q", got)
	}
}

// TestIPWhitelist verifies remote addresses outside the whitelist are
// refused before authentication.
func TestIPWhitelist(t *testing.T) {
	cfg := testSecConfig()
	cfg.IPWhitelist = []string{"10.0.0.1"}
	h := testMiddleware(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/embeds", nil)
	req.RemoteAddr = "192.0.2.9:1234"
	req.Header.Set("Authorization", "Bearer bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-whitelisted ip admitted: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/embeds", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("Authorization", "Bearer bk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("whitelisted ip blocked: %d", rec.Code)
	}
}

// TestWidgetSurfaceRateLimited verifies the keyless widget endpoints are
// throttled per client ip while probes stay unthrottled.
func TestWidgetSurfaceRateLimited(t *testing.T) {
	cfg := testSecConfig()
	cfg.RPS = 1
	cfg.Burst = 3
	h := testMiddleware(cfg)

	limited := false
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/widget/bootstrap", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected code %d", i, rec.Code)
		}
	}
	if !limited {
		t.Fatalf("widget surface never rate limited")
	}

	// a different client ip has its own budget
	req := httptest.NewRequest(http.MethodGet, "/v1/widget/bootstrap", nil)
	req.RemoteAddr = "198.51.100.8:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client ip blocked: %d", rec.Code)
	}

	// probes are exempt
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("probe blocked: %d", rec.Code)
		}
	}
}
