package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testChain(cfg SecConfig) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Role", r.Header.Get("X-Role-Name"))
		w.WriteHeader(http.StatusOK)
	})
	return RequireKey(cfg)(inner)
}

func baseCfg() SecConfig {
	return SecConfig{
		RPS:         100,
		Burst:       100,
		BackendKeys: map[string]struct{}{"bk": {}},
		AdminKeys:   map[string]struct{}{"ak": {}},
	}
}

func TestRequireKeyRejectsMissingKey(t *testing.T) {
	h := testChain(baseCfg())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/threads", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestRequireKeyAcceptsBackendKey(t *testing.T) {
	h := testChain(baseCfg())
	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.Header.Set("X-API-Key", "bk")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Seen-Role") != "backend" {
		t.Fatalf("code = %d role = %q", rr.Code, rr.Header().Get("X-Seen-Role"))
	}
}

func TestRequireKeyBearerAdmin(t *testing.T) {
	h := testChain(baseCfg())
	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.Header.Set("Authorization", "Bearer ak")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Seen-Role") != "admin" {
		t.Fatalf("code = %d role = %q", rr.Code, rr.Header().Get("X-Seen-Role"))
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	h := testChain(baseCfg())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestIPWhitelist(t *testing.T) {
	cfg := baseCfg()
	cfg.IPWhitelist = []string{"10.0.0.1"}
	h := testChain(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.RemoteAddr = "192.0.2.5:1234"
	req.Header.Set("X-API-Key", "bk")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-whitelisted ip = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-API-Key", "bk")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("whitelisted ip = %d", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireAdmin(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/appeals/t1/accept", nil)
	req.Header.Set("X-Role-Name", "backend")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("backend role = %d", rr.Code)
	}

	req.Header.Set("X-Role-Name", "admin")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin role = %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := baseCfg()
	cfg.RPS = 1
	cfg.Burst = 2
	h := testChain(cfg)

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		req.Header.Set("X-API-Key", "bk")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes[rr.Code]++
	}
	if codes[http.StatusTooManyRequests] == 0 {
		t.Fatalf("burst of 2 never rate limited: %v", codes)
	}
}
