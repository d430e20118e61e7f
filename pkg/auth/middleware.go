// Package auth gates the HTTP API behind API keys and per-caller rate
// limits. Two roles exist: backend keys belong to the bridge process and
// trusted services; admin keys additionally unlock destructive ops
// endpoints.
package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
)

type Role int

const (
	RoleUnauth Role = iota
	RoleBackend
	RoleAdmin
)

type SecConfig struct {
	RPS         float64
	Burst       int
	IPWhitelist []string
	BackendKeys map[string]struct{}
	AdminKeys   map[string]struct{}
}

// RequireKey authenticates every request. Health and metrics probes pass
// without a key; everything else needs a configured backend or admin key.
func RequireKey(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			if r.Method == http.MethodGet && (r.URL.Path == "/healthz" || r.URL.Path == "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			role, key, hasKey := authenticate(r, cfg)
			if role == RoleUnauth {
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr, "has_api_key", hasKey)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !limiters.Allow(key) {
				logger.Warn("rate_limited", "path", r.URL.Path)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			roleName := "backend"
			if role == RoleAdmin {
				roleName = "admin"
			}
			r.Header.Set("X-Role-Name", roleName)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards ops endpoints. Must run after RequireKey.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Role-Name") != "admin" {
			logger.Warn("request_forbidden", "reason", "admin_required", "path", r.URL.Path)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func authenticate(r *http.Request, cfg SecConfig) (Role, string, bool) {
	auth := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		key = strings.TrimSpace(auth[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		return RoleUnauth, clientIP(r), false
	}
	if cfg.AdminKeys != nil {
		if _, ok := cfg.AdminKeys[key]; ok {
			return RoleAdmin, key, true
		}
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key, true
	}
	return RoleUnauth, key, true
}
