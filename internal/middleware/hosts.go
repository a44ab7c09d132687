package middleware

import (
	"net"
	"net/http"
	"strings"
)

// AllowedHosts rejects requests whose Host header is not listed. An entry of
// "*" allows every host and a leading dot matches the domain and its
// subdomains.
func AllowedHosts(hosts []string) func(http.Handler) http.Handler {
	allowAll := false
	patterns := make([]string, 0, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "*" {
			allowAll = true
		}
		if host != "" {
			patterns = append(patterns, host)
		}
	}

	return func(next http.Handler) http.Handler {
		if allowAll {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(requestHost(r), patterns) {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte("Bad Request (400)"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestHost(r *http.Request) string {
	host := strings.ToLower(r.Host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(strings.TrimSuffix(host, "."), "[]")
}

func hostAllowed(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, ".") {
			if host == pattern[1:] || strings.HasSuffix(host, pattern) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}
