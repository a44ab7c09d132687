package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORSOptions configures cross-origin access to the API routes.
type CORSOptions struct {
	AllowAll         bool
	AllowedOrigins   []string
	AllowCredentials bool

	// PathPrefix limits CORS handling to matching paths.
	PathPrefix string
}

// CORS applies go-chi/cors to requests under opts.PathPrefix only.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	options := cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Token", "X-CSRFToken", "X-Requested-With"},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           86400,
	}
	if opts.AllowAll {
		// A wildcard cannot be combined with credentials, so echo the origin.
		options.AllowedOrigins = nil
		options.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	handler := cors.Handler(options)

	return func(next http.Handler) http.Handler {
		withCORS := handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, opts.PathPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			withCORS.ServeHTTP(w, r)
		})
	}
}
