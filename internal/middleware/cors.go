// Package middleware provides HTTP middleware for the studio API.
package middleware

import "net/http"

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Authorization, Content-Type"
	corsMaxAge  = "600"
)

// MatchOrigin reports whether origin is allowed and whether it matched an
// explicit entry rather than "*". An empty origin never matches.
func MatchOrigin(allowed []string, origin string) (ok, explicit bool) {
	if origin == "" {
		return false, false
	}
	for _, o := range allowed {
		switch o {
		case origin:
			return true, true
		case "*":
			ok = true
		}
	}
	return ok, false
}

// CORS echoes allowed origins and answers preflight requests. Credentials
// are only allowed for explicit origins, never for a "*" match.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if ok, explicit := MatchOrigin(allowedOrigins, origin); ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if explicit {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
