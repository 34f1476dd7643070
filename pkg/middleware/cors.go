package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "600"
)

// CORSPolicy decides which browser origins may call the API.
type CORSPolicy struct {
	// AllowLocalhost admits any http://localhost origin, whatever the port.
	AllowLocalhost bool
	// TrustedSuffix admits origins whose host ends with it (e.g. ".vercel.app").
	TrustedSuffix string
}

// Allows reports whether origin may make credentialed requests.
func (p CORSPolicy) Allows(origin string) bool {
	if p.AllowLocalhost && strings.HasPrefix(origin, "http://localhost") {
		return true
	}
	if p.TrustedSuffix == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.HasSuffix(u.Hostname(), p.TrustedSuffix)
}

// CORS returns middleware applying policy. Requests without an Origin header
// (curl, server-to-server) pass through untouched. Allowed origins are echoed
// back with credentials enabled; preflights are answered with 204, or 403
// when the origin is not allowed.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			allowed := policy.Allows(origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
