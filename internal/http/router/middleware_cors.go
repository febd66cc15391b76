package router

import (
	"net/http"
	"strings"
)

// corsPolicy answers browser preflights for the storefront and seller
// dashboards. "*" in the origin list allows any origin without credentials.
type corsPolicy struct {
	origins   map[string]struct{}
	anyOrigin bool
}

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-Id"
	corsExposeHeaders = "Content-Disposition, Content-Length, Retry-After, X-Request-Id"
)

func parseCORSOrigins(csv string) corsPolicy {
	policy := corsPolicy{origins: make(map[string]struct{})}
	for _, raw := range strings.Split(csv, ",") {
		origin := strings.TrimRight(strings.TrimSpace(raw), "/")
		switch origin {
		case "":
		case "*":
			policy.anyOrigin = true
		default:
			policy.origins[origin] = struct{}{}
		}
	}
	return policy
}

func (p corsPolicy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func corsHeaders(allowOriginsCSV string) func(http.Handler) http.Handler {
	policy := parseCORSOrigins(allowOriginsCSV)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Add("Vary", "Origin")
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if policy.anyOrigin {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
			}
			header.Set("Access-Control-Expose-Headers", corsExposeHeaders)

			if preflight {
				header.Set("Access-Control-Allow-Methods", corsAllowMethods)
				header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				header.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
