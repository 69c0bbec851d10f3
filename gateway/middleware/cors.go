package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderCaller names the caller on gateways running without auth.
const HeaderCaller = "X-Wager-Caller"

// CORSConfig controls browser access to the wager API. Empty lists fall back
// to the headers and methods wager clients use.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	// MaxAge is how long browsers may cache a preflight answer.
	MaxAge time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "Idempotency-Key", HeaderCaller, HeaderRequestID}
	exposedCORSHeaders = strings.Join([]string{HeaderRequestID, "Retry-After"}, ", ")
)

func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := corsPolicy{
		origins:     cfg.AllowedOrigins,
		methods:     strings.Join(orDefault(cfg.AllowedMethods, defaultCORSMethods), ", "),
		headers:     strings.Join(orDefault(cfg.AllowedHeaders, defaultCORSHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	if len(policy.origins) == 0 {
		policy.origins = []string{"*"}
	}
	if cfg.MaxAge > 0 {
		policy.maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := policy.allow(origin)
			h := w.Header()
			h.Add("Vary", "Origin")
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", exposedCORSHeaders)
				if policy.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if allowed != "" {
				h.Set("Access-Control-Allow-Methods", policy.methods)
				h.Set("Access-Control-Allow-Headers", policy.headers)
				if policy.maxAge != "" {
					h.Set("Access-Control-Max-Age", policy.maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

type corsPolicy struct {
	origins     []string
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

// allow returns the Access-Control-Allow-Origin value for origin, or "" when
// the origin is not permitted. Credentialed responses never use "*".
func (p corsPolicy) allow(origin string) string {
	if origin == "" {
		return ""
	}
	for _, candidate := range p.origins {
		if candidate == "*" {
			if p.credentials {
				return origin
			}
			return "*"
		}
		if strings.EqualFold(candidate, origin) {
			return origin
		}
	}
	return ""
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}
