package router

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yxshee/marketplace-storefront/internal/auth"
)

const maxTrackedClients = 50_000

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// requestRateLimiter keeps one token bucket per client key. Buckets idle for
// longer than idle are dropped once the table grows past maxTrackedClients.
type requestRateLimiter struct {
	name   string
	limit  rate.Limit
	burst  int
	idle   time.Duration
	keyOf  func(*http.Request) string
	logger logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

func newRequestRateLimiter(name string, limit rate.Limit, burst int, idle time.Duration, keyOf func(*http.Request) string, logger logrus.FieldLogger) *requestRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(float64(limit))))
	}
	if idle <= 0 {
		idle = time.Minute
	}

	return &requestRateLimiter{
		name:    name,
		limit:   limit,
		burst:   burst,
		idle:    idle,
		keyOf:   keyOf,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *requestRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyOf(r)
		wait := l.reserve(key)
		if wait > 0 {
			seconds := int(math.Ceil(wait.Seconds()))
			if l.logger != nil {
				l.logger.WithFields(logrus.Fields{
					"limiter":     l.name,
					"client":      key,
					"path":        r.URL.Path,
					"retry_after": seconds,
				}).Warn("rate limit exceeded")
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "too many requests, please retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reserve takes a token for key and returns zero, or how long the client has to
// wait for the next one when the bucket is empty.
func (l *requestRateLimiter) reserve(key string) time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) >= maxTrackedClients {
		for client, bucket := range l.buckets {
			if now.Sub(bucket.lastSeen) > l.idle {
				delete(l.buckets, client)
			}
		}
	}

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return l.idle
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return delay
	}
	return 0
}

func clientIPKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return "ip:" + host
	}
	if remote == "" {
		return "ip:unknown"
	}
	return "ip:" + remote
}

// accountKey buckets authenticated callers by user and falls back to the
// client address.
func accountKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return "user:" + identity.UserID
	}
	return clientIPKey(r)
}

// uploadRateLimit returns the per-account limiter for upload and import
// routes. A non-positive rate disables it.
func uploadRateLimit(perMinute int, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newRequestRateLimiter("uploads", rate.Every(time.Minute/time.Duration(perMinute)), perMinute, 30*time.Minute, accountKey, logger)
	return limiter.middleware
}

// securityHeaders hardens every response. API payloads are never cached and
// production responses pin HTTPS.
func securityHeaders(environment string) func(http.Handler) http.Handler {
	production := environment == "production"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()
			header.Set("X-Content-Type-Options", "nosniff")
			header.Set("X-Frame-Options", "DENY")
			header.Set("Referrer-Policy", "no-referrer")
			header.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=()")
			header.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				header.Set("Cache-Control", "no-store")
			}
			if production {
				header.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
