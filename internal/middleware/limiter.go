package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Payment initiation and gateway callbacks (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Internal / trusted services
	limitInternal = rate.Limit(100)
	burstInternal = 200

	// Gateway callbacks, one bucket per path shared by every sender
	limitCallback = rate.Limit(200)
	burstCallback = 1000
)

const (
	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller and tier.
type RateLimiter struct {
	internalKey   string
	strictPrefix  string
	callbackPaths map[string]bool

	mu          sync.Mutex
	visitors    map[string]*visitor
	lastCleanup time.Time
	now         func() time.Time
}

// NewRateLimiter returns a limiter that applies the strict tier to POSTs
// under strictPrefix. Callers presenting internalKey in X-Service-Auth get the
// internal tier; an empty key disables it. callbackPaths are gateway callback
// endpoints: they get the callback tier keyed by path, not by sender.
func NewRateLimiter(internalKey, strictPrefix string, callbackPaths ...string) *RateLimiter {
	paths := make(map[string]bool, len(callbackPaths))
	for _, p := range callbackPaths {
		paths[p] = true
	}

	return &RateLimiter{
		internalKey:   internalKey,
		strictPrefix:  strictPrefix,
		callbackPaths: paths,
		visitors:      make(map[string]*visitor),
		now:           time.Now,
	}
}

func (l *RateLimiter) getVisitor(key string, r rate.Limit, b int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastCleanup = now
	}

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		l.visitors[key] = &visitor{limiter, now}
		return limiter
	}

	v.lastSeen = now
	return v.limiter
}

// Middleware rejects callers that exhausted their bucket with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := l.resolveRateTier(r)

		var identity string
		if tier == "callback" {
			identity = "path:" + r.URL.Path
		} else if userID, ok := UserIDFrom(r.Context()); ok {
			identity = "user:" + userID
		} else if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
			identity = "device:" + deviceID
		} else {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			identity = "ip:" + ip
		}

		// Separate quotas per tier for the same caller, e.g. "user:U1:strict".
		key := fmt.Sprintf("%s:%s", identity, tier)

		if !l.getVisitor(key, limit, burst).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) resolveRateTier(r *http.Request) (rate.Limit, int, string) {
	if l.callbackPaths[r.URL.Path] {
		return limitCallback, burstCallback, "callback"
	}

	if l.internalKey != "" && r.Header.Get("X-Service-Auth") == l.internalKey {
		return limitInternal, burstInternal, "internal"
	}

	if l.strictPrefix != "" && strings.HasPrefix(r.URL.Path, l.strictPrefix) && r.Method == http.MethodPost {
		return limitStrict, burstStrict, "strict"
	}

	return limitGeneral, burstGeneral, "general"
}
