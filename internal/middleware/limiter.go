package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"storefront-orderflow/internal/auth"

	"golang.org/x/time/rate"
)

// Rate limit tiers
const (
	// Checkout and payment callbacks
	limitStrict = rate.Limit(2)
	burstStrict = 5

	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Admin dashboards polling order tables
	limitAdmin = rate.Limit(50)
	burstAdmin = 100
)

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per caller and tier.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	strict   map[string]bool
}

// NewLimiter applies the strict tier to the given paths. Idle buckets are
// evicted until ctx is done.
func NewLimiter(ctx context.Context, strictPaths ...string) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		strict:   make(map[string]bool, len(strictPaths)),
	}
	for _, p := range strictPaths {
		l.strict[p] = true
	}
	go l.cleanup(ctx, time.Minute)
	return l
}

func (l *Limiter) get(key string, r rate.Limit, b int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r, b)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (l *Limiter) cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(time.Now().Add(-visitorTTL))
		}
	}
}

func (l *Limiter) evict(before time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if v.lastSeen.Before(before) {
			delete(l.visitors, key)
		}
	}
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := l.tier(r)
		key := identity(r) + ":" + tier

		if !l.get(key, limit, burst).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) tier(r *http.Request) (rate.Limit, int, string) {
	if l.strict[r.URL.Path] {
		return limitStrict, burstStrict, "strict"
	}
	if s, ok := auth.SessionFrom(r.Context()); ok && s.IsAdmin() {
		return limitAdmin, burstAdmin, "admin"
	}
	return limitGeneral, burstGeneral, "general"
}

// identity prefers the session user, then a client-supplied device id,
// then the remote IP.
func identity(r *http.Request) string {
	if s, ok := auth.SessionFrom(r.Context()); ok {
		return "user:" + s.UserID
	}
	if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
		return "device:" + deviceID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
