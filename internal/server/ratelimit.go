package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/sntprz/ai-assistant/internal/logging"
)

const (
	defaultRateLimit = 10
	defaultRateBurst = 20

	// limiterIdleTTL is how long a client's bucket survives without traffic.
	limiterIdleTTL = 5 * time.Minute

	// maxRetryAfter caps the Retry-After header for very low rates.
	maxRetryAfter = time.Hour
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a token bucket per client IP on the query endpoint.
// Idle buckets are evicted once a minute.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rps   rate.Limit
	burst int
	log   *slog.Logger
	now   func() time.Time

	// rejected counts 429 responses. May be nil.
	rejected prometheus.Counter
}

// newRateLimiter starts the eviction loop; call the returned func to stop it.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()
	return rl, func() { close(done) }
}

// allow takes a token from ip's bucket. When the bucket is empty it reports
// how long until the next token without consuming it.
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, maxRetryAfter
	}
	wait := res.DelayFrom(now)
	if wait == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, wait
}

func (rl *rateLimiter) evict() {
	cutoff := rl.now().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware rejects over-limit requests with 429, a JSON error and a
// Retry-After header in whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := rl.allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		if rl.rejected != nil {
			rl.rejected.Inc()
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})
}

// retryAfterSeconds rounds wait up to whole seconds within [1, 3600].
func retryAfterSeconds(wait time.Duration) int {
	wait = min(wait, maxRetryAfter)
	return max(1, int(math.Ceil(wait.Seconds())))
}

// clientIP is RemoteAddr without the port. X-Forwarded-For is not trusted;
// run behind a proxy that rewrites RemoteAddr when that matters.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
