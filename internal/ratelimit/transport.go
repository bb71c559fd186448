package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"outfitter/internal/models"
)

// Info contains transport rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Approximate tokens remaining
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// bucketEntry holds a token bucket and its last access time for cleanup.
type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BucketLimiter is the transport-level rate limiter fronting the whole API,
// backed by golang.org/x/time/rate. Each client IP gets its own token bucket.
// A background goroutine evicts entries not seen within 2x the cleanup
// interval. This layer is coarse abuse protection only; the AI endpoint has
// its own cooldown limiter and admission gate behind it.
type BucketLimiter struct {
	rate            rate.Limit
	burst           int
	limit           int // requests per minute, for Info.Limit
	cleanupInterval time.Duration

	mu      sync.Mutex
	entries map[string]*bucketEntry
	done    chan struct{}
	closed  bool
}

// NewBucketLimiter creates a limiter with the given requests-per-minute rate,
// burst size, and cleanup interval. It starts a background eviction goroutine.
func NewBucketLimiter(requestsPerMinute int, burst int, cleanupInterval time.Duration) *BucketLimiter {
	b := &BucketLimiter{
		rate:            rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:           burst,
		limit:           requestsPerMinute,
		cleanupInterval: cleanupInterval,
		entries:         make(map[string]*bucketEntry),
		done:            make(chan struct{}),
	}
	go b.cleanup()
	return b
}

// Allow checks whether a request from the given key should be allowed.
func (b *BucketLimiter) Allow(key string) (bool, Info) {
	b.mu.Lock()
	e, exists := b.entries[key]
	if !exists {
		e = &bucketEntry{
			limiter: rate.NewLimiter(b.rate, b.burst),
		}
		b.entries[key] = e
	}
	e.lastSeen = time.Now()
	b.mu.Unlock()

	allowed := e.limiter.Allow()

	now := time.Now()
	tokens := e.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	tokensNeeded := float64(b.burst) - tokens
	var resetAt time.Time
	if tokensNeeded > 0 {
		resetAt = now.Add(time.Duration(tokensNeeded / float64(b.rate) * float64(time.Second)))
	} else {
		resetAt = now
	}

	info := Info{
		Limit:     b.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !allowed {
		reservation := e.limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()
		info.RetryAfter = delay
	}

	return allowed, info
}

// Close stops the background cleanup goroutine.
func (b *BucketLimiter) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

// cleanup periodically evicts entries that have not been accessed within
// 2x the cleanup interval.
func (b *BucketLimiter) cleanup() {
	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.evictStale()
		}
	}
}

// evictStale removes entries older than 2x the cleanup interval.
func (b *BucketLimiter) evictStale() {
	cutoff := time.Now().Add(-2 * b.cleanupInterval)
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, e := range b.entries {
		if e.lastSeen.Before(cutoff) {
			delete(b.entries, key)
		}
	}
}

// Middleware returns HTTP middleware enforcing the transport rate limit,
// keyed by client IP, setting standard rate limit response headers.
func Middleware(limiter *BucketLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)

			allowed, info := limiter.Allow(key)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))

			if !allowed {
				retryAfterSecs := int(info.RetryAfter.Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimitExceeded)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Transport rate limit exceeded",
					"key", key,
					"limit", info.Limit,
					"retry_after", retryAfterSecs,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, checking proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
