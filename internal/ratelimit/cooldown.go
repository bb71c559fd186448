// Package ratelimit provides the admission-control layer guarding the AI
// suggestion endpoint: a per-identity cooldown limiter with exponential
// backoff and an hourly quota, a global bounded-concurrency gate with a
// waiting line, and a transport-level token bucket for the rest of the API.
// All types are safe for concurrent use.
package ratelimit

import (
	"sync"
	"time"
)

// Reason explains why a cooldown check denied a request.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonCooldown    Reason = "cooldown"
	ReasonHourlyQuota Reason = "hourly_quota"
)

// Decision is the outcome of a cooldown check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter int // seconds until the caller may retry (floor)
}

// CooldownStats is the read-only per-identity view.
type CooldownStats struct {
	CountInWindow   int
	NextWaitSeconds int
	MaxPerWindow    int
}

// CooldownConfig holds every cooldown constant, injected at construction.
type CooldownConfig struct {
	InitialWait   time.Duration // cooldown after the first successful call
	MaxWait       time.Duration // cooldown cap
	Window        time.Duration // trailing quota window
	MaxPerWindow  int           // calls (success or failure) allowed per window
	SweepInterval time.Duration // idle record eviction cadence, 0 disables the sweeper
}

// cooldownRecord tracks one identity. History is sorted and append-only,
// trimmed lazily on access; it counts failed calls too, so retry storms
// against a broken backend still burn quota.
type cooldownRecord struct {
	lastSuccess time.Time
	hasSuccess  bool
	nextWait    time.Duration
	history     []time.Time
}

// CooldownLimiter is the per-identity rate limiter for AI calls. Successful
// calls double the identity's cooldown up to the cap; failed calls never
// touch cooldown state but still count toward the hourly quota.
type CooldownLimiter struct {
	cfg CooldownConfig
	now func() time.Time

	mu      sync.Mutex
	records map[string]*cooldownRecord
	done    chan struct{}
	closed  bool
}

// NewCooldownLimiter creates a cooldown limiter. When SweepInterval is
// positive a background goroutine periodically drops identities that have no
// in-window history and no recent success, so the record map cannot grow
// without bound.
func NewCooldownLimiter(cfg CooldownConfig) *CooldownLimiter {
	l := &CooldownLimiter{
		cfg:     cfg,
		now:     time.Now,
		records: make(map[string]*cooldownRecord),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go l.sweep()
	}
	return l
}

// Check reports whether the identity may make an AI call right now. It never
// reserves anything; Record must be called after the call completes.
func (l *CooldownLimiter) Check(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(key)
	rec.evict(now, l.cfg.Window)

	if len(rec.history) >= l.cfg.MaxPerWindow {
		// Exact earliest-retry time from the oldest in-window entry, the
		// same computation the board limiter has always done.
		retry := int(rec.history[0].Add(l.cfg.Window).Sub(now).Seconds())
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Reason: ReasonHourlyQuota, RetryAfter: retry}
	}

	if rec.hasSuccess {
		if elapsed := now.Sub(rec.lastSuccess); elapsed < rec.nextWait {
			return Decision{
				Allowed:    false,
				Reason:     ReasonCooldown,
				RetryAfter: int((rec.nextWait - elapsed).Seconds()),
			}
		}
	}

	return Decision{Allowed: true, Reason: ReasonOK}
}

// Record books a completed AI call against the identity. Every call counts
// toward the hourly quota; only successes advance the cooldown state.
func (l *CooldownLimiter) Record(key string, success bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(key)
	rec.history = append(rec.history, now)

	if !success {
		return
	}

	rec.lastSuccess = now
	if rec.hasSuccess {
		rec.nextWait = min(rec.nextWait*2, l.cfg.MaxWait)
	} else {
		rec.nextWait = l.cfg.InitialWait
		rec.hasSuccess = true
	}
}

// Stats returns the identity's in-window call count and current cooldown.
// Identities that have never succeeded report the initial cooldown.
func (l *CooldownLimiter) Stats(key string) CooldownStats {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(key)
	rec.evict(now, l.cfg.Window)

	wait := rec.nextWait
	if !rec.hasSuccess {
		wait = l.cfg.InitialWait
	}

	return CooldownStats{
		CountInWindow:   len(rec.history),
		NextWaitSeconds: int(wait.Seconds()),
		MaxPerWindow:    l.cfg.MaxPerWindow,
	}
}

// Close stops the background sweeper.
func (l *CooldownLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

// record returns the identity's record, creating it lazily. Caller holds l.mu.
func (l *CooldownLimiter) record(key string) *cooldownRecord {
	rec, ok := l.records[key]
	if !ok {
		rec = &cooldownRecord{}
		l.records[key] = rec
	}
	return rec
}

// evict drops history entries older than the window. History is sorted, so a
// single scan from the front suffices.
func (r *cooldownRecord) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(r.history) && !r.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.history = append(r.history[:0], r.history[i:]...)
	}
}

// sweep periodically removes records for identities that stopped calling:
// no in-window history and a last success older than the window.
func (l *CooldownLimiter) sweep() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle removes stale identity records.
func (l *CooldownLimiter) evictIdle() {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, rec := range l.records {
		rec.evict(now, l.cfg.Window)
		if len(rec.history) == 0 && (!rec.hasSuccess || rec.lastSuccess.Before(cutoff)) {
			delete(l.records, key)
		}
	}
}
