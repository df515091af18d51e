// Package ratelimit throttles HTTP clients with per-route token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Info reports a bucket's state after an Allow decision, for the
// X-RateLimit response headers. Limit is zero for exempt requests.
type Info struct {
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration // zero when the request was allowed
}

// bucket refills continuously at rate tokens per second up to cap.
type bucket struct {
	mu     sync.Mutex
	cap    float64
	rate   float64
	tokens float64
	stamp  time.Time
}

func newBucket(capacity int, rate float64) *bucket {
	return &bucket{
		cap:    float64(capacity),
		rate:   rate,
		tokens: float64(capacity),
		stamp:  time.Now(),
	}
}

// take refills for the elapsed time and consumes one token when available.
// remaining is the balance after the take, reset the moment the bucket is
// full again, wait the time until a token frees up on denial.
func (b *bucket) take() (ok bool, remaining int, reset time.Time, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = min(b.cap, b.tokens+now.Sub(b.stamp).Seconds()*b.rate)
	b.stamp = now

	if b.tokens >= 1 {
		b.tokens--
		ok = true
	} else {
		wait = time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	}
	remaining = int(b.tokens)
	reset = now
	if b.tokens < b.cap {
		reset = now.Add(time.Duration((b.cap - b.tokens) / b.rate * float64(time.Second)))
	}
	return ok, remaining, reset, wait
}

// Config holds limiter configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter hands each client+route pair its own bucket and forgets idle ones.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  *Config

	ticker *time.Ticker
	stop   chan struct{}
}

type entry struct {
	b        *bucket
	lastSeen time.Time
}

// NewLimiter builds a limiter; a nil config means enabled with the default
// 1000-per-minute budget.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		config:  config,
	}
	if config.Enabled && config.CleanupInterval > 0 {
		l.ticker = time.NewTicker(config.CleanupInterval)
		l.stop = make(chan struct{})
		go l.reapLoop()
	}
	return l
}

// Allow decides whether one request from clientID against method+path goes
// through, with the bucket state for rate-limit headers.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	rule := matchRule(path, method, l.config.EndpointConfigs)
	if rule == nil {
		rule = &EndpointConfig{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if rule.Limit <= 0 { // unlimited route
		return true, Info{}
	}

	ok, remaining, reset, wait := l.bucketFor(clientID+" "+method+" "+path, rule).take()
	info := Info{Limit: rule.Limit, Remaining: remaining, ResetTime: reset}
	if !ok {
		info.RetryAfter = wait
	}
	return ok, info
}

func (l *Limiter) bucketFor(key string, rule *EndpointConfig) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, exists := l.entries[key]
	if !exists {
		capacity := rule.Burst
		if capacity <= 0 {
			capacity = rule.Limit
		}
		e = &entry{b: newBucket(capacity, float64(rule.Limit)/rule.Window.Seconds())}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.b
}

func (l *Limiter) reapLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.reap(time.Now().Add(-time.Hour))
		case <-l.stop:
			return
		}
	}
}

// reap drops buckets idle since before cutoff.
func (l *Limiter) reap(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Stop ends the reaper goroutine.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.stop != nil {
		close(l.stop)
	}
}
