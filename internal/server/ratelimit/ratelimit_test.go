package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perMinute(limit int) *Config {
	return &Config{Enabled: true, DefaultLimit: limit, DefaultWindow: time.Minute}
}

func TestBucketBurstThenDeny(t *testing.T) {
	b := newBucket(10, 1.0)

	for i := 0; i < 10; i++ {
		ok, _, _, _ := b.take()
		require.True(t, ok, "request %d is inside the burst", i+1)
	}

	ok, remaining, _, wait := b.take()
	assert.False(t, ok, "11th request exceeds the burst")
	assert.Equal(t, 0, remaining)
	assert.Greater(t, wait, time.Duration(0), "denial carries a retry hint")
}

func TestBucketRefill(t *testing.T) {
	b := newBucket(2, 100) // fast refill keeps the test short
	b.take()
	b.take()
	ok, _, _, _ := b.take()
	require.False(t, ok)

	time.Sleep(20 * time.Millisecond)
	ok, _, _, _ = b.take()
	assert.True(t, ok, "a token should have refilled")
}

func TestBucketResetInFuture(t *testing.T) {
	b := newBucket(10, 1.0)
	for i := 0; i < 5; i++ {
		b.take()
	}

	ok, remaining, reset, _ := b.take()
	require.True(t, ok)
	assert.Equal(t, 4, remaining)
	assert.True(t, reset.After(time.Now()), "partially drained bucket refills in the future")
}

func TestLimiterDefaultBudget(t *testing.T) {
	l := NewLimiter(perMinute(10))
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := l.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed, "request %d within budget", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := l.Allow("127.0.0.1", "/test", "GET")
	assert.False(t, allowed, "11th request exceeds the budget")
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiterWhitelistAndBlacklist(t *testing.T) {
	cfg := perMinute(1)
	cfg.Whitelist = map[string]bool{"10.0.0.1": true}
	cfg.Blacklist = map[string]bool{"10.0.0.2": true}
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, info := l.Allow("10.0.0.1", "/test", "GET")
		require.True(t, allowed, "whitelisted request %d", i+1)
		assert.Zero(t, info.Limit, "whitelisted requests carry no limit headers")
	}

	allowed, _ := l.Allow("10.0.0.2", "/test", "GET")
	assert.False(t, allowed, "blacklisted clients are always denied")
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(&Config{})
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, info := l.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
}

func TestLimiterPerRouteRule(t *testing.T) {
	cfg := perMinute(1000)
	cfg.EndpointConfigs = []EndpointConfig{
		{Path: "/api/notes", Method: "POST", Limit: 5, Window: time.Hour, Burst: 5},
	}
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, info := l.Allow("127.0.0.1", "/api/notes", "POST")
		require.True(t, allowed, "request %d within the route budget", i+1)
		assert.Equal(t, 5, info.Limit)
	}
	allowed, _ := l.Allow("127.0.0.1", "/api/notes", "POST")
	assert.False(t, allowed, "route budget exhausted")

	allowed, info := l.Allow("127.0.0.1", "/other", "GET")
	require.True(t, allowed, "other routes use the default budget")
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiterBurstBelowLimit(t *testing.T) {
	cfg := perMinute(10)
	cfg.EndpointConfigs = []EndpointConfig{
		{Path: "/burst", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
	}
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("127.0.0.1", "/burst", "POST")
		require.True(t, allowed, "burst request %d", i+1)
	}
	allowed, _ := l.Allow("127.0.0.1", "/burst", "POST")
	assert.False(t, allowed, "burst capacity caps immediate requests below the window limit")
}

func TestLimiterConcurrent(t *testing.T) {
	l := NewLimiter(perMinute(100))
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := l.Allow("127.0.0.1", "/test", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowedCount, "exactly the budget goes through under contention")
}

func TestLimiterReap(t *testing.T) {
	l := NewLimiter(perMinute(10))
	defer l.Stop()

	for i := 0; i < 4; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i+1), "/test", "GET")
	}
	require.Len(t, l.entries, 4)

	l.reap(time.Now().Add(time.Second))
	assert.Empty(t, l.entries, "every bucket is older than the cutoff")

	allowed, _ := l.Allow("10.0.0.1", "/test", "GET")
	assert.True(t, allowed, "reaped clients start over with a fresh bucket")
}

func TestNewLimiterNilConfig(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Stop()

	allowed, info := l.Allow("127.0.0.1", "/test", "GET")
	require.True(t, allowed)
	assert.Equal(t, 1000, info.Limit, "nil config falls back to the default budget")
}

func TestMatchRule(t *testing.T) {
	rules := []EndpointConfig{
		{Path: "/api/notes", Method: "POST", Limit: 10},
		{Path: "/api/", Method: "GET", Limit: 100},
	}
	tests := []struct {
		name      string
		path      string
		method    string
		wantLimit int
		wantNil   bool
	}{
		{"health is exempt", "/health", "GET", 0, false},
		{"exact match", "/api/notes", "POST", 10, false},
		{"prefix match", "/api/runs", "GET", 100, false},
		{"method mismatch", "/api/notes", "GET", 100, false}, // falls to the prefix rule
		{"no match", "/metrics", "GET", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := matchRule(tt.path, tt.method, rules)
			if tt.wantNil {
				assert.Nil(t, rule)
				return
			}
			require.NotNil(t, rule)
			assert.Equal(t, tt.wantLimit, rule.Limit)
		})
	}
}

func TestLoadConfigDisabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	cfg := LoadConfig()
	assert.False(t, cfg.Enabled)
}

func TestDefaultEndpointConfigsMatchServedRoutes(t *testing.T) {
	var paths []string
	for _, rule := range DefaultEndpointConfigs() {
		assert.Equal(t, "POST", rule.Method)
		paths = append(paths, rule.Path)
	}
	assert.ElementsMatch(t, []string{"/api/notes", "/api/slides"}, paths,
		"the table only throttles routes the server registers")
}
