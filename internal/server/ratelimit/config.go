package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is one route's throttle rule.
type EndpointConfig struct {
	Path   string // exact path, or a prefix when it ends in "/"
	Method string
	Limit  int // requests per Window
	Window time.Duration
	Burst  int // bucket capacity, defaults to Limit
}

// LoadConfig reads the limiter settings from the environment.
func LoadConfig() *Config {
	if !envBool("RATE_LIMIT_ENABLED", true) {
		return &Config{}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    envInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   envDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: envDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       splitIPs(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       splitIPs(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs throttles the job endpoints. Pipeline jobs are
// additionally serialized by the single-flight guard; the limiter just keeps
// a single client from hammering the busy signal. Reads ride on the default
// budget and the health check is exempted by the matcher.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/api/notes", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/api/slides", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
	}
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitIPs(list string) map[string]bool {
	ips := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips[ip] = true
		}
	}
	return ips
}
