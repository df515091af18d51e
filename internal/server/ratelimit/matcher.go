package ratelimit

import "strings"

// matchRule finds the throttle rule for a route: exact path+method match
// first, then prefix rules (paths ending in "/"). The health check is never
// throttled. No match means the caller's default budget applies.
func matchRule(path, method string, rules []EndpointConfig) *EndpointConfig {
	if path == "/health" {
		return &EndpointConfig{} // Limit 0: unlimited
	}
	for i := range rules {
		if rules[i].Path == path && rules[i].Method == method {
			return &rules[i]
		}
	}
	for i := range rules {
		if rules[i].Method == method && strings.HasSuffix(rules[i].Path, "/") && strings.HasPrefix(path, rules[i].Path) {
			return &rules[i]
		}
	}
	return nil
}
