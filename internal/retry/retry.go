// Package retry wraps external AI calls with bounded retries and exponential
// backoff on rate-limit signals. Any other failure surfaces immediately so the
// caller can decide between placeholder degradation and propagation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bangdoll/tubenotes/internal/llm"
)

// Config controls the retry schedule
type Config struct {
	// MaxAttempts is the total number of tries, including the first
	MaxAttempts int
	// BaseDelay is the first wait; each further one doubles
	BaseDelay time.Duration
	// Jitter randomizes each wait by the given factor, 0.5 meaning anywhere
	// between half and one-and-a-half of the nominal delay
	Jitter float64
}

// DefaultConfig mirrors the schedule used for all analysis calls:
// three attempts, 2s base, jittered.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Jitter:      0.5,
	}
}

// Do runs op until it succeeds or the schedule is exhausted. Only rate-limit
// failures are retried; everything else returns at once. Quota exhaustion is
// not a rate limit, so it always propagates on the first attempt.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	wrapped := func() error {
		err := op(ctx)
		if err != nil && !llm.IsRateLimit(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1)), ctx))
}
