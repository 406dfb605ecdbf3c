package reliability

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls Retrier attempts and delays.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       time.Duration
}

// DefaultRetryConfig suits short idempotent-ish writes to a hosted API.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Jitter:       50 * time.Millisecond,
	}
}

// Retrier re-runs an operation while it fails with a retryable error.
type Retrier struct {
	cfg       RetryConfig
	retryable func(error) bool
}

func NewRetrier(cfg RetryConfig) *Retrier {
	return &Retrier{cfg: cfg, retryable: IsRetryable}
}

// Do runs op until it succeeds, returns a non-retryable error, or attempts run out.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == r.cfg.MaxRetries || !r.retryable(err) {
			return err
		}

		delay := ExponentialBackoff(attempt, r.cfg.InitialDelay, r.cfg.MaxDelay)
		if r.cfg.Jitter > 0 {
			delay += time.Duration(rand.Int64N(int64(r.cfg.Jitter)))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
