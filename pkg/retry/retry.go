package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction of each delay
}

// DefaultConfig returns the startup defaults for PostgreSQL and Redis:
// 3 retries starting at 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// None performs a single attempt.
func None() *Config {
	return &Config{}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// wait sleeps for the current delay and returns the next one, or the
// context error when ctx ends first.
func (c *Config) wait(ctx context.Context, delay time.Duration) (time.Duration, error) {
	timer := time.NewTimer(applyJitter(delay, c.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return delay, ctx.Err()
	}

	next := time.Duration(float64(delay) * c.Multiplier)
	if c.MaxDelay > 0 && next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next, nil
}

// Do executes fn with exponential backoff until it succeeds or retries are
// exhausted. Returns the last error.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn and returns both result and error.
// Useful for constructors like pgxpool.New.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		result  T
		lastErr error
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt == cfg.MaxRetries {
			break
		}
		if delay, err = cfg.wait(ctx, delay); err != nil {
			return result, err
		}
	}
	return result, lastErr
}

// RetryableError is implemented by errors that know whether they are transient.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"network is unreachable",
	"unexpected eof",
}

// IsRetryable reports whether err looks transient, so a caller scheduling
// another attempt can tell a flaky upstream from a permanent failure. An error in the chain
// implementing RetryableError decides; cancellation never retries; network
// timeouts always do. Otherwise the message is matched against known
// connection failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
