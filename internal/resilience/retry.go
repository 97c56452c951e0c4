package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior for a single external agent call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first
	// try). Default: 3.
	MaxAttempts int

	// BaseDelay is the unit for exponential backoff: the sleep before
	// retry n is BaseDelay * 2^(n-1). Default: 1s, giving 1s then 2s.
	BaseDelay time.Duration

	// RateLimitCap bounds the amplified delay used after a rate-limit
	// rejection. Default: 30s.
	RateLimitCap time.Duration

	// OnRetry is called before each backoff sleep with the attempt number
	// (1-based) and the error. Optional; retries are logged regardless.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the standard configuration for agent calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		RateLimitCap: 30 * time.Second,
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.RateLimitCap <= 0 {
		cfg.RateLimitCap = 30 * time.Second
	}
	return cfg
}

// Do executes fn up to cfg.MaxAttempts times with classification-based
// exponential backoff. Non-retryable failures (invalid argument, quota
// exhaustion) return immediately; everything else sleeps and retries.
// There is no sleep after the final attempt, which returns the last error.
// Context cancellation stops the backoff sleep.
func Do[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		class := Classify(err)
		if !class.Retryable() {
			zap.L().Error("non-retryable error",
				zap.Int("attempt", attempt+1),
				zap.String("class", class.String()),
				zap.Error(err),
			)
			return zero, err
		}

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := backoffFor(attempt, class, cfg)
		zap.L().Warn("attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.String("class", class.String()),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	zap.L().Error("all attempts failed",
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// backoffFor computes the sleep before the retry following attempt
// (0-indexed): BaseDelay * 2^attempt, doubled and capped for rate limits.
func backoffFor(attempt int, class Class, cfg RetryConfig) time.Duration {
	delay := cfg.BaseDelay << uint(attempt)
	if class == ClassRateLimited {
		delay *= 2
		if delay > cfg.RateLimitCap {
			delay = cfg.RateLimitCap
		}
	}
	return delay
}
