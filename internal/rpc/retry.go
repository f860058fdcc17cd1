package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
)

const jitterFraction = 0.25

// backoff returns the wait before the given attempt (1-based): zero before the first,
// then InitialBackoff * BackoffMultiplier^(attempt-2) capped at MaxBackoff, with jitter.
func backoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	d := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2)) //nolint:mnd
	d = math.Min(d, float64(cfg.MaxBackoff.Duration))
	d += (rand.Float64()*2 - 1) * d * jitterFraction //nolint:gosec

	return time.Duration(math.Max(d, 0))
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable error,
// runs out of attempts or ctx is done. A nil cfg runs fn once.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, method string, log *logger.Logger,
	fn func(ctx context.Context) error) error {
	if cfg == nil || cfg.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if wait := backoff(attempt, cfg); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: cancelled during backoff after %d attempts: %w", method, attempt-1,
					errors.Join(ctx.Err(), lastErr))
			}
			RPCRetryInc(method)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: cancelled before attempt %d: %w", method, attempt, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}

		if log != nil {
			log.Debugw("retrying rpc call", "method", method, "attempt", attempt, "error", err)
		}
	}

	return fmt.Errorf("%s: all %d attempts failed after %v: %w", method, cfg.MaxAttempts, time.Since(start), lastErr)
}
