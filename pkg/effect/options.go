package effect

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit allows Calls invocations per Per, with bursts of up to Calls.
type RateLimit struct {
	Calls int
	Per   time.Duration
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d/%s", r.Calls, r.Per)
}

func (r RateLimit) valid() bool {
	return r.Calls > 0 && r.Per > 0
}

func (r RateLimit) perSecond() float64 {
	return float64(r.Calls) / r.Per.Seconds()
}

func (r RateLimit) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(r.Per/time.Duration(r.Calls)), r.Calls)
}

// stricter returns the lower of two limits; nil means unlimited.
func stricter(a, b *RateLimit) *RateLimit {
	switch {
	case a == nil || !a.valid():
		if b == nil || !b.valid() {
			return nil
		}
		return b
	case b == nil || !b.valid():
		return a
	case b.perSecond() < a.perSecond():
		return b
	default:
		return a
	}
}

// Options tune an effect.
type Options struct {
	// RateLimit throttles calls. On a definition it is shared by every call site of the
	// effect; passed to Call it adds a separate limiter for that call site.
	RateLimit *RateLimit

	// Timeout bounds rate limiter waits plus the call itself. Passed to Call it only
	// bounds that caller's wait for a shared result. Zero means no timeout.
	Timeout time.Duration

	// DisableCache skips memoization and in-flight sharing.
	DisableCache bool
}

// Option modifies Options.
type Option func(*Options)

// WithRateLimit sets a rate limit of calls per period.
func WithRateLimit(calls int, per time.Duration) Option {
	return func(o *Options) {
		o.RateLimit = &RateLimit{Calls: calls, Per: per}
	}
}

// WithTimeout sets the hard timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithoutCache disables memoization.
func WithoutCache() Option {
	return func(o *Options) {
		o.DisableCache = true
	}
}

func minTimeout(a, b time.Duration) time.Duration {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case b < a:
		return b
	default:
		return a
	}
}
