package effect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Func is an untyped effect implementation.
type Func func(ctx context.Context, input any) (any, error)

// EffectError wraps a failed effect invocation. Failures are never cached.
type EffectError struct {
	Name string
	Err  error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("effect %s failed: %v", e.Name, e.Err)
}

func (e *EffectError) Unwrap() error {
	return e.Err
}

// Cache memoizes effect results by (name, serialized input) for the lifetime of a run,
// shares in-flight calls between concurrent callers and applies per-effect rate limits.
// It is safe for concurrent use by every chain.
type Cache struct {
	mu        sync.Mutex
	results   map[string]any
	limiters  map[string]*rate.Limiter
	overrides map[string]Options

	group singleflight.Group
	log   *logger.Logger
}

// NewCache creates an empty cache.
func NewCache(log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Cache{
		results:   make(map[string]any),
		limiters:  make(map[string]*rate.Limiter),
		overrides: make(map[string]Options),
		log:       log.WithComponent(common.ComponentEffectCache),
	}
}

// Configure sets operator overrides for an effect. The stricter of the configured and
// the defined rate limit and timeout applies.
func (c *Cache) Configure(name string, opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overrides[name] = opts
	delete(c.limiters, name)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.results)
}

// Reset drops every cached result and rate limiter state. Configured overrides are kept.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = make(map[string]any)
	c.limiters = make(map[string]*rate.Limiter)
}

// Invoke runs fn for (name, input) unless a result is cached. defined holds the
// effect's own options, site the options of this call site.
//
// A cached call executes once for all concurrent callers, detached from their
// cancellation and bounded only by the effect's timeout. Each caller's ctx and
// call site timeout bound its own wait for the shared result.
func (c *Cache) Invoke(ctx context.Context, name string, input any, fn Func, defined, site Options) (any, error) {
	key, err := cacheKey(name, input)
	if err != nil {
		return nil, &EffectError{Name: name, Err: err}
	}

	if defined.DisableCache || site.DisableCache {
		metrics.EffectCallsInc(name, "uncached")
		limiters, timeout := c.resolve(name, defined, site)
		return c.execute(ctx, name, input, fn, limiters, minTimeout(timeout, site.Timeout))
	}

	if v, ok := c.lookup(key); ok {
		metrics.EffectCallsInc(name, "hit")
		return v, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &EffectError{Name: name, Err: err}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		limiters, timeout := c.resolve(name, defined, site)
		v, err := c.execute(context.WithoutCancel(ctx), name, input, fn, limiters, timeout)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.results[key] = v
		c.mu.Unlock()

		return v, nil
	})

	wait := ctx
	if site.Timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, site.Timeout)
		defer cancel()
	}

	select {
	case <-wait.Done():
		metrics.EffectCallsInc(name, "error")
		return nil, &EffectError{Name: name, Err: wait.Err()}
	case res := <-ch:
		switch {
		case res.Err != nil:
			metrics.EffectCallsInc(name, "error")
			return nil, res.Err
		case res.Shared:
			metrics.EffectCallsInc(name, "shared")
		default:
			metrics.EffectCallsInc(name, "miss")
		}
		return res.Val, nil
	}
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.results[key]
	return v, ok
}

type result struct {
	val any
	err error
}

func (c *Cache) execute(ctx context.Context, name string, input any, fn Func,
	limiters []*rate.Limiter, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if len(limiters) > 0 {
		start := time.Now()
		for _, l := range limiters {
			if err := l.Wait(ctx); err != nil {
				return nil, &EffectError{Name: name, Err: fmt.Errorf("rate limit wait: %w", err)}
			}
		}
		metrics.EffectRateLimitWaitLog(name, time.Since(start))
	}

	if timeout <= 0 {
		v, err := fn(ctx, input)
		if err != nil {
			return nil, &EffectError{Name: name, Err: err}
		}
		return v, nil
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx, input)
		done <- result{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		c.log.Warnw("effect timed out", "effect", name, "timeout", timeout)
		return nil, &EffectError{Name: name, Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return nil, &EffectError{Name: name, Err: r.err}
		}
		return r.val, nil
	}
}

// resolve returns the limiters a call must pass and the effect's timeout, the stricter
// of the defined and configured one. Call site timeouts are applied by the caller.
func (c *Cache) resolve(name string, defined, site Options) ([]*rate.Limiter, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	override := c.overrides[name]
	timeout := minTimeout(defined.Timeout, override.Timeout)

	var limiters []*rate.Limiter

	if limit := stricter(defined.RateLimit, override.RateLimit); limit != nil {
		l, ok := c.limiters[name]
		if !ok {
			l = limit.newLimiter()
			c.limiters[name] = l
			c.log.Debugw("created rate limiter", "effect", name, "limit", limit.String())
		}
		limiters = append(limiters, l)
	}

	if site.RateLimit != nil && site.RateLimit.valid() {
		key := name + "@" + site.RateLimit.String()
		l, ok := c.limiters[key]
		if !ok {
			l = site.RateLimit.newLimiter()
			c.limiters[key] = l
		}
		limiters = append(limiters, l)
	}

	return limiters, timeout
}

func cacheKey(name string, input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("input is not serializable: %w", err)
	}
	return name + ":" + string(raw), nil
}
