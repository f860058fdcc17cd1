package effect

import (
	"context"
	"fmt"
)

// Definition is a named, typed effect.
type Definition[I, O any] struct {
	Name    string
	Fn      func(ctx context.Context, input I) (O, error)
	Options Options
}

// Define creates an effect definition.
func Define[I, O any](name string, fn func(ctx context.Context, input I) (O, error), opts ...Option) *Definition[I, O] {
	def := &Definition[I, O]{Name: name, Fn: fn}
	for _, opt := range opts {
		opt(&def.Options)
	}
	return def
}

// Call invokes def through the cache. opts apply to this call site only; a call-site
// rate limit is enforced in addition to the effect's own limit.
func Call[I, O any](ctx context.Context, c *Cache, def *Definition[I, O], input I, opts ...Option) (O, error) {
	var (
		zero O
		site Options
	)
	for _, opt := range opts {
		opt(&site)
	}

	v, err := c.Invoke(ctx, def.Name, input, func(ctx context.Context, in any) (any, error) {
		return def.Fn(ctx, in.(I))
	}, def.Options, site)
	if err != nil {
		return zero, err
	}

	out, ok := v.(O)
	if !ok {
		return zero, &EffectError{Name: def.Name, Err: fmt.Errorf("cached value has type %T", v)}
	}

	return out, nil
}
