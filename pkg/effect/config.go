package effect

import "github.com/goran-ethernal/ChainRuntime/pkg/config"

// ConfigureAll applies the configured effect overrides.
func (c *Cache) ConfigureAll(effects []config.EffectConfig) {
	for _, e := range effects {
		opts := Options{Timeout: e.Timeout.Duration}
		if e.RateLimit != nil {
			opts.RateLimit = &RateLimit{Calls: e.RateLimit.Calls, Per: e.RateLimit.Per.Duration}
		}
		c.Configure(e.Name, opts)
	}
}
