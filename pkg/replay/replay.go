// Package replay runs an ordered list of items through a fresh scheduler and keeps
// the snapshot produced by every item, so tests can assert on each intermediate state.
package replay

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/effect"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/handler"
	"github.com/goran-ethernal/ChainRuntime/pkg/scheduler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

// Step is the outcome of one processed item.
type Step struct {
	Item          *feed.Item
	Snapshot      *store.Snapshot
	Changes       []store.Change
	Registrations []subscription.DynamicContract
}

// TraceStep is the serializable form of a step.
type TraceStep struct {
	Position      string                         `json:"position"`
	ChainID       uint64                         `json:"chain_id"`
	Kind          string                         `json:"kind"`
	Event         string                         `json:"event,omitempty"`
	Version       uint64                         `json:"version"`
	Changes       []store.Change                 `json:"changes,omitempty"`
	Registrations []subscription.DynamicContract `json:"registrations,omitempty"`
}

// Result holds the initial snapshot and one step per processed item.
type Result struct {
	Initial *store.Snapshot
	Steps   []Step
}

// Final returns the snapshot after the last processed item.
func (r *Result) Final() *store.Snapshot {
	if len(r.Steps) == 0 {
		return r.Initial
	}
	return r.Steps[len(r.Steps)-1].Snapshot
}

// At returns the snapshot after the i-th item.
func (r *Result) At(i int) *store.Snapshot {
	return r.Steps[i].Snapshot
}

// Trace returns the steps in serializable form.
func (r *Result) Trace() []TraceStep {
	out := make([]TraceStep, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, TraceStep{
			Position:      s.Item.Position().String(),
			ChainID:       s.Item.ChainID,
			Kind:          s.Item.Kind.String(),
			Event:         s.Item.EventSignature,
			Version:       s.Snapshot.Version(),
			Changes:       s.Changes,
			Registrations: s.Registrations,
		})
	}
	return out
}

// Harness replays items against handlers. Every Run starts from the same initial
// snapshot with a fresh subscription registry and, unless one was supplied, a fresh
// effect cache.
type Harness struct {
	handlers    *handler.Registry
	subs        []subscription.Subscription
	jobs        []scheduler.BlockJob
	initial     *store.Snapshot
	entityTypes []string
	effects     *effect.Cache
	policy      string
	log         *logger.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithSubscriptions adds static subscriptions.
func WithSubscriptions(subs ...subscription.Subscription) Option {
	return func(h *Harness) {
		h.subs = append(h.subs, subs...)
	}
}

// WithBlockJobs adds block jobs.
func WithBlockJobs(jobs ...scheduler.BlockJob) Option {
	return func(h *Harness) {
		h.jobs = append(h.jobs, jobs...)
	}
}

// WithConfig adds the subscriptions and block jobs of every configured chain, together
// with the entity type allow-list and the handler error policy.
func WithConfig(cfg *config.Config) Option {
	return func(h *Harness) {
		for _, chain := range cfg.Chains {
			h.subs = append(h.subs, subscription.FromChainConfig(chain)...)
			h.jobs = append(h.jobs, scheduler.JobsFromConfig(chain)...)
		}
		h.entityTypes = cfg.Entities
		if cfg.Scheduler.OnHandlerError != "" {
			h.policy = cfg.Scheduler.OnHandlerError
		}
	}
}

// WithInitial sets the snapshot every run starts from.
func WithInitial(snap *store.Snapshot) Option {
	return func(h *Harness) {
		h.initial = snap
	}
}

// WithEntityTypes restricts the entity types handlers may use.
func WithEntityTypes(types ...string) Option {
	return func(h *Harness) {
		h.entityTypes = types
	}
}

// WithEffects shares an effect cache across runs.
func WithEffects(c *effect.Cache) Option {
	return func(h *Harness) {
		h.effects = c
	}
}

// WithOnHandlerError sets the handler error policy.
func WithOnHandlerError(policy string) Option {
	return func(h *Harness) {
		h.policy = policy
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(log *logger.Logger) Option {
	return func(h *Harness) {
		h.log = log
	}
}

// New creates a harness for the given handlers.
func New(handlers *handler.Registry, opts ...Option) *Harness {
	h := &Harness{
		handlers: handlers,
		policy:   config.OnHandlerErrorAbort,
		log:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes items in the given order. On failure it returns the steps completed
// before the failing item together with the error.
func (h *Harness) Run(ctx context.Context, items ...*feed.Item) (*Result, error) {
	initial := h.initial
	if initial == nil {
		initial = store.NewSnapshot()
	}
	result := &Result{Initial: initial}

	subs := subscription.NewRegistry(h.log)
	for _, s := range h.subs {
		if err := subs.RegisterStatic(s); err != nil {
			return result, fmt.Errorf("failed to register subscription %s: %w", s.Key(), err)
		}
	}

	effects := h.effects
	if effects == nil {
		effects = effect.NewCache(h.log)
	}

	st := store.New(initial, store.WithEntityTypes(h.entityTypes...), store.WithLogger(h.log))

	sched := scheduler.New(st, subs, h.handlers,
		scheduler.WithLogger(h.log),
		scheduler.WithEffects(effects),
		scheduler.WithOnHandlerError(h.policy),
		scheduler.WithCommitHook(func(_ context.Context, c scheduler.Commit) error {
			result.Steps = append(result.Steps, Step{
				Item:          c.Item,
				Snapshot:      c.Snapshot,
				Changes:       c.Changes,
				Registrations: c.Registrations,
			})
			return nil
		}),
	)

	for _, job := range h.jobs {
		if err := sched.AddBlockJob(job); err != nil {
			return result, err
		}
	}

	for _, item := range items {
		if err := sched.Process(ctx, item); err != nil {
			return result, err
		}
	}

	return result, nil
}
