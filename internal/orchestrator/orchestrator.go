package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/checkpoint"
	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/internal/rpc"
	"github.com/goran-ethernal/ChainRuntime/internal/source"
	"github.com/goran-ethernal/ChainRuntime/pkg/api"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/effect"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/handler"
	pkgrpc "github.com/goran-ethernal/ChainRuntime/pkg/rpc"
	"github.com/goran-ethernal/ChainRuntime/pkg/scheduler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

const stopTimeout = 10 * time.Second

// ClientFactory connects to the RPC endpoint of a chain.
type ClientFactory func(ctx context.Context, chain config.ChainConfig, log *logger.Logger) (pkgrpc.EthClient, error)

// DialClient is the default ClientFactory, backed by the retrying RPC client.
func DialClient(ctx context.Context, chain config.ChainConfig, log *logger.Logger) (pkgrpc.EthClient, error) {
	return rpc.NewClient(ctx, chain.RPCURL, chain.Retry, log)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClientFactory replaces the RPC client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(o *Orchestrator) {
		o.dial = f
	}
}

// WithLogger makes every component log through log instead of per-component
// loggers built from the logging configuration.
func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) {
		o.loggerFor = func(string) *logger.Logger { return log }
	}
}

// Orchestrator builds the runtime described by a configuration and runs it.
type Orchestrator struct {
	cfg       *config.Config
	log       *logger.Logger
	loggerFor func(component string) *logger.Logger
	dial      ClientFactory

	store      *store.Store
	subs       *subscription.Registry
	handlers   *handler.Registry
	effects    *effect.Cache
	sched      *scheduler.Scheduler
	checkpoint *checkpoint.Store

	mu      sync.RWMutex
	clients map[uint64]pkgrpc.EthClient
}

// New wires the subscription registry, handler modules, effect cache, entity store and
// scheduler from cfg. With persistence enabled the checkpointed state is restored.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:     cfg,
		dial:    DialClient,
		clients: make(map[uint64]pkgrpc.EthClient),
	}
	o.loggerFor = o.configLogger
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.loggerFor(common.ComponentOrchestrator).WithComponent(common.ComponentOrchestrator)

	o.subs = subscription.NewRegistry(o.loggerFor(common.ComponentSubscriptionRegistry))
	if err := o.subs.RegisterConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to register subscriptions: %w", err)
	}

	o.handlers = handler.NewRegistry(o.loggerFor(common.ComponentHandler))
	if err := handler.ApplyModules(o.handlers, cfg.Handlers...); err != nil {
		return nil, err
	}
	if err := o.checkHandlers(); err != nil {
		return nil, err
	}

	o.effects = effect.NewCache(o.loggerFor(common.ComponentEffectCache))
	o.effects.ConfigureAll(cfg.Effects)

	o.store = store.New(nil,
		store.WithEntityTypes(cfg.Entities...),
		store.WithLogger(o.loggerFor(common.ComponentEntityStore)),
	)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(o.loggerFor(common.ComponentScheduler)),
		scheduler.WithEffects(o.effects),
		scheduler.WithOnHandlerError(cfg.Scheduler.OnHandlerError),
		scheduler.WithChainContext(o.chainContext),
	}

	var state *checkpoint.State
	if cfg.Persistence != nil && cfg.Persistence.Enabled {
		cp, err := checkpoint.Open(cfg.Persistence.DB, o.loggerFor(common.ComponentCheckpoint))
		if err != nil {
			return nil, err
		}
		o.checkpoint = cp

		if state, err = cp.Load(); err != nil {
			cp.Close()
			return nil, err
		}
		schedOpts = append(schedOpts, scheduler.WithCommitHook(cp.OnCommit))
	}

	o.sched = scheduler.New(o.store, o.subs, o.handlers, schedOpts...)

	for _, chain := range cfg.Chains {
		for _, job := range scheduler.JobsFromConfig(chain) {
			if err := o.sched.AddBlockJob(job); err != nil {
				o.Close()
				return nil, err
			}
		}
	}

	if state != nil {
		if err := state.Apply(o.store, o.subs, o.sched, o.log); err != nil {
			o.Close()
			return nil, err
		}
		for chainID, pos := range state.Cursors {
			o.log.Infow("resuming chain from checkpoint", "chain_id", chainID, "cursor", pos.String())
		}
	}

	return o, nil
}

func (o *Orchestrator) configLogger(component string) *logger.Logger {
	level, development := "info", false
	if o.cfg.Logging != nil {
		level = o.cfg.Logging.GetComponentLevel(component)
		development = o.cfg.Logging.IsDevelopment()
	}

	log, err := logger.NewLogger(level, development)
	if err != nil {
		return logger.GetDefaultLogger()
	}
	return log
}

// checkHandlers fails for block jobs without a callback and warns about
// subscriptions no handler listens to.
func (o *Orchestrator) checkHandlers() error {
	for _, chain := range o.cfg.Chains {
		for _, s := range subscription.FromChainConfig(chain) {
			if _, ok := o.handlers.Event(s.Key()); !ok {
				o.log.Warnw("no handler registered for subscription", "chain_id", chain.ID, "key", s.Key())
			}
		}
		for _, job := range chain.BlockJobs {
			if _, ok := o.handlers.Block(job.Name); !ok {
				return fmt.Errorf("chain %d: no handler registered for block job %s", chain.ID, job.Name)
			}
		}
	}
	return nil
}

func (o *Orchestrator) chainContext(ctx context.Context, chainID uint64) context.Context {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if c, ok := o.clients[chainID]; ok {
		return pkgrpc.WithClient(ctx, c)
	}
	return ctx
}

// Scheduler returns the scheduler.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.sched }

// Subscriptions returns the subscription registry.
func (o *Orchestrator) Subscriptions() *subscription.Registry { return o.subs }

// Run connects to every chain and processes items until all chains reach their end
// block, a chain halts or ctx is done. Cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.closeClients()

	feeds, err := o.buildFeeds(ctx)
	if err != nil {
		return err
	}

	// The API server stops when ctx is cancelled, so wait for it after cancelling.
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.cfg.Metrics != nil && o.cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(o.cfg.Metrics, o.chainStatus, o.log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
			defer stop()
			if err := metricsServer.Stop(stopCtx); err != nil {
				o.log.Warnw("failed to stop metrics server", "error", err)
			}
		}()
		o.log.Infow("metrics server started", "address", o.cfg.Metrics.ListenAddress, "path", o.cfg.Metrics.Path)
	}

	if o.cfg.API != nil && o.cfg.API.Enabled {
		server := api.NewServer(o.cfg.API, o.sched, o.subs, o.loggerFor(common.ComponentAPI).WithComponent(common.ComponentAPI))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil {
				o.log.Errorw("API server failed", "error", err)
			}
		}()
	}

	metrics.ComponentHealthSet(common.ComponentScheduler, true)
	o.log.Infow("runtime started", "chains", len(feeds), "handlers", len(o.handlers.EventKeys()))

	if err := withoutCancellation(o.sched.Run(ctx, feeds)); err != nil {
		metrics.ComponentHealthSet(common.ComponentScheduler, false)
		return err
	}

	o.log.Info("runtime stopped")
	return nil
}

// chainStatus reports the cursor and halt reason of every configured chain.
func (o *Orchestrator) chainStatus() []metrics.ChainStatus {
	out := make([]metrics.ChainStatus, 0, len(o.cfg.Chains))
	for _, chain := range o.cfg.Chains {
		status := metrics.ChainStatus{ChainID: chain.ID}
		if cursor, ok := o.sched.Cursor(chain.ID); ok {
			status.Cursor = cursor.String()
		}
		if err := o.sched.Halted(chain.ID); err != nil {
			status.Halted = err.Error()
		}
		out = append(out, status)
	}
	return out
}

// withoutCancellation drops the context.Canceled errors of chains stopped by
// cancellation from the joined errors of a run, keeping every other failure.
func withoutCancellation(err error) error {
	if err == nil {
		return nil
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	var kept []error
	for _, e := range joined.Unwrap() {
		if e = withoutCancellation(e); e != nil {
			kept = append(kept, e)
		}
	}

	return errors.Join(kept...)
}

func (o *Orchestrator) buildFeeds(ctx context.Context) (map[uint64]feed.Feed, error) {
	feeds := make(map[uint64]feed.Feed, len(o.cfg.Chains))

	for _, chain := range o.cfg.Chains {
		log := o.loggerFor(common.ComponentLogSource)

		client, err := o.dial(ctx, chain, log)
		if err != nil {
			return nil, fmt.Errorf("chain %d: failed to connect to %s: %w", chain.ID, chain.RPCURL, err)
		}
		o.mu.Lock()
		o.clients[chain.ID] = client
		o.mu.Unlock()

		remoteID, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain %d: failed to get chain id: %w", chain.ID, err)
		}
		if remoteID != chain.ID {
			return nil, fmt.Errorf("chain %d: endpoint %s serves chain %d", chain.ID, chain.RPCURL, remoteID)
		}

		decoder, err := source.DecoderFromChain(chain, o.subs)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", chain.ID, err)
		}

		srcCfg := source.ConfigFromChain(chain)
		if cursor, ok := o.sched.Cursor(chain.ID); ok {
			srcCfg.Resume = &cursor
		}

		feeds[chain.ID] = source.New(srcCfg, client, decoder, log)
		o.log.Infow("chain connected", "chain_id", chain.ID, "start_block", srcCfg.StartBlock, "end_block", srcCfg.EndBlock)
	}

	return feeds, nil
}

func (o *Orchestrator) closeClients() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, c := range o.clients {
		c.Close()
		delete(o.clients, id)
	}
}

// Close releases the checkpoint database.
func (o *Orchestrator) Close() error {
	if o.checkpoint == nil {
		return nil
	}
	return o.checkpoint.Close()
}
