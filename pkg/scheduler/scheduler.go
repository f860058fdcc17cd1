package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/effect"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/handler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
	"golang.org/x/sync/errgroup"
)

// Commit describes one processed item. It is passed to commit hooks after the entity
// store and subscription registry have been updated.
type Commit struct {
	ChainID       uint64
	Item          *feed.Item
	Cursor        feed.Position
	Snapshot      *store.Snapshot
	Changes       []store.Change
	Registrations []subscription.DynamicContract
	Jobs          []BlockJob
}

// CommitHook observes commits, e.g. to persist them. A hook error halts the chain.
type CommitHook func(ctx context.Context, c Commit) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = log.WithComponent(common.ComponentScheduler)
		s.handlerLog = log.WithComponent(common.ComponentHandler)
	}
}

// WithEffects sets the effect cache shared by handlers.
func WithEffects(c *effect.Cache) Option {
	return func(s *Scheduler) {
		s.effects = c
	}
}

// WithOnHandlerError selects what happens when a handler fails: config.OnHandlerErrorAbort
// halts the chain, config.OnHandlerErrorSkip drops the item and continues.
func WithOnHandlerError(policy string) Option {
	return func(s *Scheduler) {
		s.policy = policy
	}
}

// WithCommitHook adds a hook run after every committed item.
func WithCommitHook(h CommitHook) Option {
	return func(s *Scheduler) {
		s.hooks = append(s.hooks, h)
	}
}

// WithChainContext derives the context a chain worker runs with, e.g. to carry the
// chain's RPC client to handlers and effects.
func WithChainContext(fn func(ctx context.Context, chainID uint64) context.Context) Option {
	return func(s *Scheduler) {
		s.chainCtx = fn
	}
}

type chainState struct {
	mu sync.Mutex

	id        uint64
	cursor    feed.Position
	hasCursor bool
	jobs      []*BlockJob
	halted    error
}

// Scheduler dispatches ordered items to handlers. Items of one chain are processed
// strictly sequentially; different chains run concurrently.
type Scheduler struct {
	store    *store.Store
	subs     *subscription.Registry
	handlers *handler.Registry
	effects  *effect.Cache
	policy   string
	hooks    []CommitHook
	chainCtx func(ctx context.Context, chainID uint64) context.Context

	log        *logger.Logger
	handlerLog *logger.Logger

	mu     sync.Mutex
	chains map[uint64]*chainState
}

// New creates a scheduler over the given store, subscriptions and handlers.
func New(st *store.Store, subs *subscription.Registry, handlers *handler.Registry, opts ...Option) *Scheduler {
	nop := logger.NewNopLogger()
	s := &Scheduler{
		store:      st,
		subs:       subs,
		handlers:   handlers,
		policy:     config.OnHandlerErrorAbort,
		log:        nop,
		handlerLog: nop,
		chains:     make(map[uint64]*chainState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.effects == nil {
		s.effects = effect.NewCache(s.log)
	}
	return s
}

func (s *Scheduler) chain(chainID uint64) *chainState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.chains[chainID]
	if !ok {
		cs = &chainState{id: chainID}
		s.chains[chainID] = cs
	}
	return cs
}

// AddBlockJob schedules a block job. Job names are unique per chain.
func (s *Scheduler) AddBlockJob(job BlockJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	cs := s.chain(job.ChainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, j := range cs.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("block job %s already scheduled on chain %d", job.Name, job.ChainID)
		}
	}

	j := job.clone()
	cs.jobs = append(cs.jobs, &j)

	return nil
}

// RestoreJob sets the last fired block of a scheduled job.
func (s *Scheduler) RestoreJob(chainID uint64, name string, lastFired uint64) error {
	cs := s.chain(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, j := range cs.jobs {
		if j.Name == name {
			last := lastFired
			j.LastFired = &last
			return nil
		}
	}
	return fmt.Errorf("block job %s is not scheduled on chain %d", name, chainID)
}

// RestoreCursor sets the chain cursor, e.g. from a checkpoint.
func (s *Scheduler) RestoreCursor(chainID uint64, pos feed.Position) {
	cs := s.chain(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cursor = pos
	cs.hasCursor = true
}

// Cursor returns the last processed position of a chain.
func (s *Scheduler) Cursor(chainID uint64) (feed.Position, bool) {
	cs := s.chain(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.cursor, cs.hasCursor
}

// Cursors returns the cursor of every chain that processed at least one item.
func (s *Scheduler) Cursors() map[uint64]feed.Position {
	s.mu.Lock()
	chains := make([]*chainState, 0, len(s.chains))
	for _, cs := range s.chains {
		chains = append(chains, cs)
	}
	s.mu.Unlock()

	out := make(map[uint64]feed.Position, len(chains))
	for _, cs := range chains {
		cs.mu.Lock()
		if cs.hasCursor {
			out[cs.id] = cs.cursor
		}
		cs.mu.Unlock()
	}
	return out
}

// Jobs returns the block jobs of a chain ordered by name.
func (s *Scheduler) Jobs(chainID uint64) []BlockJob {
	cs := s.chain(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]BlockJob, 0, len(cs.jobs))
	for _, j := range cs.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Halted returns the fatal error that stopped a chain, or nil.
func (s *Scheduler) Halted(chainID uint64) error {
	cs := s.chain(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.halted
}

// Snapshot returns the current entity snapshot.
func (s *Scheduler) Snapshot() *store.Snapshot {
	return s.store.Current()
}

// Process runs every callback that applies to item and commits the item's writes
// once. It returns an *OrderingViolationError or *HandlerFailureError when the chain
// halts, and the context error if ctx is done before the item starts.
func (s *Scheduler) Process(ctx context.Context, item *feed.Item) error {
	cs := s.chain(item.ChainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.halted != nil {
		return fmt.Errorf("%w: chain %d: %w", ErrChainHalted, item.ChainID, cs.halted)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pos := item.Position()
	if cs.hasCursor && !cs.cursor.Less(pos) {
		err := &OrderingViolationError{ChainID: item.ChainID, Cursor: cs.cursor, Got: pos}
		cs.halted = err
		metrics.OrderingViolationsInc(item.ChainID)
		s.log.Errorw("ordering violation, halting chain", "chain_id", item.ChainID,
			"cursor", cs.cursor.String(), "item", pos.String())
		return err
	}

	batch := s.store.Begin()
	hc := handler.NewContext(item, batch, s.effects, s.subs, s.handlerLog)

	var (
		fired []*BlockJob
		err   error
	)
	switch item.Kind {
	case feed.KindBlock:
		fired, err = s.runBlockJobs(ctx, cs, hc)
	case feed.KindEvent:
		err = s.dispatch(ctx, hc)
	default:
		err = fmt.Errorf("unsupported item kind %s", item.Kind)
	}

	if err != nil {
		batch.Discard()
		return s.handleFailure(ctx, cs, item, err)
	}

	return s.commit(ctx, cs, hc, fired)
}

func (s *Scheduler) handleFailure(ctx context.Context, cs *chainState, item *feed.Item, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		s.log.Infow("item cancelled, nothing committed", "chain_id", item.ChainID, "item", item.Position().String())
		return ctxErr
	}

	var failure *HandlerFailureError
	if !errors.As(err, &failure) {
		failure = &HandlerFailureError{
			ChainID:  item.ChainID,
			Block:    item.BlockNumber,
			LogIndex: item.LogIndex,
			Kind:     item.Kind,
			Err:      err,
		}
	}

	if s.policy == config.OnHandlerErrorSkip {
		metrics.HandlerFailuresInc(item.ChainID, config.OnHandlerErrorSkip)
		s.log.Warnw("handler failed, skipping item", "chain_id", item.ChainID,
			"item", item.Position().String(), "error", failure)
		cs.cursor = item.Position()
		cs.hasCursor = true
		return nil
	}

	metrics.HandlerFailuresInc(item.ChainID, config.OnHandlerErrorAbort)
	s.log.Errorw("handler failed, halting chain", "chain_id", item.ChainID,
		"item", item.Position().String(), "error", failure)
	cs.halted = failure

	return failure
}

func (s *Scheduler) commit(ctx context.Context, cs *chainState, hc *handler.Context, fired []*BlockJob) error {
	item := hc.Item()
	pos := item.Position()

	snap, changes, err := s.store.Commit(hc.Batch())
	if err != nil {
		cs.halted = fmt.Errorf("commit failed at %s: %w", pos, err)
		return cs.halted
	}

	var registered []subscription.DynamicContract
	for _, r := range hc.Registrations() {
		added, err := s.subs.RegisterDynamic(item.ChainID, r.ContractName, r.Address, pos)
		if err != nil {
			cs.halted = fmt.Errorf("dynamic registration at %s: %w", pos, err)
			return cs.halted
		}
		if len(added) > 0 {
			registered = append(registered, subscription.DynamicContract{
				ChainID:      item.ChainID,
				ContractName: r.ContractName,
				Address:      r.Address,
				RegisteredAt: pos,
			})
		}
	}

	jobs := make([]BlockJob, 0, len(fired))
	for _, j := range fired {
		block := item.BlockNumber
		j.LastFired = &block
		jobs = append(jobs, j.clone())
	}

	cs.cursor = pos
	cs.hasCursor = true

	metrics.ItemsProcessedInc(item.ChainID, item.Kind.String())
	metrics.LastProcessedBlockSet(item.ChainID, item.BlockNumber)

	c := Commit{
		ChainID:       item.ChainID,
		Item:          item,
		Cursor:        pos,
		Snapshot:      snap,
		Changes:       changes,
		Registrations: registered,
		Jobs:          jobs,
	}
	for _, hook := range s.hooks {
		if err := hook(ctx, c); err != nil {
			cs.halted = fmt.Errorf("commit hook failed at %s: %w", pos, err)
			s.log.Errorw("commit hook failed, halting chain", "chain_id", item.ChainID, "error", err)
			return cs.halted
		}
	}

	return nil
}

// dispatch runs the loader and handler of every subscription the event matches.
// Events without matches are dropped.
func (s *Scheduler) dispatch(ctx context.Context, hc *handler.Context) error {
	item := hc.Item()
	matched := s.subs.Matches(item.ChainID, item.Address, item.EventSignature, item.Fields, item.Position())
	if len(matched) == 0 {
		return nil
	}

	for _, sub := range matched {
		key := sub.Key()

		h, ok := s.handlers.Event(key)
		if !ok {
			s.log.Debugw("no handler registered", "key", key)
			continue
		}

		if h.Loader != nil {
			hc.SetReadOnly(true)
			err := h.Loader(ctx, hc)
			hc.SetReadOnly(false)
			if err != nil {
				return s.failure(hc, key+" loader", err)
			}
		}

		start := time.Now()
		err := h.Handler(ctx, hc)
		metrics.HandlerDurationLog(key, time.Since(start))
		if err != nil {
			return s.failure(hc, key, err)
		}
	}

	return nil
}

// runBlockJobs fires every due job of the chain and returns the fired jobs.
func (s *Scheduler) runBlockJobs(ctx context.Context, cs *chainState, hc *handler.Context) ([]*BlockJob, error) {
	block := hc.Item().BlockNumber

	var fired []*BlockJob
	for _, job := range cs.jobs {
		if !job.due(block) {
			continue
		}

		fn, ok := s.handlers.Block(job.Name)
		if !ok {
			s.log.Warnw("no callback registered for block job", "job", job.Name, "chain_id", cs.id)
			continue
		}

		start := time.Now()
		err := fn(ctx, hc)
		metrics.HandlerDurationLog(job.Name, time.Since(start))
		if err != nil {
			return nil, s.failure(hc, job.Name, err)
		}

		fired = append(fired, job)
	}

	return fired, nil
}

func (s *Scheduler) failure(hc *handler.Context, name string, err error) error {
	item := hc.Item()
	f := &HandlerFailureError{
		ChainID:  item.ChainID,
		Block:    item.BlockNumber,
		LogIndex: item.LogIndex,
		Kind:     item.Kind,
		Handler:  name,
		Err:      err,
	}
	if typ, id, ok := hc.Batch().LastEntity(); ok {
		f.EntityType, f.EntityID = typ, id
	}
	return f
}

// Run drains every feed, one goroutine per chain, until all feeds are exhausted or ctx
// is done. A chain that halts does not stop the others; their errors are joined.
func (s *Scheduler) Run(ctx context.Context, feeds map[uint64]feed.Feed) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for chainID, f := range feeds {
		g.Go(func() error {
			chainCtx := ctx
			if s.chainCtx != nil {
				chainCtx = s.chainCtx(ctx, chainID)
			}
			if err := s.runChain(chainCtx, chainID, f); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *Scheduler) runChain(ctx context.Context, chainID uint64, f feed.Feed) error {
	s.log.Infow("chain worker started", "chain_id", chainID)
	defer s.log.Infow("chain worker stopped", "chain_id", chainID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := f.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("chain %d feed: %w", chainID, err)
		}

		if item.ChainID != chainID {
			return fmt.Errorf("chain %d feed produced item for chain %d", chainID, item.ChainID)
		}

		if err := s.Process(ctx, item); err != nil {
			return err
		}
	}
}
