package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/effect"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

// ErrReadOnly is returned when a loader attempts a write.
var ErrReadOnly = errors.New("context is read-only")

// Contracts reports which contract names can be registered dynamically on a chain.
type Contracts interface {
	HasContract(chainID uint64, contractName string) bool
}

// Registration is a dynamic contract registration staged by a handler. It takes
// effect when the item commits.
type Registration struct {
	ContractName string
	Address      common.Address
}

// Context is what loaders, handlers and block callbacks receive for one item.
// It lives only as long as the item's processing.
type Context struct {
	item      *feed.Item
	batch     *store.Batch
	effects   *effect.Cache
	contracts Contracts
	log       *logger.Logger

	readOnly      bool
	registrations []Registration
}

// NewContext binds an item to its write buffer and the shared collaborators.
func NewContext(item *feed.Item, batch *store.Batch, effects *effect.Cache, contracts Contracts,
	log *logger.Logger) *Context {
	if log == nil {
		log = logger.NewNopLogger()
	}

	fields := []any{"chain_id", item.ChainID, "block", item.BlockNumber}
	if item.Kind == feed.KindEvent {
		fields = append(fields, "log_index", item.LogIndex, "event", item.EventSignature)
	}

	return &Context{
		item:      item,
		batch:     batch,
		effects:   effects,
		contracts: contracts,
		log:       log.WithFields(fields...),
	}
}

// Item returns the block or event being processed.
func (c *Context) Item() *feed.Item { return c.item }

// ChainID returns the chain of the item.
func (c *Context) ChainID() uint64 { return c.item.ChainID }

// Log returns a logger annotated with the item's position.
func (c *Context) Log() *logger.Logger { return c.log }

// ReadOnly reports whether writes are rejected, as they are while a loader runs.
func (c *Context) ReadOnly() bool { return c.readOnly }

// SetReadOnly toggles read-only mode.
func (c *Context) SetReadOnly(readOnly bool) { c.readOnly = readOnly }

// Effects returns the shared effect cache.
func (c *Context) Effects() *effect.Cache { return c.effects }

// Batch returns the item's write buffer.
func (c *Context) Batch() *store.Batch { return c.batch }

// Registrations returns the dynamic registrations staged so far.
func (c *Context) Registrations() []Registration { return c.registrations }

// Entity returns an accessor for one entity type.
func (c *Context) Entity(entityType string) *Entities {
	return &Entities{hc: c, entityType: entityType}
}

// RegisterContract starts watching address as an instance of contractName from the
// next item on.
func (c *Context) RegisterContract(contractName string, address common.Address) error {
	if c.readOnly {
		return fmt.Errorf("%w: register contract %s", ErrReadOnly, contractName)
	}
	if c.contracts == nil || !c.contracts.HasContract(c.item.ChainID, contractName) {
		return fmt.Errorf("%w: %s on chain %d", subscription.ErrUnknownContract, contractName, c.item.ChainID)
	}

	for _, r := range c.registrations {
		if r.ContractName == contractName && r.Address == address {
			return nil
		}
	}
	c.registrations = append(c.registrations, Registration{ContractName: contractName, Address: address})

	return nil
}

// Effect calls def through the context's effect cache.
func Effect[I, O any](ctx context.Context, hc *Context, def *effect.Definition[I, O], input I,
	opts ...effect.Option) (O, error) {
	return effect.Call(ctx, hc.effects, def, input, opts...)
}

// Entities reads and writes records of one entity type through the item's write buffer.
type Entities struct {
	hc         *Context
	entityType string
}

// Get returns the record with id, seeing writes staged earlier in the same item.
func (e *Entities) Get(id string) (store.Record, bool, error) {
	return e.hc.batch.Get(e.entityType, id)
}

// Set stages an upsert of record.
func (e *Entities) Set(record store.Record) error {
	if e.hc.readOnly {
		return fmt.Errorf("%w: set %s %s", ErrReadOnly, e.entityType, record.ID)
	}
	return e.hc.batch.Set(e.entityType, record)
}

// Delete stages removal of id.
func (e *Entities) Delete(id string) error {
	if e.hc.readOnly {
		return fmt.Errorf("%w: delete %s %s", ErrReadOnly, e.entityType, id)
	}
	return e.hc.batch.Delete(e.entityType, id)
}

// GetOrCreate returns the record with id, staging def as a new record if it is missing.
func (e *Entities) GetOrCreate(id string, def map[string]any) (store.Record, error) {
	if e.hc.readOnly {
		rec, ok, err := e.Get(id)
		if err != nil {
			return store.Record{}, err
		}
		if !ok {
			return store.Record{}, fmt.Errorf("%w: create %s %s", ErrReadOnly, e.entityType, id)
		}
		return rec, nil
	}
	return e.hc.batch.GetOrCreate(e.entityType, id, def)
}
