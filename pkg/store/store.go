package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
)

var (
	// ErrUnknownEntityType is returned for entity types outside the configured set.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrBatchClosed is returned when a committed or discarded batch is used.
	ErrBatchClosed = errors.New("batch already committed or discarded")
)

// Change is the net effect of a commit on one entity. Record is nil for deletions.
type Change struct {
	EntityType string  `json:"entity_type"`
	ID         string  `json:"id"`
	Record     *Record `json:"record,omitempty"`
}

// Store owns the current snapshot and merges per-item batches into it.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	entityTypes map[string]struct{}
	log         *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEntityTypes restricts the entity types that can be read and written.
func WithEntityTypes(types ...string) Option {
	return func(s *Store) {
		if len(types) == 0 {
			return
		}
		s.entityTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.entityTypes[t] = struct{}{}
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) {
		s.log = log.WithComponent(common.ComponentEntityStore)
	}
}

// New creates a store starting at initial, or at an empty snapshot when initial is nil.
func New(initial *Snapshot, opts ...Option) *Store {
	s := &Store{log: logger.NewNopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	if initial == nil {
		initial = NewSnapshot()
	}
	s.current.Store(initial)

	return s
}

// Current returns the latest committed snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Restore replaces the current snapshot, e.g. with state loaded from a checkpoint.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(snap)
}

// CheckType returns ErrUnknownEntityType if entityType is not allowed.
func (s *Store) CheckType(entityType string) error {
	if entityType == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownEntityType)
	}
	if s.entityTypes == nil {
		return nil
	}
	if _, ok := s.entityTypes[entityType]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
	return nil
}

// Begin opens a write buffer reading from the current snapshot.
func (s *Store) Begin() *Batch {
	return &Batch{
		store:  s,
		base:   s.Current(),
		staged: make(map[entityKey]*Record),
	}
}

// Commit merges the batch into the current snapshot and returns the new snapshot
// together with the net changes, ordered by entity type and id.
// An empty batch leaves the current snapshot untouched.
func (s *Store) Commit(b *Batch) (*Snapshot, []Change, error) {
	if b.closed {
		return nil, nil, ErrBatchClosed
	}
	b.closed = true

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if len(b.staged) == 0 {
		return cur, nil, nil
	}

	keys := make([]entityKey, 0, len(b.staged))
	for k := range b.staged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ < keys[j].typ
		}
		return keys[i].id < keys[j].id
	})

	types := cur.types
	changes := make([]Change, 0, len(keys))

	for _, k := range keys {
		rec := b.staged[k]
		if rec == nil {
			var deleted bool
			types, deleted = cur.delete(types, k.typ, k.id)
			if deleted {
				changes = append(changes, Change{EntityType: k.typ, ID: k.id})
			}
			continue
		}

		types = cur.set(types, k.typ, *rec)
		stored := rec.Clone()
		changes = append(changes, Change{EntityType: k.typ, ID: k.id, Record: &stored})
	}

	if len(changes) == 0 {
		return cur, nil, nil
	}

	next := cur.derive(types)
	s.current.Store(next)

	metrics.EntityChangesAdd(len(changes))
	s.log.Debugw("committed batch", "version", next.version, "changes", len(changes))

	return next, changes, nil
}

type entityKey struct {
	typ string
	id  string
}

// Batch is the write buffer of a single item. Reads see the batch's own staged
// writes on top of the snapshot current when the batch was opened.
// A Batch is not safe for concurrent use.
type Batch struct {
	store  *Store
	base   *Snapshot
	staged map[entityKey]*Record
	closed bool

	last    entityKey
	hasLast bool
}

// Base returns the snapshot the batch reads through to.
func (b *Batch) Base() *Snapshot {
	return b.base
}

// Len returns the number of staged entity writes.
func (b *Batch) Len() int {
	return len(b.staged)
}

// LastEntity returns the entity most recently touched through the batch.
func (b *Batch) LastEntity() (entityType, id string, ok bool) {
	return b.last.typ, b.last.id, b.hasLast
}

// Get reads a record, honoring writes staged in this batch.
func (b *Batch) Get(entityType, id string) (Record, bool, error) {
	if err := b.check(entityType); err != nil {
		return Record{}, false, err
	}
	b.touch(entityType, id)

	if rec, staged := b.staged[entityKey{entityType, id}]; staged {
		if rec == nil {
			return Record{}, false, nil
		}
		return rec.Clone(), true, nil
	}

	r, ok := b.base.Get(entityType, id)
	return r, ok, nil
}

// Set stages an upsert. The last write to an id within the batch wins.
func (b *Batch) Set(entityType string, record Record) error {
	if err := b.check(entityType); err != nil {
		return err
	}
	if record.ID == "" {
		return ErrEmptyID
	}
	b.touch(entityType, record.ID)

	rec := record.Clone()
	b.staged[entityKey{entityType, record.ID}] = &rec

	return nil
}

// Delete stages a removal. Deleting a missing id is a no-op at commit.
func (b *Batch) Delete(entityType, id string) error {
	if err := b.check(entityType); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyID
	}
	b.touch(entityType, id)

	b.staged[entityKey{entityType, id}] = nil

	return nil
}

// GetOrCreate returns the existing record or stages def under id and returns it.
// Repeated calls for the same id return the same record and stage one insertion.
func (b *Batch) GetOrCreate(entityType, id string, def map[string]any) (Record, error) {
	rec, ok, err := b.Get(entityType, id)
	if err != nil {
		return Record{}, err
	}
	if ok {
		return rec, nil
	}

	created := NewRecord(id, def)
	if err := b.Set(entityType, created); err != nil {
		return Record{}, err
	}

	return created.Clone(), nil
}

// Discard drops every staged write.
func (b *Batch) Discard() {
	b.closed = true
	b.staged = make(map[entityKey]*Record)
}

func (b *Batch) check(entityType string) error {
	if b.closed {
		return ErrBatchClosed
	}
	return b.store.CheckType(entityType)
}

func (b *Batch) touch(entityType, id string) {
	b.last = entityKey{entityType, id}
	b.hasLast = true
}
