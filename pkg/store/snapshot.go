package store

import (
	"errors"
	"sort"

	"github.com/benbjohnson/immutable"
)

// ErrEmptyID is returned when a record without an id is written.
var ErrEmptyID = errors.New("entity id must not be empty")

type records = immutable.SortedMap[string, Record]

// Snapshot is an immutable view of every entity, grouped by entity type.
// Set and Delete return new snapshots that share unchanged structure with the receiver.
type Snapshot struct {
	types   *immutable.Map[string, *records]
	version uint64
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{types: immutable.NewMap[string, *records](nil)}
}

// Version is incremented by every derived snapshot.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Get returns a copy of the record stored under (entityType, id).
func (s *Snapshot) Get(entityType, id string) (Record, bool) {
	recs, ok := s.types.Get(entityType)
	if !ok {
		return Record{}, false
	}

	r, ok := recs.Get(id)
	if !ok {
		return Record{}, false
	}

	return r.Clone(), true
}

// Set returns a snapshot in which (entityType, record.ID) holds record.
func (s *Snapshot) Set(entityType string, record Record) (*Snapshot, error) {
	if record.ID == "" {
		return nil, ErrEmptyID
	}

	return s.derive(s.set(s.types, entityType, record)), nil
}

// Delete returns a snapshot without (entityType, id).
// Deleting an id that does not exist returns the receiver itself.
func (s *Snapshot) Delete(entityType, id string) *Snapshot {
	types, changed := s.delete(s.types, entityType, id)
	if !changed {
		return s
	}

	return s.derive(types)
}

// All returns every record of a type ordered by id.
func (s *Snapshot) All(entityType string) []Record {
	recs, ok := s.types.Get(entityType)
	if !ok {
		return nil
	}

	out := make([]Record, 0, recs.Len())
	itr := recs.Iterator()
	for !itr.Done() {
		_, r, _ := itr.Next()
		out = append(out, r.Clone())
	}

	return out
}

// Count returns the number of records of a type.
func (s *Snapshot) Count(entityType string) int {
	recs, ok := s.types.Get(entityType)
	if !ok {
		return 0
	}
	return recs.Len()
}

// Types returns the entity types holding at least one record, sorted.
func (s *Snapshot) Types() []string {
	out := make([]string, 0, s.types.Len())
	itr := s.types.Iterator()
	for !itr.Done() {
		name, _, _ := itr.Next()
		out = append(out, name)
	}
	sort.Strings(out)

	return out
}

// Equal reports whether both snapshots hold the same ids per type.
// Field values are not compared.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == o {
		return true
	}
	if s.types.Len() != o.types.Len() {
		return false
	}

	for _, typ := range s.Types() {
		a, b := s.All(typ), o.All(typ)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i].ID != b[i].ID {
				return false
			}
		}
	}

	return true
}

func (s *Snapshot) derive(types *immutable.Map[string, *records]) *Snapshot {
	return &Snapshot{types: types, version: s.version + 1}
}

func (s *Snapshot) set(types *immutable.Map[string, *records], entityType string,
	record Record) *immutable.Map[string, *records] {
	recs, ok := types.Get(entityType)
	if !ok {
		recs = immutable.NewSortedMap[string, Record](nil)
	}

	return types.Set(entityType, recs.Set(record.ID, record.Clone()))
}

func (s *Snapshot) delete(types *immutable.Map[string, *records], entityType,
	id string) (*immutable.Map[string, *records], bool) {
	recs, ok := types.Get(entityType)
	if !ok {
		return types, false
	}
	if _, ok := recs.Get(id); !ok {
		return types, false
	}

	recs = recs.Delete(id)
	if recs.Len() == 0 {
		return types.Delete(entityType), true
	}

	return types.Set(entityType, recs), true
}
