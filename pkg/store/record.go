package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Record is one entity: a unique id and a field map.
// Field values are treated as immutable; replace a value with With instead of mutating it.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// NewRecord creates a record with a copy of fields.
func NewRecord(id string, fields map[string]any) Record {
	return Record{ID: id, Fields: maps.Clone(fields)}
}

// Clone returns a copy whose field map can be modified independently.
func (r Record) Clone() Record {
	fields := maps.Clone(r.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	return Record{ID: r.ID, Fields: fields}
}

// With returns a copy of the record with field set to value.
func (r Record) With(field string, value any) Record {
	c := r.Clone()
	c.Fields[field] = value
	return c
}

// Get returns a field value.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// String returns a field as a string. Addresses and hashes use their hex form.
func (r Record) String(field string) string {
	switch v := r.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// BigInt returns a numeric field as a new big.Int, or zero when unset or not numeric.
// It accepts the representations produced by the ABI decoder and by JSON round trips.
func (r Record) BigInt(field string) *big.Int {
	out := new(big.Int)

	switch v := r.Fields[field].(type) {
	case *big.Int:
		if v != nil {
			out.Set(v)
		}
	case int:
		out.SetInt64(int64(v))
	case int64:
		out.SetInt64(v)
	case uint64:
		out.SetUint64(v)
	case uint32:
		out.SetUint64(uint64(v))
	case float64:
		new(big.Float).SetFloat64(v).Int(out)
	case json.Number:
		if _, ok := out.SetString(v.String(), 10); !ok { //nolint:mnd
			out.SetInt64(0)
		}
	case string:
		if _, ok := out.SetString(v, 0); !ok {
			out.SetInt64(0)
		}
	}

	return out
}

// Uint64 returns a numeric field as uint64, truncating values that do not fit.
func (r Record) Uint64(field string) uint64 {
	return r.BigInt(field).Uint64()
}
