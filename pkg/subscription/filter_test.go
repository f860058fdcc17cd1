package subscription

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11cE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000CA201")
)

func TestEventFilter_Matches(t *testing.T) {
	t.Parallel()

	fields := map[string]any{"from": alice, "to": bob, "value": big.NewInt(100), "ok": true}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{name: "empty filter", filter: EventFilter{}, want: true},
		{name: "address object", filter: EventFilter{"from": alice}, want: true},
		{name: "lowercase address string", filter: EventFilter{"from": "0x00000000000000000000000000000000000a11ce"}, want: true},
		{name: "wrong address", filter: EventFilter{"from": bob}, want: false},
		{name: "all fields must match", filter: EventFilter{"from": alice, "to": carol}, want: false},
		{name: "both fields match", filter: EventFilter{"from": alice, "to": bob}, want: true},
		{name: "decimal string number", filter: EventFilter{"value": "100"}, want: true},
		{name: "json float number", filter: EventFilter{"value": float64(100)}, want: true},
		{name: "hex quantity", filter: EventFilter{"value": "0x64"}, want: true},
		{name: "int number", filter: EventFilter{"value": 101}, want: false},
		{name: "bool", filter: EventFilter{"ok": true}, want: true},
		{name: "any of list", filter: EventFilter{"to": []any{carol.Hex(), bob.Hex()}}, want: true},
		{name: "none of list", filter: EventFilter{"to": []common.Address{alice, carol}}, want: false},
		{name: "missing field", filter: EventFilter{"spender": alice}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, tt.filter.Matches(fields))
		})
	}
}

func TestEventFilter_FixedBytes(t *testing.T) {
	t.Parallel()

	var id [32]byte
	id[31] = 1
	selector := [4]byte{0x12, 0x34, 0x56, 0x78}

	fields := map[string]any{"id": id, "selector": selector}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{name: "full bytes32 literal", filter: EventFilter{"id": "0x" + strings.Repeat("00", 31) + "01"}, want: true},
		{name: "uppercase bytes32 literal", filter: EventFilter{"id": "0X" + strings.Repeat("00", 31) + "01"}, want: true},
		{name: "short bytes32 literal", filter: EventFilter{"id": "0x1"}, want: true},
		{name: "bytes32 value", filter: EventFilter{"id": id}, want: true},
		{name: "hash value", filter: EventFilter{"id": common.BigToHash(big.NewInt(1))}, want: true},
		{name: "other bytes32", filter: EventFilter{"id": "0x" + strings.Repeat("00", 31) + "02"}, want: false},
		{name: "bytes32 in list", filter: EventFilter{"id": []any{"0x02", id}}, want: true},
		{name: "bytes4 literal", filter: EventFilter{"selector": "0x12345678"}, want: true},
		{name: "bytes4 value", filter: EventFilter{"selector": selector}, want: true},
		{name: "other bytes4", filter: EventFilter{"selector": "0x12345679"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, tt.filter.Matches(fields))
		})
	}
}

func TestEventFilter_EqualFixedBytes(t *testing.T) {
	t.Parallel()

	var id [32]byte
	id[31] = 1

	require.True(t, EventFilter{"id": id}.Equal(EventFilter{"id": common.BytesToHash([]byte{1})}))
	require.False(t, EventFilter{"id": id}.Equal(EventFilter{"id": []any{id, id}}))
}

func TestMatchAny(t *testing.T) {
	t.Parallel()

	filters := []EventFilter{
		{"from": alice, "to": bob},
		{"from": carol},
	}

	tests := []struct {
		name   string
		fields map[string]any
		want   bool
	}{
		{name: "first filter", fields: map[string]any{"from": alice, "to": bob}, want: true},
		{name: "second filter", fields: map[string]any{"from": carol, "to": alice}, want: true},
		{name: "partial first filter", fields: map[string]any{"from": alice, "to": carol}, want: false},
		{name: "neither", fields: map[string]any{"from": bob, "to": bob}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, MatchAny(filters, tt.fields))
		})
	}

	require.True(t, MatchAny(nil, map[string]any{}))
}

func TestEventFilter_Equal(t *testing.T) {
	t.Parallel()

	require.True(t, EventFilter{"from": alice}.Equal(EventFilter{"from": alice.Hex()}))
	require.True(t, EventFilter{"to": []any{alice, bob}}.Equal(EventFilter{"to": []string{bob.Hex(), alice.Hex()}}))
	require.False(t, EventFilter{"from": alice}.Equal(EventFilter{"to": alice}))
	require.False(t, EventFilter{"from": alice}.Equal(EventFilter{"from": alice, "to": bob}))
	require.True(t, filtersEqual(nil, []EventFilter{}))
}
