package subscription

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventFilter constrains decoded event fields. Every field in one filter must match;
// a list value matches when any element equals the field.
type EventFilter map[string]any

// Matches reports whether fields satisfy the filter.
func (f EventFilter) Matches(fields map[string]any) bool {
	for name, want := range f {
		got, ok := fields[name]
		if !ok {
			return false
		}
		if !valueMatches(want, got) {
			return false
		}
	}
	return true
}

// Equal reports whether two filters constrain the same fields to the same values.
func (f EventFilter) Equal(o EventFilter) bool {
	if len(f) != len(o) {
		return false
	}
	for name, v := range f {
		ov, ok := o[name]
		if !ok {
			return false
		}
		if !sameValues(candidates(v), candidates(ov)) {
			return false
		}
	}
	return true
}

// MatchAny reports whether fields satisfy at least one filter. No filters match everything.
func MatchAny(filters []EventFilter, fields map[string]any) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(fields) {
			return true
		}
	}
	return false
}

func filtersEqual(a, b []EventFilter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func valueMatches(want, got any) bool {
	g := normalize(got)

	// Short hex literals normalize to base 10, so fixed size bytes also compare by value.
	var quantity string
	if _, isAddress := got.(common.Address); !isAddress {
		if b, ok := fixedBytes(got); ok {
			quantity = new(big.Int).SetBytes(b).String()
		}
	}

	for _, c := range candidates(want) {
		if c == g || (quantity != "" && c == quantity) {
			return true
		}
	}
	return false
}

// candidates expands a filter value into its normalized alternatives.
func candidates(v any) []string {
	_, isBytes := v.([]byte)
	_, isFixed := fixedBytes(v)
	if !isBytes && !isFixed {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]string, 0, rv.Len())
			for i := range rv.Len() {
				out = append(out, normalize(rv.Index(i).Interface()))
			}
			return out
		}
	}
	return []string{normalize(v)}
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// normalize renders decoded values and configuration literals in one comparable form:
// lowercase hex for addresses and hashes, base 10 for integers.
func normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case common.Address:
		return strings.ToLower(x.Hex())
	case *common.Address:
		if x == nil {
			return ""
		}
		return strings.ToLower(x.Hex())
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case string:
		return normalizeString(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	default:
		if b, ok := fixedBytes(x); ok {
			return hexutil.Encode(b)
		}
		return fmt.Sprint(x)
	}
}

// fixedBytes returns the contents of a [N]byte value such as a decoded bytes32 topic.
func fixedBytes(v any) ([]byte, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array || rv.Type().Elem().Kind() != reflect.Uint8 {
		return nil, false
	}

	b := make([]byte, rv.Len())
	for i := range b {
		b[i] = byte(rv.Index(i).Uint())
	}
	return b, true
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return s
	}

	lower := strings.ToLower(s)
	if len(lower) == 2+2*common.AddressLength || len(lower) == 2+2*common.HashLength {
		return lower
	}

	if n, ok := new(big.Int).SetString(lower[2:], 16); ok { //nolint:mnd
		return n.String()
	}

	return lower
}
