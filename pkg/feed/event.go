package feed

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUnknownEvent is returned when no registered event spec matches a log.
	ErrUnknownEvent = errors.New("unknown event")

	eventNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	paramNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// EventParam is a parameter of an event signature.
type EventParam struct {
	Name    string
	Type    string
	Indexed bool
}

// EventSpec is a parsed event signature able to decode matching logs.
type EventSpec struct {
	Name   string
	Params []EventParam

	args      abi.Arguments
	canonical string
	topic     common.Hash
	indexed   int
}

// ParseEventSignature parses an event signature string.
// Supported formats:
//   - "Transfer(address,address,uint256)"
//   - "Transfer(address indexed from, address indexed to, uint256 value)"
//
// Unnamed parameters are called param0, param1, ... by position.
func ParseEventSignature(sig string) (*EventSpec, error) {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return nil, fmt.Errorf("empty signature")
	}

	openParen := strings.Index(sig, "(")
	closeParen := strings.LastIndex(sig, ")")
	if openParen == -1 || closeParen == -1 || closeParen < openParen || closeParen != len(sig)-1 {
		return nil, fmt.Errorf("invalid signature %q: malformed parentheses", sig)
	}

	name := strings.TrimSpace(sig[:openParen])
	if !eventNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid signature %q: bad event name %q", sig, name)
	}

	spec := &EventSpec{Name: name}

	if body := strings.TrimSpace(sig[openParen+1 : closeParen]); body != "" {
		seen := make(map[string]struct{})
		for i, raw := range splitParameters(body) {
			param, err := parseParameter(strings.TrimSpace(raw), i)
			if err != nil {
				return nil, fmt.Errorf("invalid signature %q: parameter %d: %w", sig, i, err)
			}
			if _, dup := seen[param.Name]; dup {
				return nil, fmt.Errorf("invalid signature %q: duplicate parameter name %s", sig, param.Name)
			}
			seen[param.Name] = struct{}{}

			typ, err := abi.NewType(param.Type, "", nil)
			if err != nil {
				return nil, fmt.Errorf("invalid signature %q: parameter %s: %w", sig, param.Name, err)
			}
			param.Type = typ.String()

			spec.Params = append(spec.Params, param)
			spec.args = append(spec.args, abi.Argument{Name: param.Name, Type: typ, Indexed: param.Indexed})
			if param.Indexed {
				spec.indexed++
			}
		}
	}

	typeNames := make([]string, len(spec.Params))
	for i, p := range spec.Params {
		typeNames[i] = p.Type
	}
	spec.canonical = spec.Name + "(" + strings.Join(typeNames, ",") + ")"
	spec.topic = crypto.Keccak256Hash([]byte(spec.canonical))

	return spec, nil
}

// CanonicalSignature normalizes an event signature to "Name(type1,type2,...)".
func CanonicalSignature(sig string) (string, error) {
	spec, err := ParseEventSignature(sig)
	if err != nil {
		return "", err
	}
	return spec.Signature(), nil
}

// splitParameters splits a parameter list by top level commas.
func splitParameters(body string) []string {
	var (
		params  []string
		current strings.Builder
		depth   int
	)

	for _, ch := range body {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				params = append(params, current.String())
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}

	return append(params, current.String())
}

// parseParameter parses "type", "type name", "type indexed" or "type indexed name".
func parseParameter(raw string, index int) (EventParam, error) {
	parts := strings.Fields(raw)
	param := EventParam{Name: fmt.Sprintf("param%d", index)}

	switch len(parts) {
	case 0:
		return EventParam{}, fmt.Errorf("empty parameter")
	case 1:
		param.Type = parts[0]
	case 2: //nolint:mnd
		param.Type = parts[0]
		if parts[1] == "indexed" {
			param.Indexed = true
		} else {
			param.Name = parts[1]
		}
	case 3: //nolint:mnd
		if parts[1] != "indexed" {
			return EventParam{}, fmt.Errorf("expected 'indexed' keyword, got '%s'", parts[1])
		}
		param.Type, param.Indexed, param.Name = parts[0], true, parts[2]
	default:
		return EventParam{}, fmt.Errorf("too many parts in %q", raw)
	}

	if !paramNameRe.MatchString(param.Name) {
		return EventParam{}, fmt.Errorf("invalid parameter name: %s", param.Name)
	}

	return param, nil
}

// Signature returns the canonical signature, e.g. "Transfer(address,address,uint256)".
func (e *EventSpec) Signature() string { return e.canonical }

// Topic returns topic0 of logs emitted for this event.
func (e *EventSpec) Topic() common.Hash { return e.topic }

// IndexedCount returns the number of indexed parameters.
func (e *EventSpec) IndexedCount() int { return e.indexed }

// Decode decodes a log's topics and data into named fields.
// Indexed dynamic types (string, bytes, arrays) decode to their topic hash.
func (e *EventSpec) Decode(log types.Log) (map[string]any, error) {
	if len(log.Topics) == 0 || log.Topics[0] != e.topic {
		return nil, fmt.Errorf("log topic does not match %s", e.canonical)
	}
	if len(log.Topics)-1 != e.indexed {
		return nil, fmt.Errorf("%s expects %d indexed topics, log has %d", e.canonical, e.indexed, len(log.Topics)-1)
	}

	fields := make(map[string]any, len(e.args))

	if err := e.args.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s data: %w", e.canonical, err)
	}

	var indexed abi.Arguments
	for _, arg := range e.args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse %s topics: %w", e.canonical, err)
	}

	return fields, nil
}

// ContractResolver names the contracts subscribed to an event at an address, most
// specific first.
type ContractResolver interface {
	ContractsAt(chainID uint64, address common.Address, eventSignature string) []string
}

type contractSpec struct {
	contract string
	spec     *EventSpec
	layout   string
}

// Decoder turns raw logs into event items using a set of event specs.
// Specs sharing topic0 (ERC20 and ERC721 Transfer) are told apart by their indexed
// topic count. Contracts declaring the same event with different parameter names or
// indexed positions (ERC20 from/to/value, WETH src/dst/wad) are told apart by the
// contracts the resolver reports for the log's address.
type Decoder struct {
	byTopic  map[common.Hash][]contractSpec
	resolver ContractResolver
}

// NewDecoder creates a decoder for the given specs.
func NewDecoder(specs ...*EventSpec) *Decoder {
	d := &Decoder{byTopic: make(map[common.Hash][]contractSpec)}
	for _, s := range specs {
		d.Add(s)
	}
	return d
}

// Add registers a spec not tied to a contract.
func (d *Decoder) Add(spec *EventSpec) {
	d.AddContract("", spec)
}

// AddContract registers the spec contract declares. A spec with the same parameter
// layout as a registered one is kept once.
func (d *Decoder) AddContract(contract string, spec *EventSpec) {
	layout := spec.layout()
	for _, existing := range d.byTopic[spec.topic] {
		if existing.layout == layout {
			return
		}
	}
	d.byTopic[spec.topic] = append(d.byTopic[spec.topic], contractSpec{contract: contract, spec: spec, layout: layout})
}

// SetResolver sets the resolver used to pick between specs of different contracts.
func (d *Decoder) SetResolver(r ContractResolver) {
	d.resolver = r
}

// Topics returns the topic0 values of every registered spec, sorted.
func (d *Decoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(d.byTopic))
	for t := range d.byTopic {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Cmp(topics[j]) < 0 })
	return topics
}

// Decode builds an event item from a raw log.
func (d *Decoder) Decode(chainID uint64, log types.Log) (*Item, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: anonymous log at block %d index %d", ErrUnknownEvent, log.BlockNumber, log.Index)
	}

	var candidates []contractSpec
	for _, cs := range d.byTopic[log.Topics[0]] {
		if cs.spec.indexed == len(log.Topics)-1 {
			candidates = append(candidates, cs)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: topic %s with %d indexed topics", ErrUnknownEvent, log.Topics[0].Hex(), len(log.Topics)-1)
	}

	spec := d.pick(chainID, log.Address, candidates)

	fields, err := spec.Decode(log)
	if err != nil {
		return nil, err
	}

	item := NewEventItem(chainID, log.BlockNumber, uint64(log.Index), log.Address, spec.canonical, fields)
	raw := log
	item.Log = &raw

	return item, nil
}

// pick returns the spec of the first contract the resolver names for address,
// falling back to the first registered spec.
func (d *Decoder) pick(chainID uint64, address common.Address, candidates []contractSpec) *EventSpec {
	if len(candidates) == 1 || d.resolver == nil {
		return candidates[0].spec
	}

	for _, name := range d.resolver.ContractsAt(chainID, address, candidates[0].spec.canonical) {
		for _, cs := range candidates {
			if cs.contract == name {
				return cs.spec
			}
		}
	}

	return candidates[0].spec
}

// layout identifies the decoded shape of an event: parameter names and indexed positions.
func (e *EventSpec) layout() string {
	var b strings.Builder
	b.WriteString(e.canonical)
	for _, p := range e.Params {
		b.WriteByte('|')
		b.WriteString(p.Name)
		if p.Indexed {
			b.WriteString("*")
		}
	}
	return b.String()
}
