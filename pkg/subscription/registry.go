package subscription

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
)

type templateEvent struct {
	signature string
	filters   []EventFilter
}

type dynamicKey struct {
	contract string
	address  common.Address
}

type chainSubscriptions struct {
	// exact maps address -> event signature -> subscriptions
	exact map[common.Address]map[string][]*Subscription

	// wildcard maps event signature -> subscriptions matching any address
	wildcard map[string][]*Subscription

	// templates maps contract name -> events, used for dynamic registration
	templates map[string][]templateEvent

	dynamic map[dynamicKey]DynamicContract
}

func newChainSubscriptions() *chainSubscriptions {
	return &chainSubscriptions{
		exact:     make(map[common.Address]map[string][]*Subscription),
		wildcard:  make(map[string][]*Subscription),
		templates: make(map[string][]templateEvent),
		dynamic:   make(map[dynamicKey]DynamicContract),
	}
}

var _ feed.ContractResolver = (*Registry)(nil)

// Registry holds the active subscriptions of every chain.
// Matches may run concurrently with registrations from other chains.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]*chainSubscriptions
	log    *logger.Logger

	// signatures caches inbound signature -> canonical form
	signatures sync.Map
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Registry{
		chains: make(map[uint64]*chainSubscriptions),
		log:    log.WithComponent(internalcommon.ComponentSubscriptionRegistry),
	}
}

func (r *Registry) chain(chainID uint64) *chainSubscriptions {
	cs, ok := r.chains[chainID]
	if !ok {
		cs = newChainSubscriptions()
		r.chains[chainID] = cs
	}
	return cs
}

// RegisterStatic adds a configured subscription. The event signature is normalized
// to its canonical form. Registering the same (chain, address, event) again with the
// same contract and filters is a no-op; anything else is a ConflictingSubscriptionError.
// A subscription with neither an address nor the wildcard flag only declares the
// contract's event for later dynamic registration.
func (r *Registry) RegisterStatic(sub Subscription) error {
	if sub.ContractName == "" {
		return fmt.Errorf("%w: contract name is required", ErrInvalidSubscription)
	}
	if sub.Wildcard && sub.Address != nil {
		return fmt.Errorf("%w: %s is both wildcard and bound to %s", ErrInvalidSubscription, sub.ContractName, sub.Address.Hex())
	}

	canonical, err := feed.CanonicalSignature(sub.EventSignature)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSubscription, sub.ContractName, err)
	}

	s := sub
	s.EventSignature = canonical
	s.RegisteredAt = nil
	if sub.Address != nil {
		addr := *sub.Address
		s.Address = &addr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.chain(s.ChainID)

	var bucket *[]*Subscription
	switch {
	case s.Wildcard:
		subs := cs.wildcard[canonical]
		bucket = &subs
	case s.Address != nil:
		subs := cs.exact[*s.Address][canonical]
		bucket = &subs
	}

	if bucket != nil {
		dup, err := checkDuplicate(*bucket, &s)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}

	if err := cs.addTemplate(&s); err != nil {
		return err
	}

	switch {
	case s.Wildcard:
		cs.wildcard[canonical] = append(*bucket, &s)
	case s.Address != nil:
		bySig, ok := cs.exact[*s.Address]
		if !ok {
			bySig = make(map[string][]*Subscription)
			cs.exact[*s.Address] = bySig
		}
		bySig[canonical] = append(*bucket, &s)
	default:
		return nil
	}

	r.log.Debugw("registered subscription", "chain_id", s.ChainID, "key", s.Key(), "target", s.target())

	return nil
}

func (cs *chainSubscriptions) addTemplate(s *Subscription) error {
	for _, ev := range cs.templates[s.ContractName] {
		if ev.signature != s.EventSignature {
			continue
		}
		if !filtersEqual(ev.filters, s.Filters) {
			return &ConflictingSubscriptionError{
				ChainID:        s.ChainID,
				Address:        s.target(),
				EventSignature: s.EventSignature,
				Existing:       fmt.Sprintf("%s filters=%v", s.ContractName, ev.filters),
				Conflicting:    s.describe(),
			}
		}
		return nil
	}

	cs.templates[s.ContractName] = append(cs.templates[s.ContractName], templateEvent{
		signature: s.EventSignature,
		filters:   s.Filters,
	})

	return nil
}

// checkDuplicate returns true when an identical subscription already exists.
func checkDuplicate(existing []*Subscription, s *Subscription) (bool, error) {
	if len(existing) == 0 {
		return false, nil
	}

	e := existing[0]
	if e.ContractName == s.ContractName && filtersEqual(e.Filters, s.Filters) {
		return true, nil
	}

	return false, &ConflictingSubscriptionError{
		ChainID:        s.ChainID,
		Address:        s.target(),
		EventSignature: s.EventSignature,
		Existing:       e.describe(),
		Conflicting:    s.describe(),
	}
}

// RegisterDynamic subscribes address to every event configured for contractName.
// The new subscriptions only match items positioned after at. Registering the same
// contract and address twice is a no-op and returns no subscriptions.
func (r *Registry) RegisterDynamic(chainID uint64, contractName string, address common.Address,
	at feed.Position) ([]*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.chains[chainID]
	if !ok || len(cs.templates[contractName]) == 0 {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrUnknownContract, contractName, chainID)
	}

	key := dynamicKey{contract: contractName, address: address}
	if _, exists := cs.dynamic[key]; exists {
		return nil, nil
	}

	bySig, ok := cs.exact[address]
	if !ok {
		bySig = make(map[string][]*Subscription)
		cs.exact[address] = bySig
	}

	var added []*Subscription
	for _, ev := range cs.templates[contractName] {
		if hasContract(bySig[ev.signature], contractName) {
			continue
		}

		addr := address
		pos := at
		s := &Subscription{
			ChainID:        chainID,
			ContractName:   contractName,
			EventSignature: ev.signature,
			Address:        &addr,
			Filters:        ev.filters,
			RegisteredAt:   &pos,
		}
		bySig[ev.signature] = append(bySig[ev.signature], s)
		added = append(added, s)
	}

	cs.dynamic[key] = DynamicContract{
		ChainID:      chainID,
		ContractName: contractName,
		Address:      address,
		RegisteredAt: at,
	}

	metrics.DynamicRegistrationsInc(chainID, contractName)
	r.log.Infow("registered dynamic contract",
		"chain_id", chainID, "contract", contractName, "address", address.Hex(), "after", at.String())

	return added, nil
}

// canonical returns the canonical form of sig. A signature that does not parse is
// returned unchanged and matches nothing.
func (r *Registry) canonical(sig string) string {
	if v, ok := r.signatures.Load(sig); ok {
		return v.(string)
	}

	c, err := feed.CanonicalSignature(sig)
	if err != nil {
		c = sig
	}
	r.signatures.Store(sig, c)

	return c
}

func hasContract(subs []*Subscription, contractName string) bool {
	for _, s := range subs {
		if s.ContractName == contractName {
			return true
		}
	}
	return false
}

// Matches returns the subscriptions an event triggers, exact address matches first,
// then wildcard matches. A wildcard subscription is skipped when an exact one with
// the same handler key already matched. eventSignature may be in any form
// ParseEventSignature accepts.
func (r *Registry) Matches(chainID uint64, address common.Address, eventSignature string,
	fields map[string]any, at feed.Position) []*Subscription {
	eventSignature = r.canonical(eventSignature)

	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	if !ok {
		return nil
	}

	var (
		matched []*Subscription
		keys    map[string]struct{}
	)

	if bySig, ok := cs.exact[address]; ok {
		for _, s := range bySig[eventSignature] {
			if !s.ActiveAt(at) || !MatchAny(s.Filters, fields) {
				continue
			}
			matched = append(matched, s)
			if keys == nil {
				keys = make(map[string]struct{})
			}
			keys[s.Key()] = struct{}{}
		}
	}

	for _, s := range cs.wildcard[eventSignature] {
		if _, dup := keys[s.Key()]; dup {
			continue
		}
		if MatchAny(s.Filters, fields) {
			matched = append(matched, s)
		}
	}

	return matched
}

// ContractsAt returns the contracts subscribed to eventSignature at address, exact
// subscriptions (static and dynamic) first, then wildcard ones.
func (r *Registry) ContractsAt(chainID uint64, address common.Address, eventSignature string) []string {
	eventSignature = r.canonical(eventSignature)

	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	if !ok {
		return nil
	}

	var out []string
	for _, s := range cs.exact[address][eventSignature] {
		out = append(out, s.ContractName)
	}
	for _, s := range cs.wildcard[eventSignature] {
		out = append(out, s.ContractName)
	}

	return out
}

// HasContract reports whether contractName has configured events on the chain.
func (r *Registry) HasContract(chainID uint64, contractName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	return ok && len(cs.templates[contractName]) > 0
}

// EventSignatures returns the canonical signatures configured on the chain, sorted.
func (r *Registry) EventSignatures(chainID uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	for _, events := range cs.templates {
		for _, ev := range events {
			seen[ev.signature] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for sig := range seen {
		out = append(out, sig)
	}
	sort.Strings(out)

	return out
}

// Subscriptions returns copies of the chain's active subscriptions ordered by key and address.
func (r *Registry) Subscriptions(chainID uint64) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	if !ok {
		return nil
	}

	var out []Subscription
	for _, bySig := range cs.exact {
		for _, subs := range bySig {
			for _, s := range subs {
				out = append(out, *s)
			}
		}
	}
	for _, subs := range cs.wildcard {
		for _, s := range subs {
			out = append(out, *s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() < out[j].Key()
		}
		return out[i].target() < out[j].target()
	})

	return out
}

// DynamicContracts returns the contracts registered by handlers on the chain,
// in registration order.
func (r *Registry) DynamicContracts(chainID uint64) []DynamicContract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.chains[chainID]
	if !ok {
		return nil
	}

	out := make([]DynamicContract, 0, len(cs.dynamic))
	for _, dc := range cs.dynamic {
		out = append(out, dc)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].RegisteredAt.Compare(out[j].RegisteredAt); c != 0 {
			return c < 0
		}
		if out[i].ContractName != out[j].ContractName {
			return out[i].ContractName < out[j].ContractName
		}
		return out[i].Address.Cmp(out[j].Address) < 0
	})

	return out
}

// Chains returns the chain ids with subscriptions, sorted.
func (r *Registry) Chains() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
