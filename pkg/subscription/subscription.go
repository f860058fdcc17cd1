package subscription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
)

var (
	// ErrUnknownContract is returned when a dynamic registration names a contract
	// that has no configured events on the chain.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrInvalidSubscription is returned for malformed static subscriptions.
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// ConflictingSubscriptionError is returned when the same (chain, address, event) is
// registered twice with a different contract or different filters.
type ConflictingSubscriptionError struct {
	ChainID        uint64
	Address        string
	EventSignature string
	Existing       string
	Conflicting    string
}

func (e *ConflictingSubscriptionError) Error() string {
	return fmt.Sprintf("conflicting subscription on chain %d for %s at %s: %s vs %s",
		e.ChainID, e.EventSignature, e.Address, e.Existing, e.Conflicting)
}

// Subscription binds an event of a contract on one chain to a handler key.
// Address is nil for wildcard subscriptions and for contract templates.
type Subscription struct {
	ChainID        uint64          `json:"chain_id"`
	ContractName   string          `json:"contract"`
	EventSignature string          `json:"event_signature"`
	Address        *common.Address `json:"address,omitempty"`
	Filters        []EventFilter   `json:"filters,omitempty"`
	Wildcard       bool            `json:"wildcard"`

	// RegisteredAt is set for dynamic subscriptions: they only match items after it.
	RegisteredAt *feed.Position `json:"registered_at,omitempty"`
}

// EventName returns the event name part of the signature.
func (s *Subscription) EventName() string {
	if i := strings.Index(s.EventSignature, "("); i >= 0 {
		return s.EventSignature[:i]
	}
	return s.EventSignature
}

// Key is the handler registration key, "Contract.Event".
func (s *Subscription) Key() string {
	return s.ContractName + "." + s.EventName()
}

// Dynamic reports whether the subscription was added by a handler.
func (s *Subscription) Dynamic() bool {
	return s.RegisteredAt != nil
}

// ActiveAt reports whether the subscription applies to an item at pos.
func (s *Subscription) ActiveAt(pos feed.Position) bool {
	return s.RegisteredAt == nil || s.RegisteredAt.Less(pos)
}

func (s *Subscription) target() string {
	if s.Wildcard {
		return "*"
	}
	if s.Address == nil {
		return "template"
	}
	return s.Address.Hex()
}

func (s *Subscription) describe() string {
	return fmt.Sprintf("%s filters=%v", s.Key(), s.Filters)
}

// DynamicContract is a contract address registered by a handler.
type DynamicContract struct {
	ChainID      uint64         `json:"chain_id"`
	ContractName string         `json:"contract"`
	Address      common.Address `json:"address"`
	RegisteredAt feed.Position  `json:"registered_at"`
}
