package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
)

// ErrChainHalted is returned for items of a chain that stopped on a fatal error.
var ErrChainHalted = errors.New("chain halted")

// OrderingViolationError is returned when an item does not sort strictly after the
// chain cursor. It halts the chain.
type OrderingViolationError struct {
	ChainID uint64
	Cursor  feed.Position
	Got     feed.Position
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering violation on chain %d: item %s is not after cursor %s",
		e.ChainID, e.Got, e.Cursor)
}

// HandlerFailureError reports a failed loader, handler or block callback together with
// everything needed to replay the offending item.
type HandlerFailureError struct {
	ChainID  uint64
	Block    uint64
	LogIndex uint64
	Kind     feed.Kind
	Handler  string

	// EntityType and EntityID name the entity last touched before the failure, if any.
	EntityType string
	EntityID   string

	Err error
}

func (e *HandlerFailureError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "handler %s failed on chain %d at block %d", e.Handler, e.ChainID, e.Block)
	if e.Kind == feed.KindEvent {
		fmt.Fprintf(&b, " log %d", e.LogIndex)
	}
	if e.EntityType != "" {
		fmt.Fprintf(&b, " (entity %s %s)", e.EntityType, e.EntityID)
	}
	fmt.Fprintf(&b, ": %v", e.Err)

	return b.String()
}

func (e *HandlerFailureError) Unwrap() error {
	return e.Err
}
