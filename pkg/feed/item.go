package feed

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind distinguishes block items from event items.
type Kind uint8

const (
	KindBlock Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// BlockItemIndex is the log index a block item occupies in the chain ordering.
// It sorts after every event of the same block.
const BlockItemIndex uint64 = 1 << 24

// Position is a point in a chain's item ordering.
type Position struct {
	Block    uint64 `json:"block"`
	LogIndex uint64 `json:"log_index"`
}

// Compare returns -1, 0 or +1 depending on whether p sorts before, equal to or after o.
func (p Position) Compare(o Position) int {
	switch {
	case p.Block < o.Block:
		return -1
	case p.Block > o.Block:
		return 1
	case p.LogIndex < o.LogIndex:
		return -1
	case p.LogIndex > o.LogIndex:
		return 1
	default:
		return 0
	}
}

// Less reports whether p sorts strictly before o.
func (p Position) Less(o Position) bool {
	return p.Compare(o) < 0
}

// IsBlock reports whether the position belongs to a block item.
func (p Position) IsBlock() bool {
	return p.LogIndex == BlockItemIndex
}

func (p Position) String() string {
	if p.IsBlock() {
		return fmt.Sprintf("%d/block", p.Block)
	}
	return fmt.Sprintf("%d/%d", p.Block, p.LogIndex)
}

// Item is one element of a chain's ordered input: a block boundary or a decoded event.
type Item struct {
	ChainID     uint64
	Kind        Kind
	BlockNumber uint64

	// Event items only.
	LogIndex       uint64
	Address        common.Address
	EventSignature string
	Fields         map[string]any
	Log            *types.Log

	// Block items only, when the source fetched the header.
	Header *types.Header
}

// NewBlockItem creates a block item.
func NewBlockItem(chainID, number uint64) *Item {
	return &Item{ChainID: chainID, Kind: KindBlock, BlockNumber: number}
}

// NewEventItem creates an event item with already decoded fields.
func NewEventItem(chainID, block, logIndex uint64, address common.Address, signature string,
	fields map[string]any) *Item {
	return &Item{
		ChainID:        chainID,
		Kind:           KindEvent,
		BlockNumber:    block,
		LogIndex:       logIndex,
		Address:        address,
		EventSignature: signature,
		Fields:         fields,
	}
}

// Position returns the item's place in its chain ordering.
func (i *Item) Position() Position {
	if i.Kind == KindBlock {
		return Position{Block: i.BlockNumber, LogIndex: BlockItemIndex}
	}
	return Position{Block: i.BlockNumber, LogIndex: i.LogIndex}
}

// Field returns a decoded event field.
func (i *Item) Field(name string) (any, bool) {
	v, ok := i.Fields[name]
	return v, ok
}

func (i *Item) String() string {
	if i.Kind == KindBlock {
		return fmt.Sprintf("chain=%d block=%d", i.ChainID, i.BlockNumber)
	}
	return fmt.Sprintf("chain=%d block=%d log=%d address=%s event=%s",
		i.ChainID, i.BlockNumber, i.LogIndex, i.Address.Hex(), i.EventSignature)
}
