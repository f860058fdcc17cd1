// Package source turns eth_getLogs ranges into the ordered item stream the scheduler consumes.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	internalcommon "github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/rpc"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	pkgrpc "github.com/goran-ethernal/ChainRuntime/pkg/rpc"
)

var _ feed.Feed = (*LogSource)(nil)

// Config controls what a LogSource fetches.
type Config struct {
	ChainID       uint64
	StartBlock    uint64
	EndBlock      uint64
	ChunkSize     uint64
	Confirmations uint64
	PollInterval  time.Duration

	// Addresses restricts eth_getLogs to these contracts. Empty fetches every address
	// emitting a subscribed topic, which wildcard and dynamically registered contracts need.
	Addresses []common.Address

	// BlockItems emits a block item after the events of every block.
	BlockItems bool

	// Resume skips every item at or before this position.
	Resume *feed.Position
}

// ConfigFromChain derives a source configuration from a chain configuration.
func ConfigFromChain(chain config.ChainConfig) Config {
	cfg := Config{
		ChainID:       chain.ID,
		StartBlock:    chain.StartBlock,
		EndBlock:      chain.EndBlock,
		ChunkSize:     chain.ChunkSize,
		Confirmations: chain.Confirmations,
		PollInterval:  chain.PollInterval.Duration,
		BlockItems:    len(chain.BlockJobs) > 0,
	}

	fixedOnly := true
	seen := make(map[common.Address]struct{})
	for _, c := range chain.Contracts {
		if c.Wildcard || len(c.Addresses) == 0 {
			fixedOnly = false
			break
		}
		for _, a := range c.Addresses {
			addr := common.HexToAddress(a)
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				cfg.Addresses = append(cfg.Addresses, addr)
			}
		}
	}
	if !fixedOnly {
		cfg.Addresses = nil
	}

	return cfg
}

// DecoderFromChain parses every configured event signature of a chain. resolver,
// if not nil, picks between contracts declaring one event with different parameter names.
func DecoderFromChain(chain config.ChainConfig, resolver feed.ContractResolver) (*feed.Decoder, error) {
	d := feed.NewDecoder()
	if resolver != nil {
		d.SetResolver(resolver)
	}
	for _, c := range chain.Contracts {
		for _, ev := range c.Events {
			spec, err := feed.ParseEventSignature(ev.Signature)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", c.Name, err)
			}
			d.AddContract(c.Name, spec)
		}
	}
	return d, nil
}

// LogSource is a feed.Feed over a JSON-RPC node. It walks the chain in chunks from
// the start block, stays Confirmations blocks behind the head and polls for new blocks
// until EndBlock (if set) is reached.
type LogSource struct {
	cfg     Config
	client  pkgrpc.EthClient
	decoder *feed.Decoder
	log     *logger.Logger

	next    uint64
	pending []entry
	done    bool
}

// entry is a fetched log, or a block marker when log is nil. Logs are decoded as they
// are handed out so contracts registered by earlier items are known to the decoder.
type entry struct {
	log   *types.Log
	block uint64
}

func (e entry) position() feed.Position {
	if e.log == nil {
		return feed.Position{Block: e.block, LogIndex: feed.BlockItemIndex}
	}
	return feed.Position{Block: e.block, LogIndex: uint64(e.log.Index)}
}

// New creates a log source.
func New(cfg Config, client pkgrpc.EthClient, decoder *feed.Decoder, log *logger.Logger) *LogSource {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second //nolint:mnd
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	next := cfg.StartBlock
	if cfg.Resume != nil && cfg.Resume.Block > next {
		next = cfg.Resume.Block
	}

	return &LogSource{
		cfg:     cfg,
		client:  client,
		decoder: decoder,
		log:     log.WithComponent(internalcommon.ComponentLogSource).WithFields("chain_id", cfg.ChainID),
		next:    next,
	}
}

// Next returns the next item, blocking while the source waits for new blocks.
// It returns io.EOF once EndBlock has been emitted.
func (s *LogSource) Next(ctx context.Context) (*feed.Item, error) {
	for {
		for len(s.pending) == 0 {
			if s.done {
				return nil, io.EOF
			}
			if err := s.fetch(ctx); err != nil {
				return nil, err
			}
		}

		e := s.pending[0]
		s.pending = s.pending[1:]

		if e.log == nil {
			return feed.NewBlockItem(s.cfg.ChainID, e.block), nil
		}

		item, err := s.decoder.Decode(s.cfg.ChainID, *e.log)
		if err != nil {
			if errors.Is(err, feed.ErrUnknownEvent) {
				s.log.Debugw("skipping unknown log", "block", e.block, "log_index", e.log.Index)
			} else {
				s.log.Warnw("skipping undecodable log", "block", e.block, "log_index", e.log.Index, "error", err)
			}
			continue
		}

		return item, nil
	}
}

// NextBlock returns the first block not fetched yet.
func (s *LogSource) NextBlock() uint64 {
	return s.next
}

func (s *LogSource) fetch(ctx context.Context) error {
	if s.cfg.EndBlock > 0 && s.next > s.cfg.EndBlock {
		s.done = true
		return nil
	}

	head, err := s.safeHead(ctx)
	if err != nil {
		return err
	}

	if s.next > head {
		s.log.Debugw("waiting for new blocks", "next", s.next, "safe_head", head)
		timer := time.NewTimer(s.cfg.PollInterval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	to := min(s.next+s.cfg.ChunkSize-1, head)
	if s.cfg.EndBlock > 0 {
		to = min(to, s.cfg.EndBlock)
	}

	logs, to, err := s.getLogs(ctx, s.next, to)
	if err != nil {
		return err
	}

	s.pending = s.buildEntries(logs, s.next, to)
	s.log.Debugw("fetched range", "from_block", s.next, "to_block", to, "logs", len(logs), "entries", len(s.pending))
	s.next = to + 1

	return nil
}

func (s *LogSource) safeHead(ctx context.Context) (uint64, error) {
	header, err := s.client.GetLatestBlockHeader(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}

	latest := header.Number.Uint64()
	if latest < s.cfg.Confirmations {
		return 0, nil
	}
	return latest - s.cfg.Confirmations, nil
}

// getLogs fetches [from, to], shrinking the range while the node rejects it as too
// large. It returns the range end actually fetched.
func (s *LogSource) getLogs(ctx context.Context, from, to uint64) ([]types.Log, uint64, error) {
	topics := s.decoder.Topics()

	for {
		logs, err := s.client.GetLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: s.cfg.Addresses,
			Topics:    [][]common.Hash{topics},
		})
		if err == nil {
			return logs, to, nil
		}

		tooMany, msg := rpc.IsTooManyResultsError(err)
		if !tooMany || from == to {
			return nil, 0, fmt.Errorf("failed to fetch logs [%d, %d]: %w", from, to, err)
		}

		if sFrom, sTo, ok := rpc.ParseSuggestedBlockRange(msg); ok && sFrom == from && sTo < to {
			to = sTo
		} else {
			to = from + (to-from)/2
		}
		s.log.Debugw("range too large, shrinking", "from_block", from, "to_block", to)
	}
}

func (s *LogSource) buildEntries(logs []types.Log, from, to uint64) []entry {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	capacity := len(logs)
	if s.cfg.BlockItems {
		capacity += int(to - from + 1)
	}
	entries := make([]entry, 0, capacity)

	i := 0
	for block := from; block <= to; block++ {
		for ; i < len(logs) && logs[i].BlockNumber == block; i++ {
			if logs[i].Removed {
				continue
			}
			s.appendEntry(&entries, entry{log: &logs[i], block: block})
		}

		if s.cfg.BlockItems {
			s.appendEntry(&entries, entry{block: block})
		}
	}

	return entries
}

func (s *LogSource) appendEntry(entries *[]entry, e entry) {
	if s.cfg.Resume != nil && !s.cfg.Resume.Less(e.position()) {
		return
	}
	*entries = append(*entries, e)
}
