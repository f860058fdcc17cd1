package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient is the subset of Ethereum JSON-RPC the runtime uses to source logs
// and that handlers may use from effects.
type EthClient interface {
	// Close closes the RPC client connection.
	Close()

	// ChainID returns the id reported by the node.
	ChainID(ctx context.Context) (uint64, error)

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetBlockHeader retrieves the header for a specific block number.
	GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)

	// GetLatestBlockHeader retrieves the latest block header.
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)

	// CallContract executes an eth_call at the given block (nil for latest).
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
}

type clientContextKey struct{}

// WithClient returns a context carrying the chain's RPC client.
func WithClient(ctx context.Context, c EthClient) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext extracts the RPC client stored by WithClient, or nil.
func ClientFromContext(ctx context.Context) EthClient {
	if c, ok := ctx.Value(clientContextKey{}).(EthClient); ok {
		return c
	}
	return nil
}
