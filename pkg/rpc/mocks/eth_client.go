package mocks

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ChainRuntime/pkg/rpc"
	"github.com/stretchr/testify/mock"
)

var _ rpc.EthClient = (*EthClient)(nil)

// EthClient is a testify mock of rpc.EthClient.
type EthClient struct {
	mock.Mock
}

// NewEthClient creates a mock that asserts its expectations when the test ends.
func NewEthClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *EthClient {
	m := &EthClient{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *EthClient) Close() {
	m.Called()
}

func (m *EthClient) ChainID(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *EthClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, query)
	logs, _ := args.Get(0).([]types.Log)
	return logs, args.Error(1)
}

func (m *EthClient) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	args := m.Called(ctx, blockNum)
	h, _ := args.Get(0).(*types.Header)
	return h, args.Error(1)
}

func (m *EthClient) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*types.Header)
	return h, args.Error(1)
}

func (m *EthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	args := m.Called(ctx, msg, block)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}
