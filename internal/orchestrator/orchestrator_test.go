package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	_ "github.com/goran-ethernal/ChainRuntime/examples/handlers/erc20"
	_ "github.com/goran-ethernal/ChainRuntime/examples/handlers/uniswap"
	"github.com/goran-ethernal/ChainRuntime/internal/checkpoint"
	internalconfig "github.com/goran-ethernal/ChainRuntime/internal/config"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/handler"
	pkgrpc "github.com/goran-ethernal/ChainRuntime/pkg/rpc"
	"github.com/goran-ethernal/ChainRuntime/pkg/rpc/mocks"
	"github.com/goran-ethernal/ChainRuntime/pkg/scheduler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testModule  = "orchestrator-test"
	transferSig = "Transfer(address indexed from, address indexed to, uint256 value)"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bob   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	carol = common.HexToAddress("0x000000000000000000000000000000000000000c")

	transfers atomic.Int64
)

func init() {
	handler.RegisterModule(testModule, func(r *handler.Registry) error {
		r.OnEvent("Token.Transfer", func(ctx context.Context, hc *handler.Context) error {
			if pkgrpc.ClientFromContext(ctx) == nil {
				return errNoClient
			}
			transfers.Add(1)
			fields := hc.Item().Fields
			return hc.Entity("Account").Set(store.NewRecord(fields["to"].(common.Address).Hex(),
				map[string]any{"balance": fields["value"]}))
		})
		r.OnBlock("Noop", func(context.Context, *handler.Context) error { return nil })
		return nil
	})
}

type testError string

func (e testError) Error() string { return string(e) }

const errNoClient = testError("no rpc client in context")

func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Chains: []config.ChainConfig{{
			ID:         1,
			RPCURL:     "http://localhost:8545",
			StartBlock: 10,
			EndBlock:   11,
			Contracts: []config.ContractConfig{{
				Name:      "Token",
				Addresses: []string{token.Hex()},
				Events:    []config.EventConfig{{Signature: transferSig}},
			}},
		}},
		Handlers: []string{testModule},
		Entities: []string{"Account"},
	}
	if dbPath != "" {
		cfg.Persistence = &config.PersistenceConfig{Enabled: true, DB: config.DatabaseConfig{Path: dbPath}}
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	return cfg
}

func transferLog(t *testing.T, block uint64, index uint, from, to common.Address, value int64) types.Log {
	t.Helper()

	spec, err := feed.ParseEventSignature(transferSig)
	require.NoError(t, err)

	return types.Log{
		Address:     token,
		BlockNumber: block,
		Index:       index,
		Topics: []common.Hash{
			spec.Topic(),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
	}
}

func rangeIs(from, to int64) any {
	return mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Int64() == from && q.ToBlock.Int64() == to
	})
}

func factory(client pkgrpc.EthClient) Option {
	return WithClientFactory(func(context.Context, config.ChainConfig, *logger.Logger) (pkgrpc.EthClient, error) {
		return client, nil
	})
}

func TestRun_ProcessesAndResumes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runtime.sqlite")
	logs := []types.Log{
		transferLog(t, 11, 3, bob, carol, 7),
		transferLog(t, 10, 0, alice, bob, 5),
	}

	client := mocks.NewEthClient(t)
	client.On("ChainID", mock.Anything).Return(uint64(1), nil)
	client.On("GetLatestBlockHeader", mock.Anything).Return(&types.Header{Number: big.NewInt(100)}, nil)
	client.On("GetLogs", mock.Anything, rangeIs(10, 11)).Return(logs, nil).Once()
	client.On("Close").Return().Once()

	transfers.Store(0)
	o, err := New(testConfig(t, dbPath), WithLogger(logger.NewNopLogger()), factory(client))
	require.NoError(t, err)

	require.NoError(t, o.Run(context.Background()))
	require.NoError(t, o.Close())
	require.Equal(t, int64(2), transfers.Load())

	snap := o.Scheduler().Snapshot()
	require.Equal(t, 2, snap.Count("Account"))
	rec, ok := snap.Get("Account", carol.Hex())
	require.True(t, ok)
	require.Equal(t, big.NewInt(7), rec.BigInt("balance"))

	cursor, ok := o.Scheduler().Cursor(1)
	require.True(t, ok)
	require.Equal(t, "11/3", cursor.String())
	require.Equal(t, []metrics.ChainStatus{{ChainID: 1, Cursor: "11/3"}}, o.chainStatus())

	// A second run resumes at the checkpointed cursor and replays nothing.
	client = mocks.NewEthClient(t)
	client.On("ChainID", mock.Anything).Return(uint64(1), nil)
	client.On("GetLatestBlockHeader", mock.Anything).Return(&types.Header{Number: big.NewInt(100)}, nil)
	client.On("GetLogs", mock.Anything, rangeIs(11, 11)).Return(logs[:1], nil).Once()
	client.On("Close").Return().Once()

	o, err = New(testConfig(t, dbPath), WithLogger(logger.NewNopLogger()), factory(client))
	require.NoError(t, err)
	require.Equal(t, 2, o.Scheduler().Snapshot().Count("Account"))

	require.NoError(t, o.Run(context.Background()))
	require.NoError(t, o.Close())
	require.Equal(t, int64(2), transfers.Load())

	cfg := config.DatabaseConfig{Path: dbPath}
	cfg.ApplyDefaults()
	cp, err := checkpoint.Open(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer cp.Close()

	state, err := cp.Load()
	require.NoError(t, err)
	require.Equal(t, "11/3", state.Cursors[1].String())
	require.Equal(t, 2, state.Snapshot.Count("Account"))
}

func TestRun_ChainIDMismatch(t *testing.T) {
	t.Parallel()

	client := mocks.NewEthClient(t)
	client.On("ChainID", mock.Anything).Return(uint64(137), nil)
	client.On("Close").Return().Once()

	o, err := New(testConfig(t, ""), WithLogger(logger.NewNopLogger()), factory(client))
	require.NoError(t, err)

	err = o.Run(context.Background())
	require.ErrorContains(t, err, "serves chain 137")
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:    "unknown handler module",
			modify:  func(cfg *config.Config) { cfg.Handlers = []string{"missing"} },
			wantErr: `unknown handler module "missing"`,
		},
		{
			name: "block job without handler",
			modify: func(cfg *config.Config) {
				cfg.Chains[0].BlockJobs = []config.BlockJobConfig{{Name: "Hourly", Interval: 10}}
			},
			wantErr: "no handler registered for block job Hourly",
		},
		{
			name: "invalid event signature",
			modify: func(cfg *config.Config) {
				cfg.Chains[0].Contracts[0].Events[0].Signature = "Transfer("
			},
			wantErr: "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t, "")
			tt.modify(cfg)

			_, err := New(cfg, WithLogger(logger.NewNopLogger()))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew_BlockJobWithHandler(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	cfg.Chains[0].BlockJobs = []config.BlockJobConfig{{Name: "Noop", Interval: 5}}
	cfg.ApplyDefaults()

	o, err := New(cfg, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	require.Len(t, o.Scheduler().Jobs(1), 1)
	require.Equal(t, []uint64{1}, o.Subscriptions().Chains())
}

func TestNew_ExampleConfigs(t *testing.T) {
	t.Parallel()

	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			t.Parallel()

			cfg, err := internalconfig.LoadFromFile(path)
			require.NoError(t, err)
			cfg.Persistence = nil

			o, err := New(cfg, WithLogger(logger.NewNopLogger()))
			require.NoError(t, err)
			require.Len(t, o.Scheduler().Jobs(1), 1)
			require.Len(t, o.Subscriptions().Subscriptions(1), 3)
		})
	}
}

func TestWithoutCancellation(t *testing.T) {
	t.Parallel()

	failure := &scheduler.HandlerFailureError{ChainID: 137, Block: 9, Handler: "ERC20.Transfer", Err: errors.New("boom")}
	feedErr := errors.New("chain 10 feed: connection reset")

	tests := []struct {
		name    string
		err     error
		wantNil bool
		want    []error
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "cancelled", err: context.Canceled, wantNil: true},
		{name: "all chains cancelled", err: errors.Join(context.Canceled, fmt.Errorf("chain 1: %w", context.Canceled)), wantNil: true},
		{name: "plain failure", err: feedErr, want: []error{feedErr}},
		{name: "failure joined with cancellation", err: errors.Join(context.Canceled, failure), want: []error{failure}},
		{name: "nested join", err: errors.Join(errors.Join(failure, context.Canceled), feedErr), want: []error{failure, feedErr}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := withoutCancellation(tt.err)
			if tt.wantNil {
				require.NoError(t, got)
				return
			}

			require.Error(t, got)
			require.NotErrorIs(t, got, context.Canceled)
			for _, w := range tt.want {
				require.ErrorIs(t, got, w)
			}

			var hf *scheduler.HandlerFailureError
			require.Equal(t, errors.Is(tt.err, failure), errors.As(got, &hf))
		})
	}
}
