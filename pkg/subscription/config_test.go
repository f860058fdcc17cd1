package subscription

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/stretchr/testify/require"
)

func TestFromChainConfig(t *testing.T) {
	t.Parallel()

	chain := config.ChainConfig{
		ID: testChain,
		Contracts: []config.ContractConfig{
			{
				Name:      "ERC20",
				Addresses: []string{token.Hex(), factory.Hex()},
				Events:    []config.EventConfig{{Signature: transferSig}},
			},
			{
				Name:     "Mints",
				Wildcard: true,
				Events: []config.EventConfig{{
					Signature: transferSig,
					Filters:   []map[string]any{{"from": "0x0000000000000000000000000000000000000000"}},
				}},
			},
			{
				Name:   "UniswapV3Pool",
				Events: []config.EventConfig{{Signature: swapSig}},
			},
		},
	}

	subs := FromChainConfig(chain)
	require.Len(t, subs, 4)

	require.Equal(t, token, *subs[0].Address)
	require.Equal(t, factory, *subs[1].Address)
	require.True(t, subs[2].Wildcard)
	require.Equal(t, []EventFilter{{"from": "0x0000000000000000000000000000000000000000"}}, subs[2].Filters)
	require.Nil(t, subs[3].Address)
	require.False(t, subs[3].Wildcard)

	r := newRegistry(t)
	require.NoError(t, r.RegisterConfig(&config.Config{Chains: []config.ChainConfig{chain}}))
	require.True(t, r.HasContract(testChain, "UniswapV3Pool"))

	at := feed.Position{Block: 1}
	mint := map[string]any{"from": common.Address{}, "to": pool}
	require.Len(t, r.Matches(testChain, pool, transfer, mint, at), 1)
	require.Len(t, r.Matches(testChain, token, transfer, mint, at), 2)
	require.Empty(t, r.Matches(testChain, pool, swap, nil, at))
}
