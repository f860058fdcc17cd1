package handler

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/pkg/effect"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
	"github.com/stretchr/testify/require"
)

type contractSet map[string]bool

func (c contractSet) HasContract(_ uint64, name string) bool { return c[name] }

func newTestContext(t *testing.T, s *store.Store) *Context {
	t.Helper()

	item := feed.NewEventItem(1, 10, 3, common.HexToAddress("0x01"), "Transfer(address,address,uint256)", nil)
	return NewContext(item, s.Begin(), effect.NewCache(nil), contractSet{"Pool": true}, nil)
}

func TestContext_Entities(t *testing.T) {
	t.Parallel()

	snap, err := store.NewSnapshot().Set("Account", store.NewRecord("A", map[string]any{"balance": 5}))
	require.NoError(t, err)
	s := store.New(snap)

	hc := newTestContext(t, s)
	accounts := hc.Entity("Account")

	a, ok, err := accounts.Get("A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), a.Uint64("balance"))

	require.NoError(t, accounts.Set(a.With("balance", 2)))

	b, err := accounts.GetOrCreate("B", map[string]any{"balance": 0})
	require.NoError(t, err)
	require.Equal(t, uint64(0), b.Uint64("balance"))

	require.NoError(t, accounts.Delete("missing"))

	next, changes, err := s.Commit(hc.Batch())
	require.NoError(t, err)
	require.Len(t, changes, 2)

	a, _ = next.Get("Account", "A")
	require.Equal(t, uint64(2), a.Uint64("balance"))
	_, ok = next.Get("Account", "B")
	require.True(t, ok)
}

func TestContext_ReadOnly(t *testing.T) {
	t.Parallel()

	snap, err := store.NewSnapshot().Set("Account", store.NewRecord("A", nil))
	require.NoError(t, err)

	hc := newTestContext(t, store.New(snap))
	hc.SetReadOnly(true)
	require.True(t, hc.ReadOnly())

	accounts := hc.Entity("Account")

	_, ok, err := accounts.Get("A")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = accounts.GetOrCreate("A", nil)
	require.NoError(t, err)

	require.ErrorIs(t, accounts.Set(store.NewRecord("A", nil)), ErrReadOnly)
	require.ErrorIs(t, accounts.Delete("A"), ErrReadOnly)
	_, err = accounts.GetOrCreate("B", nil)
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, hc.RegisterContract("Pool", common.HexToAddress("0x02")), ErrReadOnly)

	require.Equal(t, 0, hc.Batch().Len())
}

func TestContext_RegisterContract(t *testing.T) {
	t.Parallel()

	hc := newTestContext(t, store.New(nil))
	pool := common.HexToAddress("0xbeef")

	require.NoError(t, hc.RegisterContract("Pool", pool))
	require.NoError(t, hc.RegisterContract("Pool", pool))
	require.ErrorIs(t, hc.RegisterContract("Vault", pool), subscription.ErrUnknownContract)

	require.Equal(t, []Registration{{ContractName: "Pool", Address: pool}}, hc.Registrations())
}

func TestContext_Effect(t *testing.T) {
	t.Parallel()

	hc := newTestContext(t, store.New(nil))
	double := effect.Define("double", func(_ context.Context, in int) (int, error) { return in * 2, nil })

	got, err := Effect(context.Background(), hc, double, 21)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, hc.Effects().Len())
}
